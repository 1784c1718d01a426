package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExtraGPTConsole/services/console/internal/domain"
)

// fakeBackend минимальный API сервер для команд
type fakeBackend struct {
	mu         sync.Mutex
	sent       []domain.SendMessageRequest
	businesses []domain.CreateBusinessRequest
	aiEnabled  bool
}

func (f *fakeBackend) sentMessages() []domain.SendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SendMessageRequest(nil), f.sent...)
}

func (f *fakeBackend) createdBusinesses() []domain.CreateBusinessRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CreateBusinessRequest(nil), f.businesses...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeBackend) handler() http.Handler {
	businessID := int64(3)
	users := map[string]domain.User{
		"anna":  {ID: 11, Username: "anna", Role: domain.RoleOperator, IsActive: true, BusinessID: &businessID},
		"root":  {ID: 1, Username: "root", Role: domain.RoleAdmin, IsActive: true},
		"oleg":  {ID: 21, Username: "oleg", Role: domain.RoleOwner, IsActive: true},
		"maria": {ID: 22, Username: "maria", Role: domain.RoleOwner, IsActive: true},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds domain.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		user, ok := users[creds.Username]
		if !ok || creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"detail": "Invalid username or password"})
			return
		}
		writeJSON(w, domain.AuthResponse{AccessToken: "access-" + user.Username, RefreshToken: "refresh", User: user})
	})
	mux.HandleFunc("/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ai := f.aiEnabled
		f.mu.Unlock()
		writeJSON(w, domain.ConversationsResponse{
			Conversations: []domain.Conversation{
				{ID: 1, BusinessID: 3, Channel: domain.ChannelTelegram, ClientID: "tg-1", ClientName: domain.StringPtr("Alice"), AIEnabled: ai},
				{ID: 2, BusinessID: 3, Channel: domain.ChannelInstagram, ClientID: "ig-2", ClientName: domain.StringPtr("Bob"), AIEnabled: true},
			},
			Total: 2,
		})
	})
	mux.HandleFunc("/chat/send-message", func(w http.ResponseWriter, r *http.Request) {
		var req domain.SendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.sent = append(f.sent, req)
		f.mu.Unlock()
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/chat/toggle-ai", func(w http.ResponseWriter, r *http.Request) {
		var req domain.ToggleAIRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.aiEnabled = req.AIEnabled
		f.mu.Unlock()
		writeJSON(w, domain.ToggleAIResponse{ConversationID: req.ConversationID, AIEnabled: req.AIEnabled})
	})
	mux.HandleFunc("/leads", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, domain.LeadsResponse{
			Leads: []domain.Lead{{ID: 7, BusinessID: 3, Channel: domain.ChannelTelegram, FullName: domain.StringPtr("Ivan"), Status: domain.LeadNeedToCall}},
			Total: 1,
			Stats: domain.LeadStats{NeedToCall: 1},
		})
	})
	mux.HandleFunc("/chat/history/", func(w http.ResponseWriter, r *http.Request) {
		// История отвечает 401, а обновления токена нет: сессия истекает
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/bot/config", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("business_id") != "3" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"detail": "Bot config not found"})
			return
		}
		writeJSON(w, domain.BotConfig{ID: 1, BusinessID: 3, BotName: "Coffee bot", Prompt: "Be polite"})
	})
	mux.HandleFunc("/admin/users", func(w http.ResponseWriter, r *http.Request) {
		list := []domain.User{users["root"], users["oleg"], users["maria"], users["anna"]}
		writeJSON(w, list)
	})
	mux.HandleFunc("/admin/businesses", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req domain.CreateBusinessRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			f.businesses = append(f.businesses, req)
			f.mu.Unlock()
			writeJSON(w, domain.Business{ID: 9, Name: req.Name, OwnerID: req.OwnerID})
			return
		}
		writeJSON(w, []domain.Business{{ID: 3, Name: "Coffee", OwnerID: 21}})
	})
	return mux
}

type harness struct {
	backend *fakeBackend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := &fakeBackend{}
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	t.Setenv("EXTRAGPT_HOME", t.TempDir())
	t.Setenv("EXTRAGPT_API_URL", server.URL)
	t.Setenv("EXTRAGPT_LOG_LEVEL", "error")
	return &harness{backend: backend}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd, c := newRootCommand(context.Background())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))

	err := rootCmd.Execute()
	_ = c.close()
	return out.String(), err
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated")
	assert.Contains(t, out, "no")

	out, err = h.run(t, "auth", "login", "anna", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "anna")

	out, err = h.run(t, "auth", "status", "-o", "json")
	require.NoError(t, err)
	var status sessionView
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Authenticated)
	require.NotNil(t, status.BusinessID)
	assert.Equal(t, int64(3), *status.BusinessID)

	_, err = h.run(t, "auth", "logout")
	require.NoError(t, err)

	_, err = h.run(t, "chat", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extragpt auth login")
}

func TestAuthLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "auth", "login", "anna", "--password", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid username or password")
}

func TestAuthLogin_RequiresPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "auth", "login", "anna")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestChatCommands(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "auth", "login", "anna", "--password", "secret")
	require.NoError(t, err)

	out, err := h.run(t, "chat", "list", "--search", "ali")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.NotContains(t, out, "Bob")

	_, err = h.run(t, "chat", "send", "1", "Здравствуйте,", "чем", "помочь?")
	require.NoError(t, err)
	sent := h.backend.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1), sent[0].ConversationID)
	assert.Equal(t, "Здравствуйте, чем помочь?", sent[0].Text)

	out, err = h.run(t, "chat", "toggle-ai", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "on")

	_, err = h.run(t, "chat", "send", "0", "hi")
	require.Error(t, err)
	assert.Len(t, h.backend.sentMessages(), 1)
}

func TestRoleGuard(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "auth", "login", "anna", "--password", "secret")
	require.NoError(t, err)

	_, err = h.run(t, "admin", "users", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "недоступна")

	_, err = h.run(t, "bot", "config", "show")
	require.Error(t, err)

	out, err := h.run(t, "nav")
	require.NoError(t, err)
	assert.Contains(t, out, "Leads")
	assert.NotContains(t, out, "Admin Panel")
}

func TestChatWatch_EndsWhenSessionExpires(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "auth", "login", "anna", "--password", "secret")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.run(t, "chat", "watch", "1")
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extragpt auth login")
	case <-time.After(5 * time.Second):
		t.Fatal("watch kept polling after the session expired")
	}

	out, err := h.run(t, "auth", "status", "-o", "json")
	require.NoError(t, err)
	var status sessionView
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Authenticated)
}

func TestLeadsList(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "auth", "login", "anna", "--password", "secret")
	require.NoError(t, err)

	out, err := h.run(t, "leads", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Ivan")
	assert.Contains(t, out, "need_to_call")

	_, err = h.run(t, "leads", "list", "--status", "lost")
	require.Error(t, err)
}

func TestAdminBusinessUse(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "auth", "login", "root", "--password", "secret")
	require.NoError(t, err)

	_, err = h.run(t, "bot", "config", "show")
	require.Error(t, err, "admin has no business right after sign in")

	_, err = h.run(t, "admin", "businesses", "use", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Бизнес 99 не найден")

	out, err := h.run(t, "admin", "businesses", "use", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Coffee")

	out, err = h.run(t, "bot", "config", "show", "-o", "json")
	require.NoError(t, err)
	var cfg botConfigView
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, int64(3), cfg.BusinessID)
	assert.Equal(t, "Coffee bot", cfg.BotName)
}

func TestAdminBusinessUse_OperatorForbidden(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "auth", "login", "anna", "--password", "secret")
	require.NoError(t, err)

	_, err = h.run(t, "admin", "businesses", "use", "3")
	require.Error(t, err)

	out, err := h.run(t, "auth", "status", "-o", "json")
	require.NoError(t, err)
	var status sessionView
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.NotNil(t, status.BusinessID)
	assert.Equal(t, int64(3), *status.BusinessID)
}

func TestAdminCreateBusiness(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "auth", "login", "root", "--password", "secret")
	require.NoError(t, err)

	out, err := h.run(t, "admin", "businesses", "owners")
	require.NoError(t, err)
	assert.Contains(t, out, "oleg")
	assert.NotContains(t, out, "anna")

	_, err = h.run(t, "admin", "businesses", "create", "--name", "Bakery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner_id")
	assert.Empty(t, h.backend.createdBusinesses())

	_, err = h.run(t, "admin", "businesses", "create", "--name", "Bakery", "--owner", "maria")
	require.NoError(t, err)
	created := h.backend.createdBusinesses()
	require.Len(t, created, 1)
	assert.Equal(t, int64(22), created[0].OwnerID)

	_, err = h.run(t, "admin", "businesses", "create", "--name", "Bakery", "--owner", "anna")
	require.Error(t, err)
	assert.Len(t, h.backend.createdBusinesses(), 1)
}

func TestResolveOwner(t *testing.T) {
	owners := []domain.User{{ID: 21, Username: "oleg", Role: domain.RoleOwner}}

	id, err := resolveOwner(owners, "21")
	require.NoError(t, err)
	assert.Equal(t, int64(21), id)

	id, err = resolveOwner(owners, "OLEG")
	require.NoError(t, err)
	assert.Equal(t, int64(21), id)

	id, err = resolveOwner(owners, "")
	require.NoError(t, err)
	assert.Zero(t, id)

	_, err = resolveOwner(owners, "99")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "config", "init", "--api-url", "https://api.example.com")
	require.NoError(t, err)

	_, err = h.run(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	out, err := h.run(t, "config", "show", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42", "conversation")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("abc", "conversation")
	assert.Error(t, err)
	_, err = parseID("-1", "lead")
	assert.Error(t, err)
}
