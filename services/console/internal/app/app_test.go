package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExtraGPTConsole/pkg/config"
	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/services/console/internal/audit"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/router"
	"ExtraGPTConsole/services/console/internal/store"
)

func newTestApp(t *testing.T, handler http.Handler, options ...func(*config.Config)) *App {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.API.BaseURL = server.URL
	cfg.Session.Backend = "memory"
	for _, option := range options {
		option(cfg)
	}

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func operatorLogin(w http.ResponseWriter, r *http.Request) {
	businessID := int64(3)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(domain.AuthResponse{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		User: domain.User{
			ID:         11,
			Username:   "anna",
			Role:       domain.RoleOperator,
			IsActive:   true,
			BusinessID: &businessID,
		},
	})
}

func TestNew_MemoryBackend(t *testing.T) {
	a := newTestApp(t, http.NotFoundHandler())

	assert.IsType(t, &store.MemoryStorage{}, a.Storage)
	assert.Equal(t, audit.Nop{}, a.Audit)
	assert.Equal(t, []string{"api"}, a.Health.Names())
}

func TestRequire_NotLoggedIn(t *testing.T) {
	a := newTestApp(t, http.NotFoundHandler())

	err := a.Require(context.Background(), router.PathChat)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.ErrUnauthorized))
	assert.Contains(t, pkgerrors.UserMessage(err), "extragpt auth login")
}

func TestRequire_RoleChecks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", operatorLogin)
	a := newTestApp(t, mux)
	ctx := context.Background()

	_, err := a.Session.Login(ctx, domain.Credentials{Username: "anna", Password: "secret"})
	require.NoError(t, err)

	require.NoError(t, a.Require(ctx, router.PathLeads))
	assert.Equal(t, router.PathLeads, a.Router.Location())

	err = a.Require(ctx, router.PathAdmin)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.ErrForbidden))

	err = a.Require(ctx, router.PathBotConfig)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.ErrForbidden))
}

func TestSessionExpiry_NavigatesToLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", operatorLogin)
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/leads", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	a := newTestApp(t, mux)
	ctx := context.Background()

	var reasons []string
	a.Router.OnLogin(func(reason string) { reasons = append(reasons, reason) })

	_, err := a.Session.Login(ctx, domain.Credentials{Username: "anna", Password: "secret"})
	require.NoError(t, err)

	err = a.LeadsController().Load(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.ErrSessionExpired))

	assert.False(t, a.Session.Authenticated())
	assert.Equal(t, router.PathLogin, a.Router.Location())
	assert.Len(t, reasons, 1)

	_, ok, err := a.Storage.Get(ctx, store.KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionExpiry_UnmountsChatPage(t *testing.T) {
	var expired atomic.Bool
	var conversationCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", operatorLogin)
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		conversationCalls.Add(1)
		if expired.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"conversations":[],"total":0}`))
	})
	a := newTestApp(t, mux, func(c *config.Config) {
		c.Polling.Conversations = "20ms"
	})
	ctx := context.Background()

	var navigations atomic.Int32
	a.Router.OnLogin(func(string) { navigations.Add(1) })

	_, err := a.Session.Login(ctx, domain.Credentials{Username: "anna", Password: "secret"})
	require.NoError(t, err)

	page := a.ChatController()
	page.Mount(ctx)
	t.Cleanup(page.Unmount)
	require.Eventually(t, func() bool { return conversationCalls.Load() >= 2 }, time.Second, time.Millisecond)

	expired.Store(true)
	select {
	case <-page.Ended():
	case <-time.After(2 * time.Second):
		t.Fatal("chat page kept running after the session expired")
	}

	// Отмененный запрос может дойти до сервера уже после остановки
	time.Sleep(20 * time.Millisecond)
	calls, navigated := conversationCalls.Load(), navigations.Load()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, calls, conversationCalls.Load(), "no polling after session expiry")
	assert.Equal(t, navigated, navigations.Load())
	assert.GreaterOrEqual(t, navigated, int32(1))
	assert.False(t, a.Session.Authenticated())
	assert.Equal(t, router.PathLogin, a.Router.Location())

	snap := page.Snapshot()
	assert.False(t, snap.Mounted)
	assert.True(t, snap.Ended)
	assert.Equal(t, "Сессия истекла, выполните вход заново", snap.Error)
}

func TestTelemetryHandler(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler := a.TelemetryHandler()

	for _, path := range []string{"/live", "/health", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.RequestCount.WithLabelValues(http.MethodGet, "/live", "200")))
}

func TestServeTelemetry_Disabled(t *testing.T) {
	a := newTestApp(t, http.NotFoundHandler())
	stop := a.ServeTelemetry()
	stop()
}
