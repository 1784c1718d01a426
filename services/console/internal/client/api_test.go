package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExtraGPTConsole/services/console/internal/domain"
)

func TestChatAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("business_id"))
		w.Write([]byte(`{"conversations":[{"id":1,"client_id":"100","client_name":"Ali","channel":"telegram","ai_enabled":true}],"total":1}`))
	})
	mux.HandleFunc("/chat/history/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"conversation":{"id":1},"messages":[{"id":10,"conversation_id":1,"sender_type":"client","text":"hi"}],"total":1}`))
	})
	mux.HandleFunc("/chat/send-message", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req domain.SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, domain.SendMessageRequest{ConversationID: 1, Text: "hello"}, req)
		w.Write([]byte(`{"status":"sent"}`))
	})
	mux.HandleFunc("/chat/toggle-ai", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.Write([]byte(`{"conversation_id":1,"ai_enabled":false}`))
	})

	gw, _, _ := newTestGateway(t, mux)
	api := NewChatAPI(gw)
	ctx := context.Background()

	convs, err := api.Conversations(ctx, 42)
	require.NoError(t, err)
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, "Ali", convs.Conversations[0].DisplayName())

	history, err := api.History(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "hi", history.Messages[0].Text)

	require.NoError(t, api.Send(ctx, domain.SendMessageRequest{ConversationID: 1, Text: "hello"}))

	toggled, err := api.ToggleAI(ctx, domain.ToggleAIRequest{ConversationID: 1, AIEnabled: false})
	require.NoError(t, err)
	assert.False(t, toggled.AIEnabled)
}

func TestLeadsAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/leads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "contacted", r.URL.Query().Get("status"))
		w.Write([]byte(`{"leads":[{"id":7,"status":"contacted"}],"total":1,"stats":{"contacted":1}}`))
	})
	mux.HandleFunc("/leads/7/status", func(w http.ResponseWriter, r *http.Request) {
		var req domain.UpdateLeadStatusRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, domain.LeadContacted, req.Status)
	})

	gw, _, _ := newTestGateway(t, mux)
	api := NewLeadsAPI(gw)

	resp, err := api.List(context.Background(), 42, domain.LeadContacted)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Stats.Contacted)
	require.NoError(t, api.UpdateStatus(context.Background(), 7, domain.LeadContacted))
}

func TestAdminAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"id":5,"username":"vera","role":"operator"}`))
			return
		}
		assert.Equal(t, "20", r.URL.Query().Get("skip"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"id":1,"username":"ali","role":"owner"}]`))
	})
	mux.HandleFunc("/admin/businesses", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"id":42,"name":"Shop","owner_id":1}`))
			return
		}
		w.Write([]byte(`[]`))
	})

	gw, _, _ := newTestGateway(t, mux)
	api := NewAdminAPI(gw)
	ctx := context.Background()

	users, err := api.ListUsers(ctx, Page{Skip: 20, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, users[0].Role)

	created, err := api.CreateUser(ctx, domain.CreateUserRequest{Username: "vera", Role: domain.RoleOperator})
	require.NoError(t, err)
	assert.Equal(t, int64(5), created.ID)

	businesses, err := api.ListBusinesses(ctx, Page{})
	require.NoError(t, err)
	assert.Empty(t, businesses)

	business, err := api.CreateBusiness(ctx, domain.CreateBusinessRequest{Name: "Shop", OwnerID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(42), business.ID)
}

func TestBotAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot/config", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			var req domain.UpdateBotConfigRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, int64(42), req.BusinessID)
			return
		}
		w.Write([]byte(`{"business_id":42,"bot_name":"Helper","prompt":"Be nice","telegram_webhook_set":true}`))
	})
	mux.HandleFunc("/instagram/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"configured":false,"has_access_token":true,"has_business_id":false,"ready":false}`))
	})
	mux.HandleFunc("/global-bot/test-report", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "42", r.URL.Query().Get("business_id"))
	})

	gw, _, _ := newTestGateway(t, mux)
	api := NewBotAPI(gw)
	ctx := context.Background()

	cfg, err := api.GetConfig(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Helper", cfg.BotName)
	assert.True(t, cfg.TelegramWebhookSet)

	require.NoError(t, api.UpdateConfig(ctx, domain.UpdateBotConfigRequest{BusinessID: 42, BotName: "Helper"}))

	st, err := api.InstagramStatus(ctx, 42)
	require.NoError(t, err)
	assert.True(t, st.HasAccessToken)

	require.NoError(t, api.SendTestReport(ctx, 42))
}
