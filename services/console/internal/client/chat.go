package client

import (
	"context"
	"fmt"
	"net/http"

	"ExtraGPTConsole/services/console/internal/domain"
)

// ChatAPI вызовы диалогов и сообщений
type ChatAPI struct {
	gw *Gateway
}

// NewChatAPI создает ChatAPI
func NewChatAPI(gw *Gateway) *ChatAPI {
	return &ChatAPI{gw: gw}
}

// Conversations выполняет GET /chat/conversations
func (c *ChatAPI) Conversations(ctx context.Context, businessID int64) (*domain.ConversationsResponse, error) {
	var resp domain.ConversationsResponse
	if err := c.gw.Do(ctx, http.MethodGet, "/chat/conversations", nil, &resp, WithQuery(businessQuery(businessID))); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History выполняет GET /chat/history/{id}
func (c *ChatAPI) History(ctx context.Context, conversationID int64) (*domain.MessagesResponse, error) {
	var resp domain.MessagesResponse
	if err := c.gw.Do(ctx, http.MethodGet, fmt.Sprintf("/chat/history/%d", conversationID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send выполняет POST /chat/send-message
func (c *ChatAPI) Send(ctx context.Context, req domain.SendMessageRequest) error {
	return c.gw.Do(ctx, http.MethodPost, "/chat/send-message", req, nil)
}

// ToggleAI выполняет PATCH /chat/toggle-ai и возвращает подтвержденное значение
func (c *ChatAPI) ToggleAI(ctx context.Context, req domain.ToggleAIRequest) (*domain.ToggleAIResponse, error) {
	var resp domain.ToggleAIResponse
	if err := c.gw.Do(ctx, http.MethodPatch, "/chat/toggle-ai", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
