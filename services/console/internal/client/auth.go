package client

import (
	"context"
	"net/http"

	"ExtraGPTConsole/services/console/internal/domain"
)

// AuthAPI вызовы аутентификации
type AuthAPI struct {
	gw *Gateway
}

// NewAuthAPI создает AuthAPI
func NewAuthAPI(gw *Gateway) *AuthAPI {
	return &AuthAPI{gw: gw}
}

// Login выполняет POST /auth/login.
// Ошибка возвращается без изменений, 401 здесь означает неверные учетные данные.
func (a *AuthAPI) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := a.gw.Do(ctx, http.MethodPost, "/auth/login", creds, &resp, SkipRefresh()); err != nil {
		return nil, err
	}
	return &resp, nil
}
