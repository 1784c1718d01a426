package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"ExtraGPTConsole/services/console/internal/domain"
)

func businessQuery(businessID int64) url.Values {
	q := url.Values{}
	q.Set("business_id", strconv.FormatInt(businessID, 10))
	return q
}

// BotAPI вызовы настроек бота, каналов и расписания
type BotAPI struct {
	gw *Gateway
}

// NewBotAPI создает BotAPI
func NewBotAPI(gw *Gateway) *BotAPI {
	return &BotAPI{gw: gw}
}

// GetConfig выполняет GET /bot/config
func (b *BotAPI) GetConfig(ctx context.Context, businessID int64) (*domain.BotConfig, error) {
	var cfg domain.BotConfig
	if err := b.gw.Do(ctx, http.MethodGet, "/bot/config", nil, &cfg, WithQuery(businessQuery(businessID))); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateConfig выполняет PUT /bot/config
func (b *BotAPI) UpdateConfig(ctx context.Context, req domain.UpdateBotConfigRequest) error {
	return b.gw.Do(ctx, http.MethodPut, "/bot/config", req, nil)
}

// TelegramStatus выполняет GET /telegram/login
func (b *BotAPI) TelegramStatus(ctx context.Context, businessID int64) (*domain.TelegramStatus, error) {
	var st domain.TelegramStatus
	if err := b.gw.Do(ctx, http.MethodGet, "/telegram/login", nil, &st, WithQuery(businessQuery(businessID))); err != nil {
		return nil, err
	}
	return &st, nil
}

// TelegramConnect выполняет PATCH /telegram/login: токен бота в обмен на регистрацию webhook
func (b *BotAPI) TelegramConnect(ctx context.Context, req domain.TelegramLoginRequest) (*domain.TelegramStatus, error) {
	var st domain.TelegramStatus
	if err := b.gw.Do(ctx, http.MethodPatch, "/telegram/login", req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// InstagramStatus выполняет GET /instagram/status
func (b *BotAPI) InstagramStatus(ctx context.Context, businessID int64) (*domain.InstagramStatus, error) {
	var st domain.InstagramStatus
	if err := b.gw.Do(ctx, http.MethodGet, "/instagram/status", nil, &st, WithQuery(businessQuery(businessID))); err != nil {
		return nil, err
	}
	return &st, nil
}

// InstagramUpdateID выполняет PATCH /instagram/update-id
func (b *BotAPI) InstagramUpdateID(ctx context.Context, req domain.InstagramUpdateRequest) error {
	return b.gw.Do(ctx, http.MethodPatch, "/instagram/update-id", req, nil)
}

// InstagramLoginURL адрес первого шага подключения Instagram (OAuth редирект)
func (b *BotAPI) InstagramLoginURL(businessID int64) string {
	return b.gw.URL("/instagram/login", businessQuery(businessID))
}

// GetSettings выполняет GET /bot-settings
func (b *BotAPI) GetSettings(ctx context.Context, businessID int64) (*domain.BusinessSettings, error) {
	var settings domain.BusinessSettings
	if err := b.gw.Do(ctx, http.MethodGet, "/bot-settings", nil, &settings, WithQuery(businessQuery(businessID))); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSettings выполняет PUT /bot-settings
func (b *BotAPI) UpdateSettings(ctx context.Context, req domain.UpdateBusinessSettingsRequest) error {
	return b.gw.Do(ctx, http.MethodPut, "/bot-settings", req, nil)
}

// GlobalBotStatus выполняет GET /global-bot/status
func (b *BotAPI) GlobalBotStatus(ctx context.Context, businessID int64) (*domain.GlobalBotStatus, error) {
	var st domain.GlobalBotStatus
	if err := b.gw.Do(ctx, http.MethodGet, "/global-bot/status", nil, &st, WithQuery(businessQuery(businessID))); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateReportTime выполняет PATCH /global-bot/report-time
func (b *BotAPI) UpdateReportTime(ctx context.Context, req domain.ReportTimeRequest) error {
	return b.gw.Do(ctx, http.MethodPatch, "/global-bot/report-time", req, nil)
}

// SendTestReport выполняет POST /global-bot/test-report
func (b *BotAPI) SendTestReport(ctx context.Context, businessID int64) error {
	return b.gw.Do(ctx, http.MethodPost, "/global-bot/test-report", nil, nil, WithQuery(businessQuery(businessID)))
}
