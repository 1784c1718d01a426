// Package client реализует исходящие вызовы ExtraGPT API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	pkgmetrics "ExtraGPTConsole/pkg/metrics"
	"ExtraGPTConsole/services/console/internal/metrics"
	"ExtraGPTConsole/services/console/internal/store"
)

// UserAgent заголовок всех запросов консоли
const UserAgent = "ExtraGPT-Console/1.0"

const refreshPath = "/auth/refresh"

// Navigator уводит пользователя на страницу входа
type Navigator interface {
	ToLogin(reason string)
}

// NavigatorFunc адаптер функции к Navigator
type NavigatorFunc func(reason string)

// ToLogin вызывает функцию
func (f NavigatorFunc) ToLogin(reason string) { f(reason) }

// Options параметры Gateway
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Storage   store.Storage
	Navigator Navigator
	Logger    logger.Logger
	Metrics   *metrics.Metrics
	// Transport базовый транспорт, по умолчанию http.DefaultTransport
	Transport http.RoundTripper
}

// Gateway единая точка исходящих вызовов.
// Подставляет bearer токен и один раз обновляет его при ответе 401.
type Gateway struct {
	baseURL   string
	http      *http.Client
	storage   store.Storage
	navigator Navigator
	logger    logger.Logger
	metrics   *metrics.Metrics
}

// NewGateway создает Gateway
func NewGateway(opts Options) (*Gateway, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, "invalid api base url").WithDetails(opts.BaseURL)
	}
	if opts.Storage == nil {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, "session storage is required")
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	navigator := opts.Navigator
	if navigator == nil {
		navigator = NavigatorFunc(func(string) {})
	}

	return &Gateway{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		storage:   opts.Storage,
		navigator: navigator,
		logger:    log,
		metrics:   opts.Metrics,
	}, nil
}

// BaseURL возвращает адрес API
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// URL строит абсолютный адрес для пути и параметров
func (g *Gateway) URL(path string, query url.Values) string {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

type requestOptions struct {
	query       url.Values
	skipRefresh bool
}

// RequestOption настройка отдельного запроса
type RequestOption func(*requestOptions)

// WithQuery добавляет параметры запроса
func WithQuery(query url.Values) RequestOption {
	return func(o *requestOptions) {
		o.query = query
	}
}

// SkipRefresh отключает обновление токена для запроса.
// Используется для входа, где 401 означает неверные учетные данные.
func SkipRefresh() RequestOption {
	return func(o *requestOptions) {
		o.skipRefresh = true
	}
}

// Do выполняет запрос. in сериализуется в JSON, ответ декодируется в out.
func (g *Gateway) Do(ctx context.Context, method, path string, in, out interface{}, options ...RequestOption) error {
	opts := &requestOptions{}
	for _, option := range options {
		option(opts)
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to encode request")
		}
	}

	endpoint := pkgmetrics.NormalizeEndpoint(path)
	ctx, span := g.metrics.StartSpan(ctx, method+" "+endpoint,
		attribute.String("http.method", method),
		attribute.String("api.endpoint", endpoint),
	)
	defer span.End()

	// retried привязан к исходному запросу и не дает обновлять токен повторно
	retried := opts.skipRefresh
	for {
		status, body, err := g.send(ctx, method, path, opts.query, payload)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		if status == http.StatusUnauthorized && !retried {
			retried = true
			span.AddEvent("token refresh")
			if err := g.refresh(ctx); err != nil {
				span.SetStatus(codes.Error, "session expired")
				return g.expire(ctx, err)
			}
			continue
		}

		span.SetAttributes(attribute.Int("http.status_code", status))
		if status < 200 || status >= 300 {
			apiErr := pkgerrors.FromHTTPStatus(status, pkgerrors.ParseDetail(body))
			span.SetStatus(codes.Error, apiErr.Error())
			return apiErr
		}

		if out != nil && len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to decode response")
			}
		}
		return nil
	}
}

// send выполняет одну попытку запроса с текущим токеном
func (g *Gateway) send(ctx context.Context, method, path string, query url.Values, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.URL(path, query), reader)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, ok, err := g.storage.Get(ctx, store.KeyAccessToken)
	if err != nil {
		g.logger.Warn("Failed to read access token", logger.Error(err))
	}
	if ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		g.metrics.APIRequest(method, path, 0, time.Since(start))
		g.logger.Debug("API request failed",
			logger.String("method", method),
			logger.String("path", path),
			logger.Error(err))
		return 0, nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "api request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	g.metrics.APIRequest(method, path, resp.StatusCode, time.Since(start))
	if err != nil {
		return 0, nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to read response")
	}

	g.logger.Debug("API request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("duration", time.Since(start)))

	return resp.StatusCode, body, nil
}

// refresh обменивает refresh токен на новый access токен.
// Запрос идет мимо перехватчика 401, чтобы не зациклиться.
func (g *Gateway) refresh(ctx context.Context) error {
	refreshToken, ok, err := g.storage.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		return err
	}
	if !ok || refreshToken == "" {
		return pkgerrors.New(pkgerrors.ErrUnauthorized, "no refresh token")
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL(refreshPath, nil), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		g.metrics.APIRequest(http.MethodPost, refreshPath, 0, time.Since(start))
		g.metrics.TokenRefresh(false)
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "token refresh failed")
	}
	defer resp.Body.Close()
	g.metrics.APIRequest(http.MethodPost, refreshPath, resp.StatusCode, time.Since(start))

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.metrics.TokenRefresh(false)
		return pkgerrors.FromHTTPStatus(resp.StatusCode, pkgerrors.ParseDetail(body))
	}

	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &refreshed); err != nil || refreshed.AccessToken == "" {
		g.metrics.TokenRefresh(false)
		return pkgerrors.New(pkgerrors.ErrInternal, "refresh response has no access token")
	}

	if err := g.storage.Set(ctx, store.KeyAccessToken, refreshed.AccessToken); err != nil {
		g.metrics.TokenRefresh(false)
		return err
	}

	g.metrics.TokenRefresh(true)
	g.logger.Info("Access token refreshed")
	return nil
}

// expire завершает сессию после неудачного обновления токена
func (g *Gateway) expire(ctx context.Context, cause error) error {
	if err := g.storage.Remove(ctx, store.SessionKeys...); err != nil {
		g.logger.Error("Failed to clear session", logger.Error(err))
	}
	g.logger.Warn("Session expired", logger.Error(cause))
	g.navigator.ToLogin(fmt.Sprintf("session expired: %v", cause))
	return pkgerrors.Wrap(cause, pkgerrors.ErrSessionExpired, "session expired")
}

// Ping проверяет доступность API для health check
func (g *Gateway) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}
