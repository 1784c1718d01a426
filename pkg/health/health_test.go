package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComponentChecker_AllHealthy проверяет здоровый статус
func TestComponentChecker_AllHealthy(t *testing.T) {
	checker := NewComponentChecker("v1.0.0", time.Second)
	checker.Register("api", func(ctx context.Context) error { return nil })
	checker.Register("redis", func(ctx context.Context) error { return nil })

	status := checker.Check(context.Background())

	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, "v1.0.0", status.Version)
	assert.Len(t, status.Services, 2)
	assert.False(t, status.Timestamp.IsZero())
	assert.Equal(t, []string{"api", "redis"}, checker.Names())
}

// TestComponentChecker_Unhealthy проверяет деградацию при ошибке зависимости
func TestComponentChecker_Unhealthy(t *testing.T) {
	checker := NewComponentChecker("v1.0.0", time.Second)
	checker.Register("api", func(ctx context.Context) error { return nil })
	checker.Register("audit", func(ctx context.Context) error { return errors.New("connection refused") })

	status := checker.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Services["audit"].Details)
	assert.Equal(t, StatusHealthy, status.Services["api"].Status)
}

// TestComponentChecker_Timeout проверяет таймаут долгой проверки
func TestComponentChecker_Timeout(t *testing.T) {
	checker := NewComponentChecker("v1.0.0", 20*time.Millisecond)
	checker.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
}

// TestHandler проверяет HTTP обработчик
func TestHandler(t *testing.T) {
	checker := NewComponentChecker("v1.0.0", time.Second)
	checker.Register("api", func(ctx context.Context) error { return nil })

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	Handler(checker)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, StatusHealthy, response.Status)
	assert.Equal(t, "v1.0.0", response.Version)
}

// TestHandler_Unavailable проверяет ответ 503
func TestHandler_Unavailable(t *testing.T) {
	checker := NewComponentChecker("v1.0.0", time.Second)
	checker.Register("api", func(ctx context.Context) error { return errors.New("down") })

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	Handler(checker)(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestLiveHandler проверяет live handler
func TestLiveHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()
	LiveHandler()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "alive", response["status"])
}
