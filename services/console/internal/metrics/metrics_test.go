package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ExtraGPTConsole/pkg/logger"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(logger.NewNop())

	m.TokenRefresh(true)
	m.TokenRefresh(false)
	m.PollTick("conversations", nil)
	m.PollTick("conversations", errors.New("timeout"))
	m.PollTick("conversations", errors.New("timeout"))
	m.AuditPublished("lead.status_changed", nil)
	m.APIRequest("GET", "/chat/history/5", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollTicks.WithLabelValues("conversations", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEvents.WithLabelValues("lead.status_changed", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCount.WithLabelValues("GET", "/chat/history/:id", "200")))
}

func TestMetrics_Pollers(t *testing.T) {
	m := New(logger.NewNop())

	m.PollerStarted("history")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveWorkers.WithLabelValues("poller_history")))
	m.PollerStopped("history")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveWorkers.WithLabelValues("poller_history")))
}

func TestCommandTimer(t *testing.T) {
	m := New(logger.NewNop())

	m.NewCommandTimer("leads list").Finish(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("leads list", "success")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.TokenRefresh(true)
		m.PollTick("x", nil)
		m.PollerStarted("x")
		m.PollerStopped("x")
		m.AuditPublished("x", nil)
		m.APIRequest("GET", "/", 200, 0)
		m.NewCommandTimer("x").Finish(false)
		_, span := m.StartSpan(context.Background(), "GET /")
		span.End()
	})
}

func TestMetrics_StartSpan(t *testing.T) {
	m := New(logger.NewNop())

	ctx, span := m.StartSpan(context.Background(), "GET /leads")
	defer span.End()

	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}
