package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/pkg/rabbitmq"
	"ExtraGPTConsole/services/console/internal/metrics"
)

type fakeSender struct {
	bodies  [][]byte
	opts    []rabbitmq.PublishOptions
	err     error
	ctxErr  error
	retries []int
}

func (f *fakeSender) PublishWithRetry(ctx context.Context, body []byte, maxRetries int, interval time.Duration, options ...rabbitmq.PublishOption) error {
	f.ctxErr = ctx.Err()
	f.retries = append(f.retries, maxRetries)
	opts := rabbitmq.PublishOptions{}
	for _, o := range options {
		o(&opts)
	}
	f.bodies = append(f.bodies, body)
	f.opts = append(f.opts, opts)
	return f.err
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(EventLeadStatusChanged, map[string]interface{}{"lead_id": 7})

	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, EventLeadStatusChanged, env.Meta.Type)
	assert.Equal(t, Producer, env.Meta.Producer)
	assert.False(t, env.Meta.Time.IsZero())
	assert.NotEqual(t, env.Meta.ID, NewEnvelope(EventLeadStatusChanged, nil).Meta.ID)
}

func TestAMQPPublisher_Publish(t *testing.T) {
	sender := &fakeSender{}
	m := metrics.New(logger.NewNop())
	p := NewAMQPPublisher(sender, nil, logger.NewNop(), m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Publish(ctx, EventAIToggled, map[string]interface{}{"conversation_id": 1, "ai_enabled": false})

	require.Len(t, sender.bodies, 1)
	assert.NoError(t, sender.ctxErr, "page cancellation must not cancel the publish")

	var got struct {
		Meta Meta                   `json:"meta"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(sender.bodies[0], &got))
	assert.Equal(t, EventAIToggled, got.Meta.Type)
	assert.Equal(t, float64(1), got.Data["conversation_id"])
	assert.Equal(t, got.Meta.ID, sender.opts[0].MessageID)
	assert.Equal(t, EventAIToggled, sender.opts[0].Type)
	assert.Equal(t, EventAIToggled, sender.opts[0].Headers["event_type"])

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditEvents.WithLabelValues(EventAIToggled, "success")))
}

func TestAMQPPublisher_FailureIsSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	m := metrics.New(logger.NewNop())
	p := NewAMQPPublisher(sender, nil, nil, m)

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), EventMessageSent, nil)
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditEvents.WithLabelValues(EventMessageSent, "error")))
}

func TestAMQPPublisher_Retries(t *testing.T) {
	sender := &fakeSender{}
	p := NewAMQPPublisher(sender, nil, nil, nil)
	p.Publish(context.Background(), EventLeadStatusChanged, nil)

	p.WithRetries(3).Publish(context.Background(), EventLeadStatusChanged, nil)
	p.WithRetries(-1).Publish(context.Background(), EventLeadStatusChanged, nil)

	assert.Equal(t, []int{0, 3, 0}, sender.retries)
}

func TestAMQPPublisher_Close(t *testing.T) {
	closed := false
	p := NewAMQPPublisher(&fakeSender{}, func() error { closed = true; return nil }, nil, nil)

	require.NoError(t, p.Close())
	assert.True(t, closed)
	assert.NoError(t, NewAMQPPublisher(&fakeSender{}, nil, nil, nil).Close())
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(context.Background(), EventUserCreated, nil)
	assert.NoError(t, p.Close())
}
