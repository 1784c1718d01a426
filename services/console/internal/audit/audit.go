// Package audit публикует события об изменениях, подтвержденных сервером.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/pkg/rabbitmq"
	"ExtraGPTConsole/services/console/internal/metrics"
)

// Producer имя источника событий
const Producer = "extragpt-console"

// Типы событий
const (
	EventMessageSent       = "chat.message_sent"
	EventAIToggled         = "chat.ai_toggled"
	EventLeadStatusChanged = "leads.status_changed"
	EventUserCreated       = "admin.user_created"
	EventBusinessCreated   = "admin.business_created"
	EventBotConfigSaved    = "bot.config_saved"
	EventTelegramConnected = "bot.telegram_connected"
	EventInstagramUpdated  = "bot.instagram_updated"
	EventSettingsSaved     = "bot.settings_saved"
	EventReportTimeUpdated = "bot.report_time_updated"
	EventTestReportSent    = "bot.test_report_sent"
	EventSessionStarted    = "session.login"
	EventSessionTerminated = "session.logout"
)

// Meta служебная часть события
type Meta struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Producer string    `json:"producer"`
}

// Envelope событие аудита
type Envelope struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data"`
}

// NewEnvelope создает событие с новым идентификатором
func NewEnvelope(eventType string, data interface{}) Envelope {
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Type:     eventType,
			Time:     time.Now().UTC(),
			Producer: Producer,
		},
		Data: data,
	}
}

// Publisher публикует события аудита.
// Ошибки публикации только логируются и не влияют на страницу.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{})
	Close() error
}

// Nop ничего не публикует
type Nop struct{}

// Publish ничего не делает
func (Nop) Publish(context.Context, string, interface{}) {}

// Close ничего не делает
func (Nop) Close() error { return nil }

// retryInterval пауза между повторными публикациями, укладывается в таймаут публикации
const retryInterval = 200 * time.Millisecond

// Sender отправляет тело сообщения брокеру с повторами
type Sender interface {
	PublishWithRetry(ctx context.Context, body []byte, maxRetries int, retryInterval time.Duration, options ...rabbitmq.PublishOption) error
}

// AMQPPublisher публикует события в RabbitMQ
type AMQPPublisher struct {
	sender  Sender
	closer  func() error
	check   func(ctx context.Context) error
	timeout time.Duration
	retries int
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewAMQPPublisher создает публикатор поверх Sender.
// closer вызывается в Close и может быть nil.
func NewAMQPPublisher(sender Sender, closer func() error, log logger.Logger, m *metrics.Metrics) *AMQPPublisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &AMQPPublisher{
		sender:  sender,
		closer:  closer,
		timeout: 5 * time.Second,
		logger:  log,
		metrics: m,
	}
}

// Dial подключается к RabbitMQ и создает публикатор
func Dial(ctx context.Context, cfg *rabbitmq.Config, log logger.Logger, m *metrics.Metrics) (*AMQPPublisher, error) {
	conn, err := rabbitmq.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect audit broker: %w", err)
	}
	p := NewAMQPPublisher(rabbitmq.NewProducer(conn, cfg), conn.Close, log, m).WithRetries(cfg.MaxRetries)
	p.check = conn.HealthCheck
	return p, nil
}

// WithRetries задает число повторов публикации, отрицательное значение считается нулем
func (p *AMQPPublisher) WithRetries(n int) *AMQPPublisher {
	if n < 0 {
		n = 0
	}
	p.retries = n
	return p
}

// HealthCheck проверяет подключение к брокеру
func (p *AMQPPublisher) HealthCheck(ctx context.Context) error {
	if p.check == nil {
		return nil
	}
	return p.check(ctx)
}

// Publish отправляет событие и ждет подтверждения брокера
func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, data interface{}) {
	env := NewEnvelope(eventType, data)

	err := p.publish(ctx, env)
	p.metrics.AuditPublished(eventType, err)
	if err != nil {
		p.logger.Warn("Failed to publish audit event",
			logger.String("event_type", eventType),
			logger.String("event_id", env.Meta.ID),
			logger.Error(err))
		return
	}

	p.logger.Debug("Audit event published",
		logger.String("event_type", eventType),
		logger.String("event_id", env.Meta.ID))
}

func (p *AMQPPublisher) publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	// Страница уже получила ответ сервера, поэтому ее отмена не должна терять событие
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	return p.sender.PublishWithRetry(ctx, body, p.retries, retryInterval,
		rabbitmq.WithMessageID(env.Meta.ID),
		rabbitmq.WithType(env.Meta.Type),
		rabbitmq.WithHeaders(amqp091.Table{
			"event_type": env.Meta.Type,
			"producer":   env.Meta.Producer,
		}),
	)
}

// Close закрывает подключение к брокеру
func (p *AMQPPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
