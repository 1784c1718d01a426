package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ExtraGPTConsole/pkg/logger"
	pkgmetrics "ExtraGPTConsole/pkg/metrics"
)

// ServiceName имя процесса в метриках и трассировке
const ServiceName = "extragpt-console"

// Metrics содержит метрики консоли. Нулевой указатель допустим и ничего не пишет.
type Metrics struct {
	*pkgmetrics.Metrics
	logger logger.Logger

	TokenRefreshes  *prometheus.CounterVec
	PollTicks       *prometheus.CounterVec
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	AuditEvents     *prometheus.CounterVec
}

// New создает метрики консоли в собственном реестре
func New(log logger.Logger) *Metrics {
	base := pkgmetrics.NewMetrics(ServiceName)
	ns := "extragpt_console"

	m := &Metrics{
		Metrics: base,
		logger:  log,
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "session",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts",
		}, []string{"result"}),
		PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "poller",
			Name:      "ticks_total",
			Help:      "Polling fetches by poller and result",
		}, []string{"poller", "result"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cli",
			Name:      "commands_total",
			Help:      "Executed console commands",
		}, []string{"command", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "cli",
			Name:      "command_duration_seconds",
			Help:      "Console command duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Audit events by type and publish result",
		}, []string{"type", "result"}),
	}

	base.MustRegister(m.TokenRefreshes, m.PollTicks, m.Commands, m.CommandDuration, m.AuditEvents)
	return m
}

// APIRequest регистрирует запрос к API. status == 0 означает ошибку транспорта.
func (m *Metrics) APIRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ObserveRequest(method, path, status, duration)
}

// StartSpan открывает спан. Без метрик спан берется у глобального провайдера.
func (m *Metrics) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if m == nil {
		return otel.Tracer(ServiceName).Start(ctx, name, trace.WithAttributes(attrs...))
	}
	return m.Metrics.StartSpan(ctx, name, attrs...)
}

// TokenRefresh регистрирует попытку обновления токена
func (m *Metrics) TokenRefresh(success bool) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(statusLabel(success)).Inc()
}

// PollTick регистрирует один цикл опроса
func (m *Metrics) PollTick(poller string, err error) {
	if m == nil {
		return
	}
	m.PollTicks.WithLabelValues(poller, statusLabel(err == nil)).Inc()
}

// PollerStarted отмечает запуск поллера
func (m *Metrics) PollerStarted(poller string) {
	if m == nil {
		return
	}
	m.IncWorkers("poller_" + poller)
}

// PollerStopped отмечает остановку поллера
func (m *Metrics) PollerStopped(poller string) {
	if m == nil {
		return
	}
	m.DecWorkers("poller_" + poller)
}

// AuditPublished регистрирует публикацию события аудита
func (m *Metrics) AuditPublished(eventType string, err error) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(eventType, statusLabel(err == nil)).Inc()
}

// CommandExecuted регистрирует выполнение команды
func (m *Metrics) CommandExecuted(command string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.logger != nil {
		m.logger.Debug("Command executed",
			logger.String("command", command),
			logger.Bool("success", success),
			logger.Duration("duration", duration))
	}
	m.Commands.WithLabelValues(command, statusLabel(success)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// CommandTimer таймер для команд консоли
type CommandTimer struct {
	metrics *Metrics
	command string
	start   time.Time
}

// NewCommandTimer создает новый таймер для команды
func (m *Metrics) NewCommandTimer(command string) *CommandTimer {
	return &CommandTimer{metrics: m, command: command, start: time.Now()}
}

// Finish завершает команду и регистрирует метрики
func (t *CommandTimer) Finish(success bool) {
	t.metrics.CommandExecuted(t.command, success, time.Since(t.start))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
