package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Metrics представляет систему метрик процесса
type Metrics struct {
	// Registry собственный реестр, чтобы несколько экземпляров не конфликтовали
	Registry *prometheus.Registry

	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsCount     *prometheus.CounterVec

	// ActiveWorkers число работающих фоновых задач (поллеры, экраны)
	ActiveWorkers *prometheus.GaugeVec

	// OpenTelemetry Tracer
	Tracer trace.Tracer `json:"-"`
}

// NewMetrics создает новую систему метрик
func NewMetrics(serviceName string) *Metrics {
	namespace := sanitize(serviceName)
	registry := prometheus.NewRegistry()

	requestCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	errorsCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total number of HTTP errors",
		},
		[]string{"method", "endpoint", "error_type"},
	)

	activeWorkers := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "active_workers",
			Help:      "Number of running background workers",
		},
		[]string{"type"},
	)

	registry.MustRegister(requestCount, requestDuration, errorsCount, activeWorkers)

	return &Metrics{
		Registry:        registry,
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
		ErrorsCount:     errorsCount,
		ActiveWorkers:   activeWorkers,
		Tracer:          otel.Tracer(serviceName),
	}
}

// MustRegister регистрирует дополнительные коллекторы в реестре
func (m *Metrics) MustRegister(collectors ...prometheus.Collector) {
	m.Registry.MustRegister(collectors...)
}

// GetHandler возвращает HTTP обработчик для эндпоинта /metrics
func (m *Metrics) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRequest записывает исходящий запрос к API
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	endpoint := NormalizeEndpoint(path)
	statusLabel := "transport_error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}

	m.RequestCount.WithLabelValues(method, endpoint, statusLabel).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())

	if errorType := classify(status); errorType != "" {
		m.ErrorsCount.WithLabelValues(method, endpoint, errorType).Inc()
	}
}

// StartSpan открывает спан для операции
func (m *Metrics) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Middleware создает middleware для сбора метрик входящих запросов
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, span := m.Tracer.Start(r.Context(), r.URL.Path)
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		m.ObserveRequest(r.Method, r.URL.Path, wrapped.statusCode, duration)

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.Int("http.status_code", wrapped.statusCode),
			attribute.Float64("http.duration", duration.Seconds()),
		)
	})
}

// responseWriter обертка для перехвата статуса ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader перехватывает установку статуса
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// InitializeOpenTelemetry инициализирует провайдер трассировки и делает его глобальным
func InitializeOpenTelemetry(serviceName, version string) *tracesdk.TracerProvider {
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp
}

// IncWorkers увеличивает счетчик фоновых задач
func (m *Metrics) IncWorkers(workerType string) {
	m.ActiveWorkers.WithLabelValues(workerType).Inc()
}

// DecWorkers уменьшает счетчик фоновых задач
func (m *Metrics) DecWorkers(workerType string) {
	m.ActiveWorkers.WithLabelValues(workerType).Dec()
}

// NormalizeEndpoint заменяет числовые сегменты пути на :id,
// чтобы метки не разрастались по идентификаторам
func NormalizeEndpoint(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func classify(status int) string {
	switch {
	case status == 0:
		return "transport_error"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return ""
	}
}

func sanitize(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(strings.ToLower(name))
}
