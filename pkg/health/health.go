package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker интерфейс для проверки здоровья процесса
type HealthChecker interface {
	Check(ctx context.Context) *HealthStatus
}

// HealthStatus представляет статус здоровья процесса
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Status `json:"services,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// Status представляет статус зависимости
type Status struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// CheckFunc проверка одной зависимости (API, Redis, RabbitMQ)
type CheckFunc func(ctx context.Context) error

// ComponentChecker проверяет зарегистрированные зависимости
type ComponentChecker struct {
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewComponentChecker создает новый ComponentChecker
func NewComponentChecker(version string, timeout time.Duration) *ComponentChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ComponentChecker{
		version: version,
		timeout: timeout,
		checks:  make(map[string]CheckFunc),
	}
}

// Register добавляет проверку зависимости
func (c *ComponentChecker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Names возвращает имена зарегистрированных проверок
func (c *ComponentChecker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check выполняет все проверки параллельно
func (c *ComponentChecker) Check(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		services = make(map[string]Status, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			st := Status{Status: StatusHealthy}
			if err := check(ctx); err != nil {
				st = Status{Status: StatusUnhealthy, Details: err.Error()}
			}
			mu.Lock()
			services[name] = st
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, st := range services {
		if st.Status != StatusHealthy {
			overall = StatusUnhealthy
			break
		}
	}

	return &HealthStatus{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  services,
		Version:   c.version,
	}
}

// Handler создает HTTP обработчик для health check эндпоинта.
// Отвечает 503, если хотя бы одна зависимость недоступна.
func Handler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	}
}

// LiveHandler создает HTTP обработчик для live check эндпоинта
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}
