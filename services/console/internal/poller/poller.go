// Package poller реализует отменяемый периодический опрос API.
package poller

import (
	"context"
	"sync"
	"time"

	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/services/console/internal/metrics"
)

// Func одна итерация опроса
type Func func(ctx context.Context) error

// Poller запускает Func сразу и затем через фиксированный интервал.
// Следующий запуск не ждет завершения предыдущего.
type Poller struct {
	name     string
	interval time.Duration
	fn       Func
	logger   logger.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runs    sync.WaitGroup
	running bool
}

// New создает Poller
func New(name string, interval time.Duration, fn Func, log logger.Logger, m *metrics.Metrics) *Poller {
	if log == nil {
		log = logger.NewNop()
	}
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   log.With(logger.String("poller", name)),
		metrics:  m,
	}
}

// Name имя поллера
func (p *Poller) Name() string {
	return p.name
}

// Start запускает опрос. Повторный вызов без Stop ничего не делает.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.metrics.PollerStarted(p.name)

	p.tick(ctx)
	go p.loop(ctx, p.done)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.runs.Add(1)
	go func() {
		defer p.runs.Done()
		if ctx.Err() != nil {
			return
		}
		err := p.fn(ctx)
		if ctx.Err() != nil {
			// Остановлен во время запроса, результат уже никому не нужен
			return
		}
		p.metrics.PollTick(p.name, err)
		if err != nil {
			p.logger.Warn("Poll failed", logger.Error(err))
		}
	}()
}

// Stop отменяет опрос и ждет завершения цикла и всех запущенных итераций.
// После возврата Func больше не вызывается.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.runs.Wait()
	p.metrics.PollerStopped(p.name)
}

// Running сообщает, запущен ли опрос
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
