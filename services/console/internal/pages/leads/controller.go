// Package leads управляет страницей лидов.
// Список перезагружается только по действию пользователя, опроса нет.
package leads

import (
	"context"
	"sync"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/services/console/internal/audit"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/session"
)

// API методы лидов
type API interface {
	List(ctx context.Context, businessID int64, status domain.LeadStatus) (*domain.LeadsResponse, error)
	UpdateStatus(ctx context.Context, leadID int64, status domain.LeadStatus) error
}

// Snapshot состояние страницы
type Snapshot struct {
	Filter domain.LeadStatus
	Leads  []domain.Lead
	Total  int
	Stats  domain.LeadStats
	Loaded bool
	Busy   bool
	Error  string
}

// Controller страница лидов
type Controller struct {
	api     API
	session session.Accessor
	audit   audit.Publisher
	logger  logger.Logger

	mu      sync.Mutex
	filter  domain.LeadStatus
	leads   []domain.Lead
	total   int
	stats   domain.LeadStats
	loaded  bool
	busy    bool
	lastErr error
}

// NewController создает контроллер страницы лидов
func NewController(api API, s session.Accessor, pub audit.Publisher, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	if pub == nil {
		pub = audit.Nop{}
	}
	return &Controller{
		api:     api,
		session: s,
		audit:   pub,
		logger:  log.With(logger.String("page", "leads")),
	}
}

// Load загружает лиды и счетчики по статусам с текущим фильтром.
// При ошибке ранее загруженные строки остаются.
func (c *Controller) Load(ctx context.Context) error {
	businessID, ok := c.session.BusinessID()
	if !ok {
		return c.fail(pkgerrors.New(pkgerrors.ErrValidation, "no business associated with this account"))
	}

	c.mu.Lock()
	filter := c.filter
	c.busy = true
	c.mu.Unlock()

	resp, err := c.api.List(ctx, businessID, filter)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		c.lastErr = err
		c.logger.Warn("Failed to load leads", logger.Int64("business_id", businessID), logger.Error(err))
		return err
	}
	if filter != c.filter {
		// Фильтр сменился, пока шел запрос. Ответ для него придет отдельно.
		return nil
	}
	c.leads = resp.Leads
	c.total = resp.Total
	c.stats = resp.Stats
	c.loaded = true
	c.lastErr = nil
	return nil
}

// SetFilter меняет фильтр по статусу и перезагружает список.
// Пустой статус означает все лиды.
func (c *Controller) SetFilter(ctx context.Context, status string) error {
	var filter domain.LeadStatus
	if status != "" {
		parsed, err := domain.ParseLeadStatus(status)
		if err != nil {
			return c.fail(pkgerrors.Invalid(err))
		}
		filter = parsed
	}

	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
	return c.Load(ctx)
}

// UpdateStatus меняет статус лида и затем полностью перезагружает список и счетчики.
// Допускается любой переход, в том числе в тот же статус.
func (c *Controller) UpdateStatus(ctx context.Context, leadID int64, status string) error {
	next, err := domain.ParseLeadStatus(status)
	if err != nil {
		return c.fail(pkgerrors.Invalid(err))
	}
	if leadID <= 0 {
		return c.fail(pkgerrors.New(pkgerrors.ErrValidation, "invalid lead id"))
	}

	if err := c.api.UpdateStatus(ctx, leadID, next); err != nil {
		c.logger.Warn("Failed to update lead status",
			logger.Int64("lead_id", leadID),
			logger.String("status", string(next)),
			logger.Error(err))
		return c.fail(err)
	}

	businessID, _ := c.session.BusinessID()
	c.audit.Publish(ctx, audit.EventLeadStatusChanged, map[string]interface{}{
		"business_id": businessID,
		"lead_id":     leadID,
		"status":      next,
	})

	return c.Load(ctx)
}

// Lead возвращает загруженный лид
func (c *Controller) Lead(id int64) (domain.Lead, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.leads {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Lead{}, false
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	return err
}

// Snapshot возвращает копию состояния
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Filter: c.filter,
		Leads:  append([]domain.Lead(nil), c.leads...),
		Total:  c.total,
		Stats:  c.stats,
		Loaded: c.loaded,
		Busy:   c.busy,
	}
	if c.lastErr != nil {
		snap.Error = pkgerrors.UserMessage(c.lastErr)
	}
	return snap
}
