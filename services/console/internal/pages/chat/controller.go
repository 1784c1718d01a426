// Package chat управляет страницей диалогов: опрос списка, опрос истории
// выбранного диалога, отправка сообщений и переключение AI.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/pkg/validation"
	"ExtraGPTConsole/services/console/internal/audit"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/metrics"
	"ExtraGPTConsole/services/console/internal/poller"
	"ExtraGPTConsole/services/console/internal/session"
)

// Интервалы опроса по умолчанию
const (
	DefaultListInterval    = 5 * time.Second
	DefaultHistoryInterval = 3 * time.Second
)

// maxMessageLength ограничение длины сообщения оператора
const maxMessageLength = 4096

// API методы чата, которые использует страница
type API interface {
	Conversations(ctx context.Context, businessID int64) (*domain.ConversationsResponse, error)
	History(ctx context.Context, conversationID int64) (*domain.MessagesResponse, error)
	Send(ctx context.Context, req domain.SendMessageRequest) error
	ToggleAI(ctx context.Context, req domain.ToggleAIRequest) (*domain.ToggleAIResponse, error)
}

// Options зависимости контроллера
type Options struct {
	API             API
	Session         session.Accessor
	Audit           audit.Publisher
	Logger          logger.Logger
	Metrics         *metrics.Metrics
	ListInterval    time.Duration
	HistoryInterval time.Duration
}

// Snapshot состояние страницы для отрисовки
type Snapshot struct {
	Mounted    bool
	BusinessID int64
	// Conversations список с учетом поиска
	Conversations []domain.Conversation
	Total         int
	Search        string
	Selected      *domain.Conversation
	Messages      []domain.Message
	Draft         string
	Busy          bool
	Error         string
	// Ended сессия завершена, страница больше не опрашивает API
	Ended bool
}

// Controller состояние страницы чата. Владеет своими поллерами и
// останавливает их в Unmount и при смене выбранного диалога.
type Controller struct {
	api       API
	session   session.Accessor
	audit     audit.Publisher
	logger    logger.Logger
	metrics   *metrics.Metrics
	validator *validation.Validator
	listEvery time.Duration
	histEvery time.Duration

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	mounted       bool
	terminated    bool
	ended         chan struct{}
	businessID    int64
	conversations []domain.Conversation
	search        string
	selected      *domain.Conversation
	selectGen     uint64
	messages      []domain.Message
	draft         string
	busy          bool
	lastErr       error
	listPoller    *poller.Poller
	historyPoller *poller.Poller
	listeners     []func()
}

// NewController создает контроллер страницы чата
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Audit == nil {
		opts.Audit = audit.Nop{}
	}
	if opts.ListInterval <= 0 {
		opts.ListInterval = DefaultListInterval
	}
	if opts.HistoryInterval <= 0 {
		opts.HistoryInterval = DefaultHistoryInterval
	}
	return &Controller{
		api:       opts.API,
		session:   opts.Session,
		audit:     opts.Audit,
		logger:    opts.Logger.With(logger.String("page", "chat")),
		metrics:   opts.Metrics,
		validator: validation.NewValidator(),
		listEvery: opts.ListInterval,
		histEvery: opts.HistoryInterval,
		ended:     make(chan struct{}),
	}
}

// OnChange подписывает на изменения состояния.
// Обработчик вызывается вне блокировки и может читать Snapshot.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) notify() {
	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Mount запускает опрос списка диалогов текущего бизнеса.
// Без бизнеса страница остается пустой и ничего не запрашивает.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted || c.terminated {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	businessID, ok := c.session.BusinessID()
	if !ok {
		c.mu.Unlock()
		c.logger.Info("No business associated, conversations are not polled")
		c.notify()
		return
	}
	c.businessID = businessID
	c.listPoller = poller.New("conversations", c.listEvery, func(ctx context.Context) error {
		return c.fetchConversations(ctx, businessID)
	}, c.logger, c.metrics)
	c.listPoller.Start(c.ctx)
	c.mu.Unlock()

	c.notify()
}

// Unmount останавливает оба поллера. После возврата состояние больше не меняется опросом.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	c.cancel()
	list, history := c.listPoller, c.historyPoller
	c.listPoller, c.historyPoller = nil, nil
	c.mu.Unlock()

	stopPollers(list, history)
}

// Terminate размонтирует страницу по окончании сессии.
// Вызывается из обработчика перехода ко входу, в том числе изнутри итерации опроса:
// опрос отменяется сразу, а ожидание поллеров идет в отдельной горутине.
// Ended закрывается, когда поллеры остановлены.
func (c *Controller) Terminate(reason string) {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.mounted = false
	if c.cancel != nil {
		c.cancel()
	}
	c.lastErr = pkgerrors.New(pkgerrors.ErrSessionExpired, reason)
	list, history := c.listPoller, c.historyPoller
	c.listPoller, c.historyPoller = nil, nil
	c.mu.Unlock()

	c.logger.Info("Session ended, page unmounted", logger.String("reason", reason))
	go func() {
		defer close(c.ended)
		stopPollers(list, history)
		c.notify()
	}()
}

// Ended закрывается после Terminate
func (c *Controller) Ended() <-chan struct{} {
	return c.ended
}

func stopPollers(pollers ...*poller.Poller) {
	for _, p := range pollers {
		if p != nil {
			p.Stop()
		}
	}
}

// Refresh синхронно загружает список диалогов
func (c *Controller) Refresh(ctx context.Context) error {
	businessID, ok := c.session.BusinessID()
	if !ok {
		return pkgerrors.New(pkgerrors.ErrValidation, "no business associated with this account")
	}
	return c.fetchConversations(ctx, businessID)
}

func (c *Controller) fetchConversations(ctx context.Context, businessID int64) error {
	resp, err := c.api.Conversations(ctx, businessID)
	if err != nil {
		// Предыдущий список остается на экране
		return err
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return nil
	}
	c.conversations = resp.Conversations
	c.businessID = businessID
	c.mu.Unlock()

	c.notify()
	return nil
}

// Select выбирает диалог из загруженного списка и запускает опрос его истории.
// Опрос предыдущего диалога останавливается до запуска нового.
func (c *Controller) Select(id int64) error {
	c.mu.Lock()
	conv, ok := c.find(id)
	if !ok {
		c.mu.Unlock()
		return pkgerrors.New(pkgerrors.ErrNotFound, "conversation not found").WithDetails("Диалог не найден в списке")
	}
	c.selectGen++
	gen := c.selectGen
	c.selected = &conv
	c.messages = nil
	c.lastErr = nil
	old := c.historyPoller
	c.historyPoller = nil
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	c.mu.Lock()
	if gen != c.selectGen || !c.mounted {
		c.mu.Unlock()
		c.notify()
		return nil
	}
	c.historyPoller = poller.New("history", c.histEvery, func(ctx context.Context) error {
		return c.fetchHistory(ctx, id)
	}, c.logger.With(logger.Int64("conversation_id", id)), c.metrics)
	c.historyPoller.Start(c.ctx)
	c.mu.Unlock()

	c.notify()
	return nil
}

// Deselect снимает выбор и останавливает опрос истории
func (c *Controller) Deselect() {
	c.mu.Lock()
	c.selectGen++
	c.selected = nil
	c.messages = nil
	old := c.historyPoller
	c.historyPoller = nil
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	c.notify()
}

func (c *Controller) fetchHistory(ctx context.Context, id int64) error {
	resp, err := c.api.History(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if ctx.Err() != nil || c.selected == nil || c.selected.ID != id {
		c.mu.Unlock()
		return nil
	}
	// Полная замена, порядок задает сервер
	c.messages = resp.Messages
	c.mu.Unlock()

	c.notify()
	return nil
}

// LoadHistory синхронно загружает историю диалога без опроса
func (c *Controller) LoadHistory(ctx context.Context, id int64) (*domain.MessagesResponse, error) {
	return c.api.History(ctx, id)
}

func (c *Controller) find(id int64) (domain.Conversation, bool) {
	for _, conv := range c.conversations {
		if conv.ID == id {
			return conv, true
		}
	}
	return domain.Conversation{}, false
}

// Search фильтрует загруженный список по имени клиента. Запросов к API не делает.
func (c *Controller) Search(term string) {
	c.mu.Lock()
	c.search = term
	c.mu.Unlock()
	c.notify()
}

// Visible возвращает диалоги, подходящие под поиск
func (c *Controller) Visible() []domain.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible()
}

func (c *Controller) visible() []domain.Conversation {
	term := strings.TrimSpace(c.search)
	out := make([]domain.Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		if conv.Matches(term) {
			out = append(out, conv)
		}
	}
	return out
}

// SetDraft меняет текст черновика
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Send отправляет черновик в выбранный диалог.
// При успехе черновик очищается, новое сообщение появится со следующим опросом истории.
// При ошибке черновик сохраняется для повторной отправки.
func (c *Controller) Send(ctx context.Context) error {
	c.mu.Lock()
	text := c.draft
	var id int64
	if c.selected != nil {
		id = c.selected.ID
	}
	c.mu.Unlock()

	if err := c.send(ctx, id, text); err != nil {
		return err
	}

	c.mu.Lock()
	if c.draft == text {
		c.draft = ""
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// SendTo отправляет сообщение в диалог без выбора
func (c *Controller) SendTo(ctx context.Context, id int64, text string) error {
	return c.send(ctx, id, text)
}

func (c *Controller) send(ctx context.Context, id int64, text string) error {
	text = strings.TrimSpace(text)
	if err := c.validator.ValidateID(id, "conversation"); err != nil {
		return c.fail(pkgerrors.Invalid(err))
	}
	if err := c.validator.ValidateStringLength(text, "message", 1, maxMessageLength); err != nil {
		return c.fail(pkgerrors.Invalid(err))
	}

	c.setBusy(true)
	err := c.api.Send(ctx, domain.SendMessageRequest{ConversationID: id, Text: text})
	c.setBusy(false)
	if err != nil {
		c.logger.Warn("Failed to send message", logger.Int64("conversation_id", id), logger.Error(err))
		return c.fail(err)
	}

	c.clearError()
	c.audit.Publish(ctx, audit.EventMessageSent, map[string]interface{}{
		"business_id":     c.currentBusiness(),
		"conversation_id": id,
		"length":          len([]rune(text)),
	})
	return nil
}

// ToggleAI переключает AI в выбранном диалоге
func (c *Controller) ToggleAI(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return false, c.fail(pkgerrors.Invalid(c.validator.ValidateID(0, "conversation")))
	}
	id, current := c.selected.ID, c.selected.AIEnabled
	c.mu.Unlock()

	return c.toggle(ctx, id, !current)
}

// ToggleConversationAI переключает AI в диалоге из загруженного списка
func (c *Controller) ToggleConversationAI(ctx context.Context, id int64) (bool, error) {
	c.mu.Lock()
	conv, ok := c.find(id)
	c.mu.Unlock()
	if !ok {
		return false, c.fail(pkgerrors.New(pkgerrors.ErrNotFound, "conversation not found").WithDetails("Диалог не найден в списке"))
	}
	return c.toggle(ctx, id, !conv.AIEnabled)
}

// toggle отправляет желаемое значение и применяет то, что подтвердил сервер,
// к выбранному диалогу и к записи в списке. Остальные записи не меняются.
func (c *Controller) toggle(ctx context.Context, id int64, desired bool) (bool, error) {
	c.setBusy(true)
	resp, err := c.api.ToggleAI(ctx, domain.ToggleAIRequest{ConversationID: id, AIEnabled: desired})
	c.setBusy(false)
	if err != nil {
		c.logger.Warn("Failed to toggle AI", logger.Int64("conversation_id", id), logger.Error(err))
		return false, c.fail(err)
	}

	c.mu.Lock()
	if c.selected != nil && c.selected.ID == id {
		c.selected.AIEnabled = resp.AIEnabled
	}
	for i := range c.conversations {
		if c.conversations[i].ID == id {
			c.conversations[i].AIEnabled = resp.AIEnabled
		}
	}
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()

	c.audit.Publish(ctx, audit.EventAIToggled, map[string]interface{}{
		"business_id":     c.currentBusiness(),
		"conversation_id": id,
		"ai_enabled":      resp.AIEnabled,
	})
	return resp.AIEnabled, nil
}

func (c *Controller) currentBusiness() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.businessID
}

func (c *Controller) setBusy(busy bool) {
	c.mu.Lock()
	c.busy = busy
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Controller) clearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
}

// Snapshot возвращает копию состояния
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Mounted:       c.mounted,
		BusinessID:    c.businessID,
		Conversations: c.visible(),
		Total:         len(c.conversations),
		Search:        c.search,
		Messages:      append([]domain.Message(nil), c.messages...),
		Draft:         c.draft,
		Busy:          c.busy,
		Ended:         c.terminated,
	}
	if c.selected != nil {
		selected := *c.selected
		snap.Selected = &selected
	}
	if c.lastErr != nil {
		snap.Error = pkgerrors.UserMessage(c.lastErr)
	}
	return snap
}
