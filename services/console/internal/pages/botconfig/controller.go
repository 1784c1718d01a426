// Package botconfig управляет настройками бота бизнеса.
//
// Каждая вкладка хранит черновик отдельно от последней копии с сервера,
// поэтому несохраненные правки и подтвержденное состояние не смешиваются.
// Сохранение не оптимистично: после успешного ответа копия перечитывается
// с сервера, при ошибке черновик остается как был.
package botconfig

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/pkg/validation"
	"ExtraGPTConsole/services/console/internal/audit"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/session"
)

const maxPromptLength = 8000

var (
	telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{20,}$`)
	instagramIDPattern   = regexp.MustCompile(`^\d+$`)
)

// API методы настроек бота
type API interface {
	GetConfig(ctx context.Context, businessID int64) (*domain.BotConfig, error)
	UpdateConfig(ctx context.Context, req domain.UpdateBotConfigRequest) error
	TelegramStatus(ctx context.Context, businessID int64) (*domain.TelegramStatus, error)
	TelegramConnect(ctx context.Context, req domain.TelegramLoginRequest) (*domain.TelegramStatus, error)
	InstagramStatus(ctx context.Context, businessID int64) (*domain.InstagramStatus, error)
	InstagramUpdateID(ctx context.Context, req domain.InstagramUpdateRequest) error
	InstagramLoginURL(businessID int64) string
	GetSettings(ctx context.Context, businessID int64) (*domain.BusinessSettings, error)
	UpdateSettings(ctx context.Context, req domain.UpdateBusinessSettingsRequest) error
	GlobalBotStatus(ctx context.Context, businessID int64) (*domain.GlobalBotStatus, error)
	UpdateReportTime(ctx context.Context, req domain.ReportTimeRequest) error
	SendTestReport(ctx context.Context, businessID int64) error
}

// Form черновик и подтвержденная сервером копия ресурса
type Form[D, C any] struct {
	Draft     D
	Confirmed C
	Loaded    bool
	Busy      bool
	// Saved последнее сохранение прошло успешно
	Saved bool
	Error string
}

// GeneralDraft вкладка общих настроек AI
type GeneralDraft struct {
	BotName string
	Prompt  string
}

// TelegramDraft вкладка подключения Telegram
type TelegramDraft struct {
	Token string
}

// InstagramDraft вкладка подключения Instagram
type InstagramDraft struct {
	BusinessAccountID string
}

// ScheduleDraft вкладка расписания и отчетов.
// Пустое окно паузы означает, что AI не останавливается.
type ScheduleDraft struct {
	DailyReportTime  string
	PauseFrom        *string
	PauseTo          *string
	FollowupTemplate *string
}

// GlobalDraft время отчета глобального бота
type GlobalDraft struct {
	ReportTime string
}

// InstagramStep этап подключения Instagram
type InstagramStep int

const (
	// InstagramAuthorize нужно пройти OAuth по ссылке
	InstagramAuthorize InstagramStep = iota
	// InstagramEnterID нужно ввести id бизнес аккаунта
	InstagramEnterID
	InstagramReady
)

func (s InstagramStep) String() string {
	switch s {
	case InstagramAuthorize:
		return "authorize"
	case InstagramEnterID:
		return "enter_business_id"
	default:
		return "ready"
	}
}

// Controller страница настроек бота
type Controller struct {
	api       API
	session   session.Accessor
	audit     audit.Publisher
	logger    logger.Logger
	validator *validation.Validator

	mu        sync.Mutex
	general   Form[GeneralDraft, domain.BotConfig]
	telegram  Form[TelegramDraft, domain.TelegramStatus]
	instagram Form[InstagramDraft, domain.InstagramStatus]
	schedule  Form[ScheduleDraft, domain.BusinessSettings]
	global    Form[GlobalDraft, domain.GlobalBotStatus]
}

// NewController создает контроллер настроек бота
func NewController(api API, s session.Accessor, pub audit.Publisher, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	if pub == nil {
		pub = audit.Nop{}
	}
	return &Controller{
		api:       api,
		session:   s,
		audit:     pub,
		logger:    log.With(logger.String("page", "bot-config")),
		validator: validation.NewValidator(),
	}
}

func (c *Controller) business() (int64, error) {
	id, ok := c.session.BusinessID()
	if !ok {
		return 0, pkgerrors.New(pkgerrors.ErrValidation, "no business associated with this account")
	}
	return id, nil
}

func errText(err error) string {
	return pkgerrors.UserMessage(err)
}

// Load загружает все вкладки независимо друг от друга
func (c *Controller) Load(ctx context.Context) error {
	if _, err := c.business(); err != nil {
		return err
	}
	return errors.Join(
		c.LoadGeneral(ctx),
		c.LoadTelegram(ctx),
		c.LoadInstagram(ctx),
		c.LoadSchedule(ctx),
		c.LoadGlobal(ctx),
	)
}

// LoadGeneral загружает общие настройки AI
func (c *Controller) LoadGeneral(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}
	cfg, err := c.api.GetConfig(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.general.Error = errText(err)
		return err
	}
	c.general.Confirmed = *cfg
	c.general.Draft = GeneralDraft{BotName: cfg.BotName, Prompt: cfg.Prompt}
	c.general.Loaded = true
	c.general.Error = ""
	return nil
}

// SetGeneral меняет черновик общих настроек
func (c *Controller) SetGeneral(d GeneralDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.general.Draft = d
	c.general.Saved = false
}

// SaveGeneral сохраняет имя бота и промпт
func (c *Controller) SaveGeneral(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}

	c.mu.Lock()
	draft := c.general.Draft
	c.mu.Unlock()

	if err := c.validateGeneral(draft); err != nil {
		return c.failGeneral(err)
	}

	c.setBusy(&c.general.Busy, true)
	err = c.api.UpdateConfig(ctx, domain.UpdateBotConfigRequest{
		BusinessID: id,
		BotName:    strings.TrimSpace(draft.BotName),
		Prompt:     draft.Prompt,
	})
	c.setBusy(&c.general.Busy, false)
	if err != nil {
		c.logger.Warn("Failed to save bot config", logger.Int64("business_id", id), logger.Error(err))
		return c.failGeneral(err)
	}

	c.audit.Publish(ctx, audit.EventBotConfigSaved, map[string]interface{}{"business_id": id, "bot_name": strings.TrimSpace(draft.BotName)})
	if err := c.LoadGeneral(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.general.Saved = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) validateGeneral(d GeneralDraft) error {
	if err := c.validator.ValidateRequired(d.BotName, "bot_name"); err != nil {
		return pkgerrors.Invalid(err)
	}
	if err := c.validator.ValidateStringLength(d.Prompt, "prompt", 0, maxPromptLength); err != nil {
		return pkgerrors.Invalid(err)
	}
	return nil
}

func (c *Controller) failGeneral(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.general.Error = errText(err)
	c.general.Saved = false
	return err
}

// LoadTelegram загружает статус подключения Telegram
func (c *Controller) LoadTelegram(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}
	status, err := c.api.TelegramStatus(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.telegram.Error = errText(err)
		return err
	}
	c.telegram.Confirmed = *status
	c.telegram.Loaded = true
	c.telegram.Error = ""
	return nil
}

// SetTelegram меняет черновик токена
func (c *Controller) SetTelegram(d TelegramDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telegram.Draft = d
	c.telegram.Saved = false
}

// ConnectTelegram отправляет токен бота, сервер регистрирует webhook одним вызовом
func (c *Controller) ConnectTelegram(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}

	c.mu.Lock()
	token := strings.TrimSpace(c.telegram.Draft.Token)
	c.mu.Unlock()

	if err := c.validator.ValidateRequired(token, "telegram_token"); err != nil {
		return c.failTelegram(pkgerrors.Invalid(err))
	}
	if !telegramTokenPattern.MatchString(token) {
		return c.failTelegram(pkgerrors.New(pkgerrors.ErrValidation, "invalid telegram token").
			WithDetails("telegram_token must look like 123456:ABC..."))
	}

	c.setBusy(&c.telegram.Busy, true)
	status, err := c.api.TelegramConnect(ctx, domain.TelegramLoginRequest{BusinessID: id, TelegramToken: token})
	c.setBusy(&c.telegram.Busy, false)
	if err != nil {
		c.logger.Warn("Failed to connect telegram", logger.Int64("business_id", id), logger.Error(err))
		return c.failTelegram(err)
	}

	c.mu.Lock()
	c.telegram.Confirmed = *status
	c.telegram.Loaded = true
	c.telegram.Draft = TelegramDraft{}
	c.telegram.Saved = true
	c.telegram.Error = ""
	c.mu.Unlock()

	c.audit.Publish(ctx, audit.EventTelegramConnected, map[string]interface{}{"business_id": id, "webhook_set": status.WebhookSet})
	return nil
}

func (c *Controller) failTelegram(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telegram.Error = errText(err)
	c.telegram.Saved = false
	return err
}

// LoadInstagram загружает статус подключения Instagram
func (c *Controller) LoadInstagram(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}
	status, err := c.api.InstagramStatus(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.instagram.Error = errText(err)
		return err
	}
	c.instagram.Confirmed = *status
	c.instagram.Loaded = true
	c.instagram.Error = ""
	return nil
}

// InstagramStep текущий этап подключения по флагам статуса
func (c *Controller) InstagramStep() InstagramStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return instagramStep(c.instagram.Confirmed)
}

func instagramStep(s domain.InstagramStatus) InstagramStep {
	switch {
	case !s.HasAccessToken:
		return InstagramAuthorize
	case !s.HasBusinessID:
		return InstagramEnterID
	default:
		return InstagramReady
	}
}

// InstagramLoginURL ссылка первого шага. Пользователь открывает ее в браузере.
func (c *Controller) InstagramLoginURL() (string, error) {
	id, err := c.business()
	if err != nil {
		return "", err
	}
	return c.api.InstagramLoginURL(id), nil
}

// SetInstagram меняет черновик id бизнес аккаунта
func (c *Controller) SetInstagram(d InstagramDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instagram.Draft = d
	c.instagram.Saved = false
}

// SaveInstagramID второй шаг: сохраняет id бизнес аккаунта.
// Доступен только после OAuth, когда у сервера уже есть access token.
func (c *Controller) SaveInstagramID(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}

	c.mu.Lock()
	accountID := strings.TrimSpace(c.instagram.Draft.BusinessAccountID)
	step := instagramStep(c.instagram.Confirmed)
	c.mu.Unlock()

	if step == InstagramAuthorize {
		return c.failInstagram(pkgerrors.New(pkgerrors.ErrValidation, "instagram is not authorized").
			WithDetails("Сначала авторизуйте Instagram по ссылке"))
	}
	if err := c.validator.ValidateRequired(accountID, "instagram_business_id"); err != nil {
		return c.failInstagram(pkgerrors.Invalid(err))
	}
	if !instagramIDPattern.MatchString(accountID) {
		return c.failInstagram(pkgerrors.New(pkgerrors.ErrValidation, "invalid instagram business id").
			WithDetails("instagram_business_id must contain digits only"))
	}

	c.setBusy(&c.instagram.Busy, true)
	err = c.api.InstagramUpdateID(ctx, domain.InstagramUpdateRequest{BusinessID: id, InstagramBusinessID: accountID})
	c.setBusy(&c.instagram.Busy, false)
	if err != nil {
		c.logger.Warn("Failed to update instagram id", logger.Int64("business_id", id), logger.Error(err))
		return c.failInstagram(err)
	}

	c.audit.Publish(ctx, audit.EventInstagramUpdated, map[string]interface{}{"business_id": id, "instagram_business_id": accountID})
	if err := c.LoadInstagram(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.instagram.Saved = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) failInstagram(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instagram.Error = errText(err)
	c.instagram.Saved = false
	return err
}

// LoadSchedule загружает расписание и шаблоны
func (c *Controller) LoadSchedule(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}
	settings, err := c.api.GetSettings(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.schedule.Error = errText(err)
		return err
	}
	c.schedule.Confirmed = *settings
	c.schedule.Draft = ScheduleDraft{
		DailyReportTime:  settings.DailyReportTime,
		PauseFrom:        copyString(settings.AIPauseFrom),
		PauseTo:          copyString(settings.AIPauseTo),
		FollowupTemplate: copyString(settings.FollowupTemplate),
	}
	c.schedule.Loaded = true
	c.schedule.Error = ""
	return nil
}

// SetSchedule меняет черновик расписания
func (c *Controller) SetSchedule(d ScheduleDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedule.Draft = d
	c.schedule.Saved = false
}

// SaveSchedule сохраняет время отчета, окно паузы AI и шаблон follow-up
func (c *Controller) SaveSchedule(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}

	c.mu.Lock()
	draft := c.schedule.Draft
	c.mu.Unlock()

	draft.PauseFrom = blankToNil(draft.PauseFrom)
	draft.PauseTo = blankToNil(draft.PauseTo)
	if err := c.validator.ValidateClock(draft.DailyReportTime, "daily_report_time"); err != nil {
		return c.failSchedule(pkgerrors.Invalid(err))
	}
	if err := c.validator.ValidateWindow(draft.PauseFrom, draft.PauseTo, "ai_pause"); err != nil {
		return c.failSchedule(pkgerrors.Invalid(err))
	}

	c.setBusy(&c.schedule.Busy, true)
	err = c.api.UpdateSettings(ctx, domain.UpdateBusinessSettingsRequest{
		BusinessID:       id,
		DailyReportTime:  draft.DailyReportTime,
		AIPauseFrom:      draft.PauseFrom,
		AIPauseTo:        draft.PauseTo,
		FollowupTemplate: draft.FollowupTemplate,
	})
	c.setBusy(&c.schedule.Busy, false)
	if err != nil {
		c.logger.Warn("Failed to save settings", logger.Int64("business_id", id), logger.Error(err))
		return c.failSchedule(err)
	}

	c.audit.Publish(ctx, audit.EventSettingsSaved, map[string]interface{}{
		"business_id":       id,
		"daily_report_time": draft.DailyReportTime,
		"ai_pause_from":     draft.PauseFrom,
		"ai_pause_to":       draft.PauseTo,
	})
	if err := c.LoadSchedule(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.schedule.Saved = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) failSchedule(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedule.Error = errText(err)
	c.schedule.Saved = false
	return err
}

// LoadGlobal загружает статус глобального бота отчетов
func (c *Controller) LoadGlobal(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}
	status, err := c.api.GlobalBotStatus(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.global.Error = errText(err)
		return err
	}
	c.global.Confirmed = *status
	c.global.Draft = GlobalDraft{ReportTime: status.ReportTime}
	c.global.Loaded = true
	c.global.Error = ""
	return nil
}

// SetGlobal меняет черновик времени отчета
func (c *Controller) SetGlobal(d GlobalDraft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global.Draft = d
	c.global.Saved = false
}

// SaveReportTime сохраняет время ежедневного отчета глобального бота
func (c *Controller) SaveReportTime(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}

	c.mu.Lock()
	reportTime := strings.TrimSpace(c.global.Draft.ReportTime)
	c.mu.Unlock()

	if err := c.validator.ValidateClock(reportTime, "report_time"); err != nil {
		return c.failGlobal(pkgerrors.Invalid(err))
	}

	c.setBusy(&c.global.Busy, true)
	err = c.api.UpdateReportTime(ctx, domain.ReportTimeRequest{BusinessID: id, ReportTime: reportTime})
	c.setBusy(&c.global.Busy, false)
	if err != nil {
		c.logger.Warn("Failed to update report time", logger.Int64("business_id", id), logger.Error(err))
		return c.failGlobal(err)
	}

	c.audit.Publish(ctx, audit.EventReportTimeUpdated, map[string]interface{}{"business_id": id, "report_time": reportTime})
	if err := c.LoadGlobal(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.global.Saved = true
	c.mu.Unlock()
	return nil
}

// SendTestReport просит сервер отправить тестовый отчет.
// Бот должен быть зарегистрирован в Telegram чате.
func (c *Controller) SendTestReport(ctx context.Context) error {
	id, err := c.business()
	if err != nil {
		return err
	}

	c.mu.Lock()
	registered := c.global.Loaded && c.global.Confirmed.Registered
	c.mu.Unlock()
	if !registered {
		return c.failGlobal(pkgerrors.New(pkgerrors.ErrValidation, "global bot is not registered").
			WithDetails("Глобальный бот не подключен к чату"))
	}

	c.setBusy(&c.global.Busy, true)
	err = c.api.SendTestReport(ctx, id)
	c.setBusy(&c.global.Busy, false)
	if err != nil {
		c.logger.Warn("Failed to send test report", logger.Int64("business_id", id), logger.Error(err))
		return c.failGlobal(err)
	}

	c.audit.Publish(ctx, audit.EventTestReportSent, map[string]interface{}{"business_id": id})
	return nil
}

func (c *Controller) failGlobal(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global.Error = errText(err)
	c.global.Saved = false
	return err
}

func (c *Controller) setBusy(flag *bool, busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*flag = busy
}

// General возвращает копию вкладки общих настроек
func (c *Controller) General() Form[GeneralDraft, domain.BotConfig] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.general
}

// Telegram возвращает копию вкладки Telegram
func (c *Controller) Telegram() Form[TelegramDraft, domain.TelegramStatus] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.telegram
}

// Instagram возвращает копию вкладки Instagram
func (c *Controller) Instagram() Form[InstagramDraft, domain.InstagramStatus] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instagram
}

// Schedule возвращает копию вкладки расписания
func (c *Controller) Schedule() Form[ScheduleDraft, domain.BusinessSettings] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule
}

// Global возвращает копию вкладки глобального бота
func (c *Controller) Global() Form[GlobalDraft, domain.GlobalBotStatus] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.global
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
