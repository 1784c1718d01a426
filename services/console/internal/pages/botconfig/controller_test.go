package botconfig

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/services/console/internal/domain"
)

type fakeSession struct{ businessID int64 }

func (f fakeSession) Hydrated() bool     { return true }
func (f fakeSession) User() *domain.User { return &domain.User{ID: 5, Role: domain.RoleOwner} }
func (f fakeSession) BusinessID() (int64, bool) {
	return f.businessID, f.businessID != 0
}

// fakeAPI хранит ресурсы бота в памяти, как это делал бы сервер
type fakeAPI struct {
	config    domain.BotConfig
	telegram  domain.TelegramStatus
	instagram domain.InstagramStatus
	settings  domain.BusinessSettings
	global    domain.GlobalBotStatus

	saveErr      error
	calls        map[string]int
	lastSettings domain.UpdateBusinessSettingsRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		config:   domain.BotConfig{BusinessID: 42, BotName: "Helper", Prompt: "Be nice"},
		settings: domain.BusinessSettings{BusinessID: 42, DailyReportTime: "09:00"},
		global:   domain.GlobalBotStatus{BusinessID: 42, ReportTime: "20:00"},
		calls:    map[string]int{},
	}
}

func (f *fakeAPI) GetConfig(ctx context.Context, businessID int64) (*domain.BotConfig, error) {
	f.calls["GetConfig"]++
	cfg := f.config
	return &cfg, nil
}

func (f *fakeAPI) UpdateConfig(ctx context.Context, req domain.UpdateBotConfigRequest) error {
	f.calls["UpdateConfig"]++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.config.BotName = req.BotName
	f.config.Prompt = req.Prompt
	return nil
}

func (f *fakeAPI) TelegramStatus(ctx context.Context, businessID int64) (*domain.TelegramStatus, error) {
	st := f.telegram
	return &st, nil
}

func (f *fakeAPI) TelegramConnect(ctx context.Context, req domain.TelegramLoginRequest) (*domain.TelegramStatus, error) {
	f.calls["TelegramConnect"]++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.telegram = domain.TelegramStatus{Connected: true, WebhookSet: true, BotName: domain.StringPtr("helper_bot")}
	st := f.telegram
	return &st, nil
}

func (f *fakeAPI) InstagramStatus(ctx context.Context, businessID int64) (*domain.InstagramStatus, error) {
	st := f.instagram
	return &st, nil
}

func (f *fakeAPI) InstagramUpdateID(ctx context.Context, req domain.InstagramUpdateRequest) error {
	f.calls["InstagramUpdateID"]++
	f.instagram.HasBusinessID = true
	f.instagram.Ready = f.instagram.HasAccessToken
	f.instagram.InstagramBusinessID = domain.StringPtr(req.InstagramBusinessID)
	return nil
}

func (f *fakeAPI) InstagramLoginURL(businessID int64) string {
	return "http://api.test/instagram/login?business_id=42"
}

func (f *fakeAPI) GetSettings(ctx context.Context, businessID int64) (*domain.BusinessSettings, error) {
	st := f.settings
	return &st, nil
}

func (f *fakeAPI) UpdateSettings(ctx context.Context, req domain.UpdateBusinessSettingsRequest) error {
	f.calls["UpdateSettings"]++
	f.lastSettings = req
	f.settings.DailyReportTime = req.DailyReportTime
	f.settings.AIPauseFrom = req.AIPauseFrom
	f.settings.AIPauseTo = req.AIPauseTo
	f.settings.FollowupTemplate = req.FollowupTemplate
	return nil
}

func (f *fakeAPI) GlobalBotStatus(ctx context.Context, businessID int64) (*domain.GlobalBotStatus, error) {
	st := f.global
	return &st, nil
}

func (f *fakeAPI) UpdateReportTime(ctx context.Context, req domain.ReportTimeRequest) error {
	f.calls["UpdateReportTime"]++
	f.global.ReportTime = req.ReportTime
	return nil
}

func (f *fakeAPI) SendTestReport(ctx context.Context, businessID int64) error {
	f.calls["SendTestReport"]++
	return nil
}

func newLoaded(t *testing.T, api *fakeAPI) *Controller {
	t.Helper()
	c := NewController(api, fakeSession{businessID: 42}, nil, nil)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestController_LoadSeparatesDraftFromConfirmed(t *testing.T) {
	c := newLoaded(t, newFakeAPI())

	c.SetGeneral(GeneralDraft{BotName: "Edited", Prompt: "Be nice"})
	general := c.General()
	assert.Equal(t, "Edited", general.Draft.BotName)
	assert.Equal(t, "Helper", general.Confirmed.BotName)
	assert.True(t, general.Loaded)
	assert.Equal(t, "09:00", c.Schedule().Draft.DailyReportTime)
	assert.Equal(t, "20:00", c.Global().Draft.ReportTime)
}

func TestController_SaveGeneralRefreshesFromServer(t *testing.T) {
	api := newFakeAPI()
	c := newLoaded(t, api)

	c.SetGeneral(GeneralDraft{BotName: "  Sales bot ", Prompt: "Sell"})
	require.NoError(t, c.SaveGeneral(context.Background()))

	general := c.General()
	assert.Equal(t, "Sales bot", general.Confirmed.BotName)
	assert.Equal(t, "Sales bot", general.Draft.BotName)
	assert.True(t, general.Saved)
	assert.False(t, general.Busy)
	assert.Equal(t, 2, api.calls["GetConfig"])
}

func TestController_SaveGeneralFailureKeepsDraft(t *testing.T) {
	api := newFakeAPI()
	api.saveErr = pkgerrors.FromHTTPStatus(http.StatusBadRequest, "Prompt is too long")
	c := newLoaded(t, api)

	c.SetGeneral(GeneralDraft{BotName: "Sales bot", Prompt: "Sell"})
	require.Error(t, c.SaveGeneral(context.Background()))

	general := c.General()
	assert.Equal(t, "Sales bot", general.Draft.BotName)
	assert.Equal(t, "Helper", general.Confirmed.BotName)
	assert.Equal(t, "Prompt is too long", general.Error)
	assert.False(t, general.Saved)
}

func TestController_SaveGeneralValidation(t *testing.T) {
	api := newFakeAPI()
	c := newLoaded(t, api)

	c.SetGeneral(GeneralDraft{BotName: " "})
	assert.True(t, pkgerrors.HasCode(c.SaveGeneral(context.Background()), pkgerrors.ErrValidation))
	assert.Zero(t, api.calls["UpdateConfig"])
}

func TestController_ConnectTelegram(t *testing.T) {
	api := newFakeAPI()
	c := newLoaded(t, api)

	c.SetTelegram(TelegramDraft{Token: "not-a-token"})
	assert.True(t, pkgerrors.HasCode(c.ConnectTelegram(context.Background()), pkgerrors.ErrValidation))
	assert.Zero(t, api.calls["TelegramConnect"])

	c.SetTelegram(TelegramDraft{Token: "123456789:AAHk3v_abcdefghijklmnopqrstuv"})
	require.NoError(t, c.ConnectTelegram(context.Background()))

	tg := c.Telegram()
	assert.True(t, tg.Confirmed.WebhookSet)
	assert.Empty(t, tg.Draft.Token)
	assert.True(t, tg.Saved)
}

func TestController_InstagramTwoStepFlow(t *testing.T) {
	api := newFakeAPI()
	c := newLoaded(t, api)
	ctx := context.Background()

	assert.Equal(t, InstagramAuthorize, c.InstagramStep())
	url, err := c.InstagramLoginURL()
	require.NoError(t, err)
	assert.Contains(t, url, "/instagram/login")

	c.SetInstagram(InstagramDraft{BusinessAccountID: "17841400000000000"})
	assert.True(t, pkgerrors.HasCode(c.SaveInstagramID(ctx), pkgerrors.ErrValidation), "id entry is gated by OAuth")
	assert.Zero(t, api.calls["InstagramUpdateID"])

	// Пользователь прошел OAuth в браузере
	api.instagram.HasAccessToken = true
	require.NoError(t, c.LoadInstagram(ctx))
	assert.Equal(t, InstagramEnterID, c.InstagramStep())

	c.SetInstagram(InstagramDraft{BusinessAccountID: "abc"})
	assert.True(t, pkgerrors.HasCode(c.SaveInstagramID(ctx), pkgerrors.ErrValidation))

	c.SetInstagram(InstagramDraft{BusinessAccountID: "17841400000000000"})
	require.NoError(t, c.SaveInstagramID(ctx))
	assert.Equal(t, InstagramReady, c.InstagramStep())
	assert.True(t, c.Instagram().Confirmed.Ready)
}

func TestController_SaveSchedule(t *testing.T) {
	api := newFakeAPI()
	c := newLoaded(t, api)
	ctx := context.Background()

	c.SetSchedule(ScheduleDraft{DailyReportTime: "9:00"})
	assert.True(t, pkgerrors.HasCode(c.SaveSchedule(ctx), pkgerrors.ErrValidation))

	c.SetSchedule(ScheduleDraft{DailyReportTime: "09:30", PauseFrom: domain.StringPtr("22:00")})
	assert.True(t, pkgerrors.HasCode(c.SaveSchedule(ctx), pkgerrors.ErrValidation), "half-open window")
	assert.Zero(t, api.calls["UpdateSettings"])

	c.SetSchedule(ScheduleDraft{
		DailyReportTime:  "09:30",
		PauseFrom:        domain.StringPtr("22:00"),
		PauseTo:          domain.StringPtr("08:00"),
		FollowupTemplate: domain.StringPtr("Still interested?"),
	})
	require.NoError(t, c.SaveSchedule(ctx))

	schedule := c.Schedule()
	assert.Equal(t, "09:30", schedule.Confirmed.DailyReportTime)
	require.NotNil(t, schedule.Confirmed.AIPauseFrom)
	assert.Equal(t, "22:00", *schedule.Confirmed.AIPauseFrom)
	assert.True(t, schedule.Saved)
}

func TestController_SaveScheduleBlankWindowMeansNeverPause(t *testing.T) {
	api := newFakeAPI()
	c := newLoaded(t, api)

	c.SetSchedule(ScheduleDraft{DailyReportTime: "09:00", PauseFrom: domain.StringPtr(" "), PauseTo: domain.StringPtr("")})
	require.NoError(t, c.SaveSchedule(context.Background()))
	assert.Nil(t, api.lastSettings.AIPauseFrom)
	assert.Nil(t, api.lastSettings.AIPauseTo)
}

func TestController_GlobalBot(t *testing.T) {
	api := newFakeAPI()
	c := newLoaded(t, api)
	ctx := context.Background()

	assert.True(t, pkgerrors.HasCode(c.SendTestReport(ctx), pkgerrors.ErrValidation))
	assert.Zero(t, api.calls["SendTestReport"])

	c.SetGlobal(GlobalDraft{ReportTime: "25:00"})
	assert.True(t, pkgerrors.HasCode(c.SaveReportTime(ctx), pkgerrors.ErrValidation))

	c.SetGlobal(GlobalDraft{ReportTime: "18:15"})
	require.NoError(t, c.SaveReportTime(ctx))
	assert.Equal(t, "18:15", c.Global().Confirmed.ReportTime)

	api.global.Registered = true
	require.NoError(t, c.LoadGlobal(ctx))
	require.NoError(t, c.SendTestReport(ctx))
	assert.Equal(t, 1, api.calls["SendTestReport"])
}

func TestController_NoBusiness(t *testing.T) {
	c := NewController(newFakeAPI(), fakeSession{}, nil, nil)
	assert.True(t, pkgerrors.HasCode(c.Load(context.Background()), pkgerrors.ErrValidation))
	_, err := c.InstagramLoginURL()
	assert.Error(t, err)
}
