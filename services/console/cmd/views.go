package cmd

import (
	"fmt"
	"strconv"

	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/output"
	"ExtraGPTConsole/services/console/internal/pages/dashboard"
	"ExtraGPTConsole/services/console/internal/router"
)

func idText(id int64) string {
	return strconv.FormatInt(id, 10)
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return idText(*id)
}

// userView пользователь в выводе команд
type userView struct {
	domain.User `yaml:",inline"`
}

func (v userView) Table() *output.TableData {
	return usersView{v.User}.Table()
}

// usersView список пользователей
type usersView []domain.User

func (v usersView) Table() *output.TableData {
	t := output.NewTableData("ID", "USERNAME", "PHONE", "ROLE", "ACTIVE", "BUSINESS")
	for _, u := range v {
		style := output.StyleDefault
		if !u.IsActive {
			style = output.StyleMuted
		}
		t.AddStyledRow(style, idText(u.ID), u.Username, output.OrDash(&u.Phone), string(u.Role),
			output.YesNo(u.IsActive), optionalID(u.BusinessID))
	}
	return t
}

// businessesView список бизнесов
type businessesView []domain.Business

func (v businessesView) Table() *output.TableData {
	t := output.NewTableData("ID", "NAME", "OWNER ID", "OWNER", "CREATED")
	for _, b := range v {
		owner := "-"
		if b.Owner != nil {
			owner = b.Owner.Username
		}
		t.AddRow(idText(b.ID), b.Name, idText(b.OwnerID), owner, output.OrDash(&b.CreatedAt))
	}
	return t
}

// sessionView состояние сессии для auth status
type sessionView struct {
	Authenticated bool         `json:"authenticated" yaml:"authenticated"`
	User          *domain.User `json:"user,omitempty" yaml:"user,omitempty"`
	BusinessID    *int64       `json:"business_id,omitempty" yaml:"business_id,omitempty"`
	Server        string       `json:"server" yaml:"server"`
}

func (v sessionView) Table() *output.TableData {
	t := output.NewTableData("FIELD", "VALUE")
	t.AddRow("server", v.Server)
	if !v.Authenticated || v.User == nil {
		t.AddStyledRow(output.StyleWarning, "authenticated", "no")
		return t
	}
	t.AddStyledRow(output.StyleSuccess, "authenticated", "yes")
	t.AddRow("username", v.User.Username)
	t.AddRow("role", string(v.User.Role))
	t.AddRow("business", optionalID(v.BusinessID))
	return t
}

// navView пункты навигации
type navView []router.NavItem

func (v navView) Table() *output.TableData {
	t := output.NewTableData("PAGE", "PATH")
	for _, item := range v {
		t.AddRow(item.Label, item.Path)
	}
	return t
}

// summaryView сводка главной страницы
type summaryView struct {
	dashboard.Summary `yaml:",inline"`
}

func (v summaryView) Table() *output.TableData {
	t := output.NewTableData("METRIC", "VALUE")
	if v.User != nil {
		t.AddRow("user", fmt.Sprintf("%s (%s)", v.User.Username, v.User.Role))
	}
	if !v.Scoped {
		t.AddStyledRow(output.StyleMuted, "business", "not assigned")
		return t
	}
	s := v.Stats
	t.AddRow("business", idText(v.BusinessID))
	t.AddRow("conversations", strconv.Itoa(s.TotalConversations))
	t.AddRow("active (24h)", strconv.Itoa(s.ActiveConversations))
	t.AddRow("ai enabled", strconv.Itoa(s.AIEnabledCount))
	t.AddRow("telegram", strconv.Itoa(s.TelegramCount))
	t.AddRow("instagram", strconv.Itoa(s.InstagramCount))
	t.AddRow("leads", strconv.Itoa(s.TotalLeads))
	t.AddStyledRow(output.StyleSuccess, "new leads today", strconv.Itoa(s.NewLeadsToday))
	for _, status := range domain.LeadStatuses {
		t.AddRow("leads: "+string(status), strconv.Itoa(v.LeadStats.Count(status)))
	}
	return t
}

// conversationsView список диалогов
type conversationsView []domain.Conversation

func (v conversationsView) Table() *output.TableData {
	t := output.NewTableData("ID", "CLIENT", "CHANNEL", "AI", "LAST MESSAGE", "AT")
	for _, conv := range v {
		last, at := "-", "-"
		if conv.LastMessage != nil {
			last = output.Truncate(conv.LastMessage.Text, 40)
			at = conv.LastMessage.CreatedAt
		}
		style := output.StyleDefault
		if !conv.AIEnabled {
			style = output.StyleWarning
		}
		t.AddStyledRow(style, idText(conv.ID), conv.DisplayName(), string(conv.Channel),
			output.YesNo(conv.AIEnabled), last, at)
	}
	return t
}

// historyView история диалога
type historyView struct {
	domain.MessagesResponse `yaml:",inline"`
}

func (v historyView) Table() *output.TableData {
	return messagesView(v.Messages).Table()
}

// messagesView сообщения диалога
type messagesView []domain.Message

func (v messagesView) Table() *output.TableData {
	t := output.NewTableData("ID", "FROM", "AT", "TEXT")
	for _, m := range v {
		style := output.StyleDefault
		switch m.SenderType {
		case domain.SenderAI:
			style = output.StyleMuted
		case domain.SenderOperator:
			style = output.StyleSuccess
		}
		t.AddStyledRow(style, idText(m.ID), string(m.SenderType), m.CreatedAt, output.Truncate(m.Text, 80))
	}
	return t
}

// leadsView список лидов со статистикой
type leadsView struct {
	Filter domain.LeadStatus `json:"filter,omitempty" yaml:"filter,omitempty"`
	Leads  []domain.Lead     `json:"leads" yaml:"leads"`
	Total  int               `json:"total" yaml:"total"`
	Stats  domain.LeadStats  `json:"stats" yaml:"stats"`
}

func leadStyle(status domain.LeadStatus) output.RowStyle {
	switch status {
	case domain.LeadNeedToCall:
		return output.StyleWarning
	case domain.LeadFinished:
		return output.StyleSuccess
	case domain.LeadRejected:
		return output.StyleMuted
	}
	return output.StyleDefault
}

func (v leadsView) Table() *output.TableData {
	t := output.NewTableData("ID", "NAME", "PHONE", "TOPIC", "CHANNEL", "STATUS", "CREATED")
	for _, l := range v.Leads {
		t.AddStyledRow(leadStyle(l.Status), idText(l.ID), output.OrDash(l.FullName), output.OrDash(l.Phone),
			output.Truncate(output.OrDash(l.Topic), 30), string(l.Channel), string(l.Status), l.CreatedAt)
	}
	return t
}

// leadStatsView количество лидов по статусам
type leadStatsView domain.LeadStats

func (v leadStatsView) Table() *output.TableData {
	stats := domain.LeadStats(v)
	t := output.NewTableData("STATUS", "COUNT")
	for _, status := range domain.LeadStatuses {
		t.AddStyledRow(leadStyle(status), string(status), strconv.Itoa(stats.Count(status)))
	}
	t.AddRow("total", strconv.Itoa(stats.Total()))
	return t
}

// botConfigView настройки бота. Токены не печатаются.
type botConfigView struct {
	BusinessID int64  `json:"business_id" yaml:"business_id"`
	BotName    string `json:"bot_name" yaml:"bot_name"`
	Prompt     string `json:"prompt" yaml:"prompt"`
	Telegram   bool   `json:"telegram_configured" yaml:"telegram_configured"`
	Webhook    bool   `json:"telegram_webhook_set" yaml:"telegram_webhook_set"`
	Instagram  string `json:"instagram_business_id,omitempty" yaml:"instagram_business_id,omitempty"`
}

func newBotConfigView(cfg domain.BotConfig) botConfigView {
	v := botConfigView{
		BusinessID: cfg.BusinessID,
		BotName:    cfg.BotName,
		Prompt:     cfg.Prompt,
		Telegram:   cfg.TelegramToken != nil && *cfg.TelegramToken != "",
		Webhook:    cfg.TelegramWebhookSet,
	}
	if cfg.InstagramBusinessID != nil {
		v.Instagram = *cfg.InstagramBusinessID
	}
	return v
}

func (v botConfigView) Table() *output.TableData {
	t := output.NewTableData("FIELD", "VALUE")
	t.AddRow("business", idText(v.BusinessID))
	t.AddRow("bot name", v.BotName)
	t.AddRow("prompt", output.Truncate(v.Prompt, 80))
	t.AddRow("telegram", output.YesNo(v.Telegram))
	t.AddRow("webhook", output.YesNo(v.Webhook))
	t.AddRow("instagram", output.OrDash(&v.Instagram))
	return t
}

// telegramView статус Telegram
type telegramView domain.TelegramStatus

func (v telegramView) Table() *output.TableData {
	t := output.NewTableData("FIELD", "VALUE")
	style := output.StyleWarning
	if v.Connected {
		style = output.StyleSuccess
	}
	t.AddStyledRow(style, "connected", output.YesNo(v.Connected))
	t.AddRow("webhook", output.YesNo(v.WebhookSet))
	t.AddRow("bot", output.OrDash(v.BotName))
	t.AddRow("message", output.OrDash(&v.Message))
	return t
}

// instagramView статус Instagram и текущий шаг подключения
type instagramView struct {
	domain.InstagramStatus `yaml:",inline"`
	Step                   string `json:"step" yaml:"step"`
}

func (v instagramView) Table() *output.TableData {
	t := output.NewTableData("FIELD", "VALUE")
	t.AddRow("step", v.Step)
	t.AddRow("access token", output.YesNo(v.HasAccessToken))
	t.AddRow("business account", output.OrDash(v.InstagramBusinessID))
	style := output.StyleWarning
	if v.Ready {
		style = output.StyleSuccess
	}
	t.AddStyledRow(style, "ready", output.YesNo(v.Ready))
	t.AddRow("message", output.OrDash(&v.Message))
	return t
}

// settingsView расписание бизнеса
type settingsView domain.BusinessSettings

func (v settingsView) Table() *output.TableData {
	t := output.NewTableData("FIELD", "VALUE")
	t.AddRow("daily report", v.DailyReportTime)
	t.AddRow("ai pause from", output.OrDash(v.AIPauseFrom))
	t.AddRow("ai pause to", output.OrDash(v.AIPauseTo))
	t.AddRow("followup", output.Truncate(output.OrDash(v.FollowupTemplate), 60))
	return t
}

// globalView статус глобального бота отчетов
type globalView domain.GlobalBotStatus

func (v globalView) Table() *output.TableData {
	t := output.NewTableData("FIELD", "VALUE")
	style := output.StyleWarning
	if v.Registered {
		style = output.StyleSuccess
	}
	t.AddStyledRow(style, "registered", output.YesNo(v.Registered))
	t.AddRow("business", v.BusinessName)
	t.AddRow("report time", v.ReportTime)
	t.AddRow("telegram chat", output.OrDash(v.TelegramChatID))
	return t
}
