// Package domain описывает сущности ExtraGPT API в каноническом формате.
// Все сущности принадлежат серверу, консоль держит только копии для отображения.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role роль пользователя
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
	RoleOperator Role = "operator"
)

// Roles все известные роли
var Roles = []Role{RoleAdmin, RoleOwner, RoleOperator}

// ParseRole разбирает роль из строки
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// RoleSet список разрешенных ролей
type RoleSet []Role

// Allows проверяет, что роль входит в список.
// Пустой список разрешает любую роль.
func (s RoleSet) Allows(r Role) bool {
	if len(s) == 0 {
		return true
	}
	for _, allowed := range s {
		if allowed == r {
			return true
		}
	}
	return false
}

// User пользователь консоли
type User struct {
	ID         int64  `json:"id" yaml:"id"`
	Username   string `json:"username" yaml:"username"`
	Phone      string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Role       Role   `json:"role" yaml:"role"`
	IsActive   bool   `json:"is_active" yaml:"is_active"`
	BusinessID *int64 `json:"business_id,omitempty" yaml:"business_id,omitempty"`
	CreatedAt  string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// AuthResponse ответ POST /auth/login
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

// RefreshResponse ответ POST /auth/refresh
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// Credentials данные для входа
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Business бизнес, принадлежащий одному владельцу
type Business struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	OwnerID   int64  `json:"owner_id" yaml:"owner_id"`
	CreatedAt string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Owner     *User  `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// BotConfig настройки AI бота бизнеса
type BotConfig struct {
	ID                   int64   `json:"id,omitempty" yaml:"id,omitempty"`
	BusinessID           int64   `json:"business_id" yaml:"business_id"`
	BotName              string  `json:"bot_name" yaml:"bot_name"`
	Prompt               string  `json:"prompt" yaml:"prompt"`
	TelegramToken        *string `json:"telegram_token,omitempty" yaml:"telegram_token,omitempty"`
	TelegramWebhookSet   bool    `json:"telegram_webhook_set" yaml:"telegram_webhook_set"`
	InstagramAccessToken *string `json:"instagram_access_token,omitempty" yaml:"instagram_access_token,omitempty"`
	InstagramBusinessID  *string `json:"instagram_business_id,omitempty" yaml:"instagram_business_id,omitempty"`
	CreatedAt            string  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// BusinessSettings расписание и шаблоны бизнеса
type BusinessSettings struct {
	ID               int64   `json:"id,omitempty" yaml:"id,omitempty"`
	BusinessID       int64   `json:"business_id" yaml:"business_id"`
	DailyReportTime  string  `json:"daily_report_time" yaml:"daily_report_time"`
	AIPauseFrom      *string `json:"ai_pause_from" yaml:"ai_pause_from"`
	AIPauseTo        *string `json:"ai_pause_to" yaml:"ai_pause_to"`
	FollowupTemplate *string `json:"followup_template" yaml:"followup_template"`
	CreatedAt        string  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Channel канал переписки
type Channel string

const (
	ChannelTelegram  Channel = "telegram"
	ChannelInstagram Channel = "instagram"
)

// SenderType автор сообщения
type SenderType string

const (
	SenderClient   SenderType = "client"
	SenderAI       SenderType = "ai"
	SenderOperator SenderType = "operator"
)

// LastMessage краткая информация о последнем сообщении диалога
type LastMessage struct {
	Text       string     `json:"text" yaml:"text"`
	SenderType SenderType `json:"sender_type" yaml:"sender_type"`
	CreatedAt  string     `json:"created_at" yaml:"created_at"`
}

// Conversation диалог с клиентом
type Conversation struct {
	ID           int64        `json:"id" yaml:"id"`
	BusinessID   int64        `json:"business_id" yaml:"business_id"`
	Channel      Channel      `json:"channel" yaml:"channel"`
	ClientID     string       `json:"client_id" yaml:"client_id"`
	ClientName   *string      `json:"client_name" yaml:"client_name"`
	AIEnabled    bool         `json:"ai_enabled" yaml:"ai_enabled"`
	FollowupOnly bool         `json:"followup_only" yaml:"followup_only"`
	FollowupSent bool         `json:"followup_sent" yaml:"followup_sent"`
	CreatedAt    string       `json:"created_at" yaml:"created_at"`
	LastMessage  *LastMessage `json:"last_message,omitempty" yaml:"last_message,omitempty"`
	MessageCount int          `json:"message_count,omitempty" yaml:"message_count,omitempty"`
}

// DisplayName имя клиента, а если его нет, внешний идентификатор
func (c Conversation) DisplayName() string {
	if c.ClientName != nil && *c.ClientName != "" {
		return *c.ClientName
	}
	return c.ClientID
}

// Matches проверяет вхождение подстроки в имя без учета регистра
func (c Conversation) Matches(term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.DisplayName()), strings.ToLower(term))
}

// Message сообщение диалога. Неизменяемо после создания.
type Message struct {
	ID             int64      `json:"id" yaml:"id"`
	ConversationID int64      `json:"conversation_id" yaml:"conversation_id"`
	SenderType     SenderType `json:"sender_type" yaml:"sender_type"`
	SenderID       *int64     `json:"sender_id,omitempty" yaml:"sender_id,omitempty"`
	Text           string     `json:"text" yaml:"text"`
	CreatedAt      string     `json:"created_at" yaml:"created_at"`
}

// ConversationsResponse ответ GET /chat/conversations
type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// MessagesResponse ответ GET /chat/history/{id}
type MessagesResponse struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	Total        int          `json:"total"`
}

// SendMessageRequest тело POST /chat/send-message
type SendMessageRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Text           string `json:"text"`
}

// ToggleAIRequest тело PATCH /chat/toggle-ai
type ToggleAIRequest struct {
	ConversationID int64 `json:"conversation_id"`
	AIEnabled      bool  `json:"ai_enabled"`
}

// ToggleAIResponse подтвержденное сервером значение флага
type ToggleAIResponse struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
	AIEnabled      bool  `json:"ai_enabled"`
}

// LeadStatus статус лида. Переходы не ограничены.
type LeadStatus string

const (
	LeadNeedToCall LeadStatus = "need_to_call"
	LeadContacted  LeadStatus = "contacted"
	LeadContinuing LeadStatus = "continuing"
	LeadFinished   LeadStatus = "finished"
	LeadRejected   LeadStatus = "rejected"
)

// LeadStatuses статусы в порядке отображения
var LeadStatuses = []LeadStatus{LeadNeedToCall, LeadContacted, LeadContinuing, LeadFinished, LeadRejected}

// ParseLeadStatus разбирает статус лида
func ParseLeadStatus(s string) (LeadStatus, error) {
	for _, st := range LeadStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown lead status: %q", s)
}

// Lead лид бизнеса
type Lead struct {
	ID             int64         `json:"id" yaml:"id"`
	BusinessID     int64         `json:"business_id" yaml:"business_id"`
	ConversationID *int64        `json:"conversation_id" yaml:"conversation_id"`
	Channel        Channel       `json:"channel" yaml:"channel"`
	FullName       *string       `json:"full_name" yaml:"full_name"`
	Phone          *string       `json:"phone" yaml:"phone"`
	Topic          *string       `json:"topic" yaml:"topic"`
	Notes          *string       `json:"notes" yaml:"notes"`
	Status         LeadStatus    `json:"status" yaml:"status"`
	CreatedAt      string        `json:"created_at" yaml:"created_at"`
	Conversation   *Conversation `json:"conversation,omitempty" yaml:"conversation,omitempty"`
}

// LeadStats количество лидов по статусам
type LeadStats struct {
	NeedToCall int `json:"need_to_call" yaml:"need_to_call"`
	Contacted  int `json:"contacted" yaml:"contacted"`
	Continuing int `json:"continuing" yaml:"continuing"`
	Finished   int `json:"finished" yaml:"finished"`
	Rejected   int `json:"rejected" yaml:"rejected"`
}

// Count возвращает количество лидов в статусе
func (s LeadStats) Count(status LeadStatus) int {
	switch status {
	case LeadNeedToCall:
		return s.NeedToCall
	case LeadContacted:
		return s.Contacted
	case LeadContinuing:
		return s.Continuing
	case LeadFinished:
		return s.Finished
	case LeadRejected:
		return s.Rejected
	}
	return 0
}

// Total общее количество лидов
func (s LeadStats) Total() int {
	return s.NeedToCall + s.Contacted + s.Continuing + s.Finished + s.Rejected
}

// LeadsResponse ответ GET /leads
type LeadsResponse struct {
	Leads []Lead    `json:"leads"`
	Total int       `json:"total"`
	Stats LeadStats `json:"stats"`
}

// UpdateLeadStatusRequest тело PATCH /leads/{id}/status
type UpdateLeadStatusRequest struct {
	Status LeadStatus `json:"status"`
}

// InstagramStatus ответ GET /instagram/status
type InstagramStatus struct {
	Configured          bool    `json:"configured" yaml:"configured"`
	HasAccessToken      bool    `json:"has_access_token" yaml:"has_access_token"`
	HasBusinessID       bool    `json:"has_business_id" yaml:"has_business_id"`
	InstagramBusinessID *string `json:"instagram_business_id" yaml:"instagram_business_id"`
	Ready               bool    `json:"ready" yaml:"ready"`
	Message             string  `json:"message" yaml:"message"`
}

// TelegramStatus ответ GET /telegram/login
type TelegramStatus struct {
	Connected  bool    `json:"connected" yaml:"connected"`
	WebhookSet bool    `json:"webhook_set" yaml:"webhook_set"`
	BotName    *string `json:"bot_username,omitempty" yaml:"bot_username,omitempty"`
	Message    string  `json:"message,omitempty" yaml:"message,omitempty"`
}

// TelegramLoginRequest тело PATCH /telegram/login
type TelegramLoginRequest struct {
	BusinessID    int64  `json:"business_id"`
	TelegramToken string `json:"telegram_token"`
}

// InstagramUpdateRequest тело PATCH /instagram/update-id
type InstagramUpdateRequest struct {
	BusinessID          int64  `json:"business_id"`
	InstagramBusinessID string `json:"instagram_business_id"`
}

// GlobalBotStatus ответ GET /global-bot/status
type GlobalBotStatus struct {
	Registered     bool    `json:"registered" yaml:"registered"`
	TelegramChatID *string `json:"telegram_chat_id" yaml:"telegram_chat_id"`
	ReportTime     string  `json:"report_time" yaml:"report_time"`
	BusinessID     int64   `json:"business_id" yaml:"business_id"`
	BusinessName   string  `json:"business_name" yaml:"business_name"`
}

// ReportTimeRequest тело PATCH /global-bot/report-time
type ReportTimeRequest struct {
	BusinessID int64  `json:"business_id"`
	ReportTime string `json:"report_time"`
}

// UpdateBotConfigRequest тело PUT /bot/config
type UpdateBotConfigRequest struct {
	BusinessID int64  `json:"business_id"`
	BotName    string `json:"bot_name"`
	Prompt     string `json:"prompt"`
}

// UpdateBusinessSettingsRequest тело PUT /bot-settings
type UpdateBusinessSettingsRequest struct {
	BusinessID       int64   `json:"business_id"`
	DailyReportTime  string  `json:"daily_report_time,omitempty"`
	AIPauseFrom      *string `json:"ai_pause_from"`
	AIPauseTo        *string `json:"ai_pause_to"`
	FollowupTemplate *string `json:"followup_template"`
}

// CreateUserRequest тело POST /admin/users
type CreateUserRequest struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// CreateBusinessRequest тело POST /admin/businesses.
// OwnerID == 0 означает, что владелец не выбран.
type CreateBusinessRequest struct {
	Name    string `json:"name"`
	OwnerID int64  `json:"owner_id"`
}

// DashboardStats сводка главной страницы
type DashboardStats struct {
	TotalConversations  int `json:"total_conversations" yaml:"total_conversations"`
	ActiveConversations int `json:"active_conversations" yaml:"active_conversations"`
	TotalLeads          int `json:"total_leads" yaml:"total_leads"`
	NewLeadsToday       int `json:"new_leads_today" yaml:"new_leads_today"`
	AIEnabledCount      int `json:"ai_enabled_count" yaml:"ai_enabled_count"`
	TelegramCount       int `json:"telegram_count" yaml:"telegram_count"`
	InstagramCount      int `json:"instagram_count" yaml:"instagram_count"`
}

// ParseTime разбирает временную метку API.
// Сервер отдает ISO 8601 с часовым поясом или без него.
func ParseTime(s string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", s)
}

// StringPtr возвращает указатель на строку
func StringPtr(s string) *string { return &s }

// Int64Ptr возвращает указатель на число
func Int64Ptr(v int64) *int64 { return &v }
