// Package dashboard собирает сводку главной страницы из списка диалогов и лидов.
package dashboard

import (
	"context"
	"time"

	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/session"
)

// activeWindow диалог активен, если последнее сообщение было не раньше этого срока
const activeWindow = 24 * time.Hour

// ConversationLister список диалогов бизнеса
type ConversationLister interface {
	Conversations(ctx context.Context, businessID int64) (*domain.ConversationsResponse, error)
}

// LeadLister список лидов бизнеса
type LeadLister interface {
	List(ctx context.Context, businessID int64, status domain.LeadStatus) (*domain.LeadsResponse, error)
}

// Summary содержимое главной страницы
type Summary struct {
	User *domain.User `json:"user" yaml:"user"`
	// Scoped сводка посчитана по бизнесу пользователя
	Scoped     bool                  `json:"scoped" yaml:"scoped"`
	BusinessID int64                 `json:"business_id,omitempty" yaml:"business_id,omitempty"`
	Stats      domain.DashboardStats `json:"stats" yaml:"stats"`
	LeadStats  domain.LeadStats      `json:"lead_stats" yaml:"lead_stats"`
}

// Controller главная страница
type Controller struct {
	conversations ConversationLister
	leads         LeadLister
	session       session.Accessor
	logger        logger.Logger
	now           func() time.Time
}

// NewController создает контроллер главной страницы
func NewController(conversations ConversationLister, leads LeadLister, s session.Accessor, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	return &Controller{
		conversations: conversations,
		leads:         leads,
		session:       s,
		logger:        log.With(logger.String("page", "dashboard")),
		now:           time.Now,
	}
}

// Load загружает сводку. Без бизнеса возвращает только пользователя.
func (c *Controller) Load(ctx context.Context) (*Summary, error) {
	summary := &Summary{User: c.session.User()}

	businessID, ok := c.session.BusinessID()
	if !ok {
		return summary, nil
	}
	summary.Scoped = true
	summary.BusinessID = businessID

	convs, err := c.conversations.Conversations(ctx, businessID)
	if err != nil {
		c.logger.Warn("Failed to load conversations", logger.Int64("business_id", businessID), logger.Error(err))
		return nil, err
	}
	leads, err := c.leads.List(ctx, businessID, "")
	if err != nil {
		c.logger.Warn("Failed to load leads", logger.Int64("business_id", businessID), logger.Error(err))
		return nil, err
	}

	summary.Stats = Compute(convs.Conversations, leads, c.now())
	summary.LeadStats = leads.Stats
	return summary, nil
}

// Compute считает показатели главной страницы
func Compute(conversations []domain.Conversation, leads *domain.LeadsResponse, now time.Time) domain.DashboardStats {
	stats := domain.DashboardStats{TotalConversations: len(conversations)}

	for _, conv := range conversations {
		if conv.AIEnabled {
			stats.AIEnabledCount++
		}
		switch conv.Channel {
		case domain.ChannelTelegram:
			stats.TelegramCount++
		case domain.ChannelInstagram:
			stats.InstagramCount++
		}
		if conv.LastMessage != nil {
			if t, err := domain.ParseTime(conv.LastMessage.CreatedAt); err == nil && now.Sub(t) <= activeWindow {
				stats.ActiveConversations++
			}
		}
	}

	if leads == nil {
		return stats
	}
	stats.TotalLeads = leads.Stats.Total()
	if stats.TotalLeads == 0 {
		stats.TotalLeads = leads.Total
	}
	year, month, day := now.Date()
	for _, lead := range leads.Leads {
		t, err := domain.ParseTime(lead.CreatedAt)
		if err != nil {
			continue
		}
		t = t.In(now.Location())
		if y, m, d := t.Date(); y == year && m == month && d == day {
			stats.NewLeadsToday++
		}
	}
	return stats
}
