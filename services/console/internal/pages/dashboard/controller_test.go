package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ExtraGPTConsole/services/console/internal/domain"
)

type fakeSession struct {
	businessID int64
	user       *domain.User
}

func (f fakeSession) Hydrated() bool     { return true }
func (f fakeSession) User() *domain.User { return f.user }
func (f fakeSession) BusinessID() (int64, bool) {
	return f.businessID, f.businessID != 0
}

type fakeConversations struct {
	resp  *domain.ConversationsResponse
	err   error
	calls int
}

func (f *fakeConversations) Conversations(ctx context.Context, businessID int64) (*domain.ConversationsResponse, error) {
	f.calls++
	return f.resp, f.err
}

type fakeLeads struct {
	resp *domain.LeadsResponse
	err  error
}

func (f *fakeLeads) List(ctx context.Context, businessID int64, status domain.LeadStatus) (*domain.LeadsResponse, error) {
	return f.resp, f.err
}

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func TestCompute(t *testing.T) {
	convs := []domain.Conversation{
		{ID: 1, Channel: domain.ChannelTelegram, AIEnabled: true, LastMessage: &domain.LastMessage{CreatedAt: "2026-03-10T14:00:00"}},
		{ID: 2, Channel: domain.ChannelInstagram, AIEnabled: false, LastMessage: &domain.LastMessage{CreatedAt: "2026-03-01T10:00:00Z"}},
		{ID: 3, Channel: domain.ChannelTelegram, AIEnabled: true},
	}
	leads := &domain.LeadsResponse{
		Leads: []domain.Lead{
			{ID: 7, CreatedAt: "2026-03-10T09:30:00"},
			{ID: 8, CreatedAt: "2026-03-09T23:59:00"},
			{ID: 9, CreatedAt: "garbage"},
		},
		Total: 3,
		Stats: domain.LeadStats{NeedToCall: 2, Contacted: 1},
	}

	stats := Compute(convs, leads, now)
	assert.Equal(t, domain.DashboardStats{
		TotalConversations:  3,
		ActiveConversations: 1,
		TotalLeads:          3,
		NewLeadsToday:       1,
		AIEnabledCount:      2,
		TelegramCount:       2,
		InstagramCount:      1,
	}, stats)
}

func TestController_Load(t *testing.T) {
	user := &domain.User{ID: 5, Username: "owner", Role: domain.RoleOwner}
	convs := &fakeConversations{resp: &domain.ConversationsResponse{Conversations: []domain.Conversation{{ID: 1, Channel: domain.ChannelTelegram}}}}
	leads := &fakeLeads{resp: &domain.LeadsResponse{Stats: domain.LeadStats{Finished: 4}}}

	c := NewController(convs, leads, fakeSession{businessID: 42, user: user}, nil)
	c.now = func() time.Time { return now }

	summary, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Scoped)
	assert.Equal(t, int64(42), summary.BusinessID)
	assert.Equal(t, 1, summary.Stats.TotalConversations)
	assert.Equal(t, 4, summary.Stats.TotalLeads)
	assert.Equal(t, 4, summary.LeadStats.Finished)
	assert.Equal(t, "owner", summary.User.Username)
}

func TestController_LoadWithoutBusiness(t *testing.T) {
	convs := &fakeConversations{}
	c := NewController(convs, &fakeLeads{}, fakeSession{user: &domain.User{ID: 1, Role: domain.RoleAdmin}}, nil)

	summary, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Scoped)
	assert.Zero(t, convs.calls)
}

func TestController_LoadError(t *testing.T) {
	c := NewController(
		&fakeConversations{resp: &domain.ConversationsResponse{}},
		&fakeLeads{err: errors.New("boom")},
		fakeSession{businessID: 42}, nil)

	_, err := c.Load(context.Background())
	assert.Error(t, err)
}
