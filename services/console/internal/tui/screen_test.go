package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/pages/chat"
)

type fakeSession struct{}

func (fakeSession) Hydrated() bool            { return true }
func (fakeSession) User() *domain.User        { return nil }
func (fakeSession) BusinessID() (int64, bool) { return 42, true }

type fakeAPI struct{}

func (fakeAPI) Conversations(ctx context.Context, businessID int64) (*domain.ConversationsResponse, error) {
	return &domain.ConversationsResponse{Conversations: []domain.Conversation{
		{ID: 1, ClientID: "100", ClientName: domain.StringPtr("Ali"), Channel: domain.ChannelTelegram, AIEnabled: true,
			LastMessage: &domain.LastMessage{Text: "Hello\nthere", SenderType: domain.SenderClient}},
		{ID: 2, ClientID: "200", ClientName: domain.StringPtr("Vera"), Channel: domain.ChannelInstagram},
	}, Total: 2}, nil
}

func (fakeAPI) History(ctx context.Context, id int64) (*domain.MessagesResponse, error) {
	return &domain.MessagesResponse{}, nil
}

func (fakeAPI) Send(ctx context.Context, req domain.SendMessageRequest) error { return nil }

func (fakeAPI) ToggleAI(ctx context.Context, req domain.ToggleAIRequest) (*domain.ToggleAIResponse, error) {
	return &domain.ToggleAIResponse{AIEnabled: req.AIEnabled}, nil
}

func newScreen(t *testing.T) (*Screen, *chat.Controller) {
	t.Helper()
	c := chat.NewController(chat.Options{API: fakeAPI{}, Session: fakeSession{}})
	require.NoError(t, c.Refresh(context.Background()))

	user := &domain.User{ID: 5, Username: "owner", Role: domain.RoleOwner}
	s := NewScreen(c, user, nil)
	s.SetScreen(tcell.NewSimulationScreen("UTF-8"))
	return s, c
}

func TestScreen_RenderList(t *testing.T) {
	s, c := newScreen(t)
	s.render()

	assert.Equal(t, 2, s.list.GetItemCount())
	assert.Equal(t, []int64{1, 2}, s.shownIDs)
	main, secondary := s.list.GetItemText(0)
	assert.Contains(t, main, "Ali")
	assert.Contains(t, secondary, "Hello there")

	c.Search("ali")
	s.render()
	assert.Equal(t, 1, s.list.GetItemCount())
	assert.Equal(t, []int64{1}, s.shownIDs)
}

func TestScreen_RenderSelection(t *testing.T) {
	s, c := newScreen(t)

	s.render()
	assert.Contains(t, s.history.GetText(true), "Select a conversation")

	require.NoError(t, c.Select(2))
	s.render()
	assert.Contains(t, s.history.GetTitle(), "Vera")
	assert.Contains(t, s.history.GetTitle(), "AI off")
}

func TestScreen_Header(t *testing.T) {
	s, _ := newScreen(t)
	header := s.header.GetText(true)

	assert.Contains(t, header, "Bot Config")
	assert.NotContains(t, header, "Admin Panel")
	assert.Contains(t, header, "owner (owner)")
}

func TestScreen_Keys(t *testing.T) {
	s, _ := newScreen(t)

	assert.Nil(t, s.handleKey(tcell.NewEventKey(tcell.KeyRune, '/', tcell.ModNone)))
	assert.Equal(t, s.search, s.app.GetFocus())

	s.app.SetFocus(s.list)
	assert.Nil(t, s.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone)))
	assert.Equal(t, s.history, s.app.GetFocus())

	ev := tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)
	assert.Equal(t, ev, s.handleKey(ev))
}

func TestFormatMessages(t *testing.T) {
	out := formatMessages([]domain.Message{
		{SenderType: domain.SenderClient, Text: "hi [there]", CreatedAt: "bad"},
		{SenderType: domain.SenderAI, Text: "hello"},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "[green]")
	assert.Contains(t, lines[1], "[green]ai")
	assert.Contains(t, formatMessages(nil), "No messages yet")
}

func TestScreen_RunEndsWithSession(t *testing.T) {
	s, c := newScreen(t)
	drawn := make(chan struct{})
	var once sync.Once
	s.app.SetAfterDrawFunc(func(tcell.Screen) { once.Do(func() { close(drawn) }) })

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case <-drawn:
	case <-time.After(2 * time.Second):
		t.Fatal("screen was not drawn")
	}
	c.Terminate("session expired")

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.ErrSessionExpired))
		assert.Equal(t, SessionEndedMessage, pkgerrors.UserMessage(err))
	case <-time.After(2 * time.Second):
		t.Fatal("screen kept running after the session ended")
	}
	assert.False(t, c.Snapshot().Mounted)
}

func TestScreen_RunStopsOnContext(t *testing.T) {
	s, c := newScreen(t)
	drawn := make(chan struct{})
	var once sync.Once
	s.app.SetAfterDrawFunc(func(tcell.Screen) { once.Do(func() { close(drawn) }) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-drawn:
	case <-time.After(2 * time.Second):
		t.Fatal("screen was not drawn")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("screen kept running after cancel")
	}
	assert.False(t, c.Snapshot().Mounted)
}

func TestScreen_QueueAfterStop(t *testing.T) {
	s, _ := newScreen(t)
	s.stopped.Store(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Больше, чем вмещает очередь обновлений tview
		for i := 0; i < 500; i++ {
			s.queue(s.render)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updates blocked after the screen stopped")
	}
}

func TestScreen_RenderEnded(t *testing.T) {
	s, c := newScreen(t)
	c.Terminate("logout")
	<-c.Ended()

	s.render()
	assert.Contains(t, s.status.GetText(true), SessionEndedMessage)
}
