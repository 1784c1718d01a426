// Package tui интерактивный экран чата поверх контроллера страницы диалогов.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/pages/chat"
	"ExtraGPTConsole/services/console/internal/router"
)

// SessionEndedMessage подсказка после завершения сессии
const SessionEndedMessage = "Сессия завершена, выполните вход: extragpt auth login"

const helpText = "Tab: next pane  /: search  Enter: open/send  Ctrl+A: toggle AI  Esc: back  Ctrl+C: quit"

// Screen экран чата: список диалогов, история, поле ввода и строка статуса
type Screen struct {
	app        *tview.Application
	controller *chat.Controller
	user       *domain.User
	logger     logger.Logger
	ctx        context.Context
	// stopped после остановки приложения очередь обновлений tview никто не читает
	stopped atomic.Bool

	header   *tview.TextView
	search   *tview.InputField
	list     *tview.List
	history  *tview.TextView
	compose  *tview.InputField
	status   *tview.TextView
	panes    []tview.Primitive
	shownIDs []int64
}

// NewScreen создает экран. Контроллер монтируется в Run.
func NewScreen(controller *chat.Controller, user *domain.User, log logger.Logger) *Screen {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Screen{
		app:        tview.NewApplication(),
		controller: controller,
		user:       user,
		logger:     log.With(logger.String("component", "tui")),
		ctx:        context.Background(),
	}
	s.build()
	return s
}

func (s *Screen) build() {
	s.header = tview.NewTextView().SetDynamicColors(true)
	s.header.SetText(s.headerText())

	s.search = tview.NewInputField().SetLabel("Search: ").SetFieldWidth(0)
	s.search.SetChangedFunc(func(text string) {
		s.controller.Search(text)
	})
	s.search.SetDoneFunc(func(key tcell.Key) {
		s.app.SetFocus(s.list)
	})

	s.list = tview.NewList().ShowSecondaryText(true)
	s.list.SetBorder(true).SetTitle("Conversations")
	s.list.SetSelectedFunc(func(index int, _ string, _ string, _ rune) {
		if index < 0 || index >= len(s.shownIDs) {
			return
		}
		id := s.shownIDs[index]
		go func() {
			if err := s.controller.Select(id); err != nil {
				s.logger.Warn("Failed to select conversation", logger.Int64("conversation_id", id), logger.Error(err))
			}
		}()
		s.app.SetFocus(s.compose)
	})

	s.history = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(true)
	s.history.SetBorder(true).SetTitle("History")

	s.compose = tview.NewInputField().SetLabel("Message: ").SetFieldWidth(0)
	s.compose.SetBorder(true)
	s.compose.SetChangedFunc(func(text string) {
		s.controller.SetDraft(text)
	})
	s.compose.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			go s.send()
		case tcell.KeyEscape:
			s.app.SetFocus(s.list)
		}
	})

	s.status = tview.NewTextView().SetDynamicColors(true)
	s.status.SetText(helpText)

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.search, 1, 0, false).
		AddItem(s.list, 0, 1, true)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.history, 0, 1, false).
		AddItem(s.compose, 3, 0, false)
	body := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(right, 0, 2, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.header, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(s.status, 1, 0, false)

	s.panes = []tview.Primitive{s.list, s.history, s.compose}
	s.app.SetRoot(root, true).SetFocus(s.list)
	s.app.SetInputCapture(s.handleKey)
}

func (s *Screen) headerText() string {
	if s.user == nil {
		return "[::b]ExtraGPT"
	}
	labels := make([]string, 0)
	for _, item := range router.Nav(s.user) {
		label := item.Label
		if item.Path == router.PathChat {
			label = "[yellow]" + label + "[-]"
		}
		labels = append(labels, label)
	}
	return fmt.Sprintf("[::b]ExtraGPT[::-]  %s  |  %s (%s)", strings.Join(labels, " · "), tview.Escape(s.user.Username), s.user.Role)
}

func (s *Screen) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyTab:
		s.focusNext()
		return nil
	case tcell.KeyCtrlA:
		go s.toggleAI()
		return nil
	case tcell.KeyRune:
		if event.Rune() == '/' && s.app.GetFocus() == s.list {
			s.app.SetFocus(s.search)
			return nil
		}
	}
	return event
}

func (s *Screen) focusNext() {
	current := s.app.GetFocus()
	for i, p := range s.panes {
		if p == current {
			s.app.SetFocus(s.panes[(i+1)%len(s.panes)])
			return
		}
	}
	s.app.SetFocus(s.panes[0])
}

func (s *Screen) send() {
	if err := s.controller.Send(s.ctx); err != nil {
		return
	}
	s.queue(func() {
		s.compose.SetText("")
	})
}

// queue ставит обновление в очередь UI, пока приложение работает
func (s *Screen) queue(fn func()) {
	if s.stopped.Load() {
		return
	}
	s.app.QueueUpdateDraw(fn)
}

func (s *Screen) stop() {
	if s.stopped.CompareAndSwap(false, true) {
		s.app.Stop()
	}
}

func (s *Screen) toggleAI() {
	if _, err := s.controller.ToggleAI(s.ctx); err != nil {
		s.logger.Warn("Failed to toggle AI", logger.Error(err))
	}
}

// render переносит состояние контроллера в виджеты. Вызывается в потоке UI.
func (s *Screen) render() {
	snap := s.controller.Snapshot()

	current := s.list.GetCurrentItem()
	s.list.Clear()
	s.shownIDs = s.shownIDs[:0]
	for _, conv := range snap.Conversations {
		s.list.AddItem(conversationTitle(conv), conversationPreview(conv), 0, nil)
		s.shownIDs = append(s.shownIDs, conv.ID)
	}
	if current >= 0 && current < s.list.GetItemCount() {
		s.list.SetCurrentItem(current)
	}
	s.list.SetTitle(fmt.Sprintf("Conversations (%d/%d)", len(snap.Conversations), snap.Total))

	if snap.Selected == nil {
		s.history.SetTitle("History")
		s.history.SetText("Select a conversation")
	} else {
		s.history.SetTitle(fmt.Sprintf("%s · %s · AI %s", snap.Selected.DisplayName(), snap.Selected.Channel, onOff(snap.Selected.AIEnabled)))
		s.history.SetText(formatMessages(snap.Messages))
		s.history.ScrollToEnd()
	}

	switch {
	case snap.Ended:
		s.status.SetText("[red]" + SessionEndedMessage)
	case snap.Error != "":
		s.status.SetText("[red]" + tview.Escape(snap.Error))
	case !snap.Mounted || snap.BusinessID == 0:
		s.status.SetText("[yellow]No business associated with this account")
	case snap.Busy:
		s.status.SetText("[yellow]Working...")
	default:
		s.status.SetText(helpText)
	}
}

// Run монтирует контроллер и запускает экран до выхода пользователя.
// Если сессия завершилась, экран закрывается и возвращается SESSION_EXPIRED.
func (s *Screen) Run(ctx context.Context) error {
	s.ctx = ctx
	s.controller.OnChange(func() {
		// Уведомления приходят и из потока UI, поэтому не блокируемся на очереди
		go s.queue(s.render)
	})
	s.controller.Mount(ctx)
	defer s.controller.Unmount()

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.controller.Ended():
			s.logger.Warn("Session ended, closing chat screen")
		case <-exited:
			return
		}
		s.stop()
	}()

	s.logger.Info("Chat screen started")
	err := s.app.Run()
	s.stopped.Store(true)
	s.logger.Info("Chat screen stopped")
	if err != nil {
		return err
	}

	select {
	case <-s.controller.Ended():
		return pkgerrors.New(pkgerrors.ErrSessionExpired, "session ended").WithDetails(SessionEndedMessage)
	default:
		return nil
	}
}

// SetScreen подменяет терминал, используется в тестах
func (s *Screen) SetScreen(screen tcell.Screen) {
	s.app.SetScreen(screen)
}

func conversationTitle(c domain.Conversation) string {
	marker := "[green]●[-]"
	if !c.AIEnabled {
		marker = "[gray]○[-]"
	}
	return fmt.Sprintf("%s %s [gray](%s)[-]", marker, tview.Escape(c.DisplayName()), c.Channel)
}

func conversationPreview(c domain.Conversation) string {
	if c.LastMessage == nil {
		return ""
	}
	text := strings.ReplaceAll(c.LastMessage.Text, "\n", " ")
	if r := []rune(text); len(r) > 60 {
		text = string(r[:59]) + "…"
	}
	return fmt.Sprintf("  %s: %s", c.LastMessage.SenderType, tview.Escape(text))
}

func formatMessages(messages []domain.Message) string {
	if len(messages) == 0 {
		return "[gray]No messages yet"
	}
	var b strings.Builder
	for _, m := range messages {
		color := "white"
		switch m.SenderType {
		case domain.SenderAI:
			color = "green"
		case domain.SenderOperator:
			color = "yellow"
		}
		stamp := m.CreatedAt
		if t, err := domain.ParseTime(m.CreatedAt); err == nil {
			stamp = t.Local().Format("02.01 15:04")
		}
		fmt.Fprintf(&b, "[gray]%s[-] [%s]%s[-]: %s\n", stamp, color, m.SenderType, tview.Escape(m.Text))
	}
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
