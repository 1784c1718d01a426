package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/output"
	"ExtraGPTConsole/services/console/internal/router"
	"ExtraGPTConsole/services/console/internal/tui"
)

// parseID разбирает числовой идентификатор из аргумента
func parseID(arg, field string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.Invalid(fmt.Errorf("%s must be a positive number", field))
	}
	return id, nil
}

func newChatCmd(c *console) *cobra.Command {
	chatCmd := &cobra.Command{
		Use:     "chat",
		Aliases: []string{"conversations"},
		Short:   "Диалоги с клиентами",
		Long: `Команды для просмотра диалогов, отправки сообщений оператором
и переключения AI в отдельном диалоге.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Показать диалоги",
		Long:  `Показывает диалоги бизнеса. --search фильтрует по имени клиента без учета регистра.`,
		RunE:  c.run(c.handleChatList),
	}
	listCmd.Flags().String("search", "", "подстрока имени клиента")

	historyCmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Показать историю диалога",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run(c.handleChatHistory),
	}

	sendCmd := &cobra.Command{
		Use:   "send [conversation-id] [text]",
		Short: "Отправить сообщение от оператора",
		Long:  `Отправляет сообщение в диалог. Текст от 1 до 4096 символов.`,
		Args:  cobra.MinimumNArgs(2),
		RunE:  c.run(c.handleChatSend),
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle-ai [conversation-id]",
		Short: "Включить или выключить AI в диалоге",
		Long:  `Переключает AI в диалоге. Показывается значение, подтвержденное сервером.`,
		Args:  cobra.ExactArgs(1),
		RunE:  c.run(c.handleChatToggleAI),
	}

	watchCmd := &cobra.Command{
		Use:         "watch [conversation-id]",
		Short:       "Следить за новыми сообщениями",
		Long:        `Опрашивает историю диалога и печатает новые сообщения до прерывания (Ctrl+C) или окончания сессии.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationTelemetry: "true"},
		RunE:        c.run(c.handleChatWatch),
	}

	openCmd := &cobra.Command{
		Use:   "open",
		Short: "Открыть интерактивный экран чата",
		Long: `Открывает экран с тремя панелями: диалоги, история и поле ввода.
Tab переключает панели, Ctrl+A переключает AI, / ищет по имени, Ctrl+C выходит.
Логи пишутся в файл logger.file.`,
		Annotations: map[string]string{annotationFileLog: "true", annotationTelemetry: "true"},
		RunE:        c.run(c.handleChatOpen),
	}

	chatCmd.AddCommand(listCmd, historyCmd, sendCmd, toggleCmd, watchCmd, openCmd)
	return chatCmd
}

func (c *console) handleChatList(cmd *cobra.Command, args []string) error {
	a, err := c.open(router.PathChat)
	if err != nil {
		return err
	}
	ctrl := a.ChatController()
	if err := ctrl.Refresh(c.ctx); err != nil {
		return err
	}

	search, _ := cmd.Flags().GetString("search")
	ctrl.Search(search)
	return c.printer.Print(conversationsView(ctrl.Visible()))
}

func (c *console) handleChatHistory(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "conversation")
	if err != nil {
		return err
	}
	a, err := c.open(router.PathChat)
	if err != nil {
		return err
	}

	history, err := a.ChatController().LoadHistory(c.ctx, id)
	if err != nil {
		return err
	}
	c.printer.Message("%s (%s), AI: %s", history.Conversation.DisplayName(), history.Conversation.Channel,
		onOff(history.Conversation.AIEnabled))
	return c.printer.Print(historyView{*history})
}

func (c *console) handleChatSend(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "conversation")
	if err != nil {
		return err
	}
	a, err := c.open(router.PathChat)
	if err != nil {
		return err
	}

	if err := a.ChatController().SendTo(c.ctx, id, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	c.printer.Message("Сообщение отправлено в диалог %d", id)
	return nil
}

func (c *console) handleChatToggleAI(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "conversation")
	if err != nil {
		return err
	}
	a, err := c.open(router.PathChat)
	if err != nil {
		return err
	}

	ctrl := a.ChatController()
	if err := ctrl.Refresh(c.ctx); err != nil {
		return err
	}
	enabled, err := ctrl.ToggleConversationAI(c.ctx, id)
	if err != nil {
		return err
	}

	if c.printer.Format() == output.FormatTable {
		c.printer.Message("AI в диалоге %d: %s", id, onOff(enabled))
		return nil
	}
	return c.printer.Print(domain.ToggleAIResponse{ConversationID: id, AIEnabled: enabled})
}

func (c *console) handleChatWatch(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "conversation")
	if err != nil {
		return err
	}
	a, err := c.open(router.PathChat)
	if err != nil {
		return err
	}

	ctrl := a.ChatController()
	if err := ctrl.Refresh(c.ctx); err != nil {
		return err
	}

	var mu sync.Mutex
	seen := make(map[int64]bool)
	out := cmd.OutOrStdout()
	ctrl.OnChange(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range ctrl.Snapshot().Messages {
			if seen[m.ID] || m.ConversationID != id {
				continue
			}
			seen[m.ID] = true
			if c.printer.Format() == output.FormatTable {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt, m.SenderType, m.Text)
			} else if err := c.printer.Print(m); err != nil {
				a.Logger.Warn("Failed to print message", logger.Error(err))
			}
		}
	})

	ctrl.Mount(c.ctx)
	defer ctrl.Unmount()
	if err := ctrl.Select(id); err != nil {
		return err
	}

	select {
	case <-c.ctx.Done():
		return nil
	case <-ctrl.Ended():
		return pkgerrors.New(pkgerrors.ErrSessionExpired, "session ended").WithDetails(tui.SessionEndedMessage)
	}
}

func (c *console) handleChatOpen(cmd *cobra.Command, args []string) error {
	a, err := c.open(router.PathChat)
	if err != nil {
		return err
	}
	screen := tui.NewScreen(a.ChatController(), a.Session.User(), a.Logger)
	return screen.Run(c.ctx)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
