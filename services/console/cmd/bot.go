package cmd

import (
	"github.com/spf13/cobra"

	"ExtraGPTConsole/services/console/internal/pages/botconfig"
	"ExtraGPTConsole/services/console/internal/router"
)

func newBotCmd(c *console) *cobra.Command {
	botCmd := &cobra.Command{
		Use:   "bot",
		Short: "Настройки AI бота",
		Long: `Команды страницы настроек бота: общие настройки AI, подключение
Telegram и Instagram, расписание и глобальный бот отчетов.
Доступны владельцу и администратору.`,
	}

	// config
	configCmd := &cobra.Command{Use: "config", Short: "Имя бота и системный промпт"}
	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Показать настройки AI",
		RunE:  c.run(c.handleBotConfigShow),
	}
	configSetCmd := &cobra.Command{
		Use:   "set",
		Short: "Изменить имя бота и промпт",
		Long:  `Меняет только переданные поля. Имя бота обязательно, промпт до 8000 символов.`,
		RunE:  c.run(c.handleBotConfigSet),
	}
	configSetCmd.Flags().String("name", "", "имя бота")
	configSetCmd.Flags().String("prompt", "", "системный промпт")
	configCmd.AddCommand(configShowCmd, configSetCmd)

	// telegram
	telegramCmd := &cobra.Command{Use: "telegram", Short: "Подключение Telegram бота"}
	telegramStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Показать статус Telegram",
		RunE:  c.run(c.handleTelegramStatus),
	}
	telegramConnectCmd := &cobra.Command{
		Use:   "connect [token]",
		Short: "Подключить бота по токену BotFather",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run(c.handleTelegramConnect),
	}
	telegramCmd.AddCommand(telegramStatusCmd, telegramConnectCmd)

	// instagram
	instagramCmd := &cobra.Command{
		Use:   "instagram",
		Short: "Подключение Instagram",
		Long: `Подключение идет в два шага: авторизация по ссылке из login-url,
затем сохранение id бизнес аккаунта через set-id.`,
	}
	instagramStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Показать статус Instagram",
		RunE:  c.run(c.handleInstagramStatus),
	}
	instagramURLCmd := &cobra.Command{
		Use:   "login-url",
		Short: "Показать ссылку авторизации",
		RunE:  c.run(c.handleInstagramLoginURL),
	}
	instagramSetIDCmd := &cobra.Command{
		Use:   "set-id [business-account-id]",
		Short: "Сохранить id бизнес аккаунта",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run(c.handleInstagramSetID),
	}
	instagramCmd.AddCommand(instagramStatusCmd, instagramURLCmd, instagramSetIDCmd)

	// settings
	settingsCmd := &cobra.Command{Use: "settings", Short: "Расписание и шаблон напоминания"}
	settingsShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Показать расписание",
		RunE:  c.run(c.handleSettingsShow),
	}
	settingsSetCmd := &cobra.Command{
		Use:   "set",
		Short: "Изменить расписание",
		Long: `Меняет только переданные поля. Время в формате HH:MM.
Пауза AI задается парой --pause-from и --pause-to, --clear-pause убирает паузу.`,
		RunE: c.run(c.handleSettingsSet),
	}
	settingsSetCmd.Flags().String("report-time", "", "время ежедневного отчета")
	settingsSetCmd.Flags().String("pause-from", "", "начало паузы AI")
	settingsSetCmd.Flags().String("pause-to", "", "конец паузы AI")
	settingsSetCmd.Flags().Bool("clear-pause", false, "убрать паузу AI")
	settingsSetCmd.Flags().String("followup", "", "шаблон напоминания")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)

	// global
	globalCmd := &cobra.Command{Use: "global", Short: "Глобальный бот отчетов"}
	globalStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Показать статус глобального бота",
		RunE:  c.run(c.handleGlobalStatus),
	}
	globalReportTimeCmd := &cobra.Command{
		Use:   "report-time [HH:MM]",
		Short: "Изменить время отчета",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run(c.handleGlobalReportTime),
	}
	globalTestCmd := &cobra.Command{
		Use:   "test-report",
		Short: "Отправить тестовый отчет",
		RunE:  c.run(c.handleGlobalTestReport),
	}
	globalCmd.AddCommand(globalStatusCmd, globalReportTimeCmd, globalTestCmd)

	botCmd.AddCommand(configCmd, telegramCmd, instagramCmd, settingsCmd, globalCmd)
	return botCmd
}

func (c *console) botController() (*botconfig.Controller, error) {
	a, err := c.open(router.PathBotConfig)
	if err != nil {
		return nil, err
	}
	return a.BotConfigController(), nil
}

func (c *console) handleBotConfigShow(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadGeneral(c.ctx); err != nil {
		return err
	}
	return c.printer.Print(newBotConfigView(ctrl.General().Confirmed))
}

func (c *console) handleBotConfigSet(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadGeneral(c.ctx); err != nil {
		return err
	}

	draft := ctrl.General().Draft
	if cmd.Flags().Changed("name") {
		draft.BotName, _ = cmd.Flags().GetString("name")
	}
	if cmd.Flags().Changed("prompt") {
		draft.Prompt, _ = cmd.Flags().GetString("prompt")
	}
	ctrl.SetGeneral(draft)
	if err := ctrl.SaveGeneral(c.ctx); err != nil {
		return err
	}

	c.printer.Message("Настройки AI сохранены")
	return c.printer.Print(newBotConfigView(ctrl.General().Confirmed))
}

func (c *console) handleTelegramStatus(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadTelegram(c.ctx); err != nil {
		return err
	}
	return c.printer.Print(telegramView(ctrl.Telegram().Confirmed))
}

func (c *console) handleTelegramConnect(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}

	ctrl.SetTelegram(botconfig.TelegramDraft{Token: args[0]})
	if err := ctrl.ConnectTelegram(c.ctx); err != nil {
		return err
	}

	c.printer.Message("Telegram бот подключен")
	return c.printer.Print(telegramView(ctrl.Telegram().Confirmed))
}

func (c *console) instagramView(ctrl *botconfig.Controller) instagramView {
	return instagramView{InstagramStatus: ctrl.Instagram().Confirmed, Step: ctrl.InstagramStep().String()}
}

func (c *console) handleInstagramStatus(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadInstagram(c.ctx); err != nil {
		return err
	}
	return c.printer.Print(c.instagramView(ctrl))
}

func (c *console) handleInstagramLoginURL(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	loginURL, err := ctrl.InstagramLoginURL()
	if err != nil {
		return err
	}
	c.printer.Message("Откройте ссылку в браузере и завершите авторизацию:")
	_, err = cmd.OutOrStdout().Write([]byte(loginURL + "\n"))
	return err
}

func (c *console) handleInstagramSetID(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadInstagram(c.ctx); err != nil {
		return err
	}

	ctrl.SetInstagram(botconfig.InstagramDraft{BusinessAccountID: args[0]})
	if err := ctrl.SaveInstagramID(c.ctx); err != nil {
		return err
	}

	c.printer.Message("Id бизнес аккаунта Instagram сохранен")
	return c.printer.Print(c.instagramView(ctrl))
}

func (c *console) handleSettingsShow(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadSchedule(c.ctx); err != nil {
		return err
	}
	return c.printer.Print(settingsView(ctrl.Schedule().Confirmed))
}

func (c *console) handleSettingsSet(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadSchedule(c.ctx); err != nil {
		return err
	}

	flags := cmd.Flags()
	draft := ctrl.Schedule().Draft
	if flags.Changed("report-time") {
		draft.DailyReportTime, _ = flags.GetString("report-time")
	}
	if flags.Changed("pause-from") {
		from, _ := flags.GetString("pause-from")
		draft.PauseFrom = &from
	}
	if flags.Changed("pause-to") {
		to, _ := flags.GetString("pause-to")
		draft.PauseTo = &to
	}
	if clearPause, _ := flags.GetBool("clear-pause"); clearPause {
		draft.PauseFrom, draft.PauseTo = nil, nil
	}
	if flags.Changed("followup") {
		followup, _ := flags.GetString("followup")
		draft.FollowupTemplate = &followup
	}

	ctrl.SetSchedule(draft)
	if err := ctrl.SaveSchedule(c.ctx); err != nil {
		return err
	}

	c.printer.Message("Расписание сохранено")
	return c.printer.Print(settingsView(ctrl.Schedule().Confirmed))
}

func (c *console) handleGlobalStatus(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadGlobal(c.ctx); err != nil {
		return err
	}
	return c.printer.Print(globalView(ctrl.Global().Confirmed))
}

func (c *console) handleGlobalReportTime(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}

	ctrl.SetGlobal(botconfig.GlobalDraft{ReportTime: args[0]})
	if err := ctrl.SaveReportTime(c.ctx); err != nil {
		return err
	}

	c.printer.Message("Время отчета: %s", args[0])
	return c.printer.Print(globalView(ctrl.Global().Confirmed))
}

func (c *console) handleGlobalTestReport(cmd *cobra.Command, args []string) error {
	ctrl, err := c.botController()
	if err != nil {
		return err
	}
	if err := ctrl.LoadGlobal(c.ctx); err != nil {
		return err
	}
	if err := ctrl.SendTestReport(c.ctx); err != nil {
		return err
	}

	c.printer.Message("Тестовый отчет отправлен")
	return nil
}
