package cmd

import (
	"github.com/spf13/cobra"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/validation"
	"ExtraGPTConsole/services/console/internal/audit"
	"ExtraGPTConsole/services/console/internal/domain"
)

func newAuthCmd(c *console) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Управление сессией",
		Long: `Команды для входа в систему, выхода и проверки текущей сессии.
Токены хранятся в локальном хранилище сессии.`,
	}

	loginCmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Войти в систему",
		Long: `Выполняет вход по имени пользователя и паролю.
Сохраняет токены, пользователя и бизнес для последующих команд.`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.run(c.handleLogin),
	}
	loginCmd.Flags().StringP("password", "p", "", "пароль (по умолчанию запрашивается)")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Выйти из системы",
		Long:  `Удаляет сохраненные токены и данные пользователя. Запрос к серверу не выполняется.`,
		RunE:  c.run(c.handleLogout),
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Проверить статус сессии",
		Long:  `Показывает текущего пользователя, его роль и выбранный бизнес.`,
		RunE:  c.run(c.handleAuthStatus),
	}

	authCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
	return authCmd
}

func (c *console) handleLogin(cmd *cobra.Command, args []string) error {
	var username string
	if len(args) > 0 {
		username = args[0]
	}
	password, _ := cmd.Flags().GetString("password")

	var err error
	if username == "" {
		if username, err = prompt(cmd, "Username: "); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = prompt(cmd, "Password: "); err != nil {
			return err
		}
	}

	v := validation.NewValidator()
	if err := v.ValidateRequired(username, "username"); err != nil {
		return pkgerrors.Invalid(err)
	}
	if err := v.ValidateRequired(password, "password"); err != nil {
		return pkgerrors.Invalid(err)
	}

	a, err := c.open("")
	if err != nil {
		return err
	}

	user, err := a.Session.Login(c.ctx, domain.Credentials{Username: username, Password: password})
	if err != nil {
		return err
	}
	a.Audit.Publish(c.ctx, audit.EventSessionStarted, map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
	})

	c.printer.Message("Вход выполнен: %s (%s)", user.Username, user.Role)
	return c.printer.Print(userView{*user})
}

func (c *console) handleLogout(cmd *cobra.Command, args []string) error {
	a, err := c.open("")
	if err != nil {
		return err
	}
	if err := a.Session.Hydrate(c.ctx); err != nil {
		return err
	}

	user := a.Session.User()
	if err := a.Session.Logout(c.ctx); err != nil {
		return err
	}
	if user != nil {
		a.Audit.Publish(c.ctx, audit.EventSessionTerminated, map[string]interface{}{
			"user_id":  user.ID,
			"username": user.Username,
		})
	}

	c.printer.Message("Выход выполнен")
	return nil
}

func (c *console) handleAuthStatus(cmd *cobra.Command, args []string) error {
	a, err := c.open("")
	if err != nil {
		return err
	}
	if err := a.Session.Hydrate(c.ctx); err != nil {
		return err
	}

	view := sessionView{
		Authenticated: a.Session.Authenticated(),
		User:          a.Session.User(),
		Server:        a.Gateway.BaseURL(),
	}
	if id, ok := a.Session.BusinessID(); ok {
		view.BusinessID = &id
	}
	return c.printer.Print(view)
}
