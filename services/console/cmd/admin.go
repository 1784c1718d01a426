package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/services/console/internal/app"
	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/pages/admin"
	"ExtraGPTConsole/services/console/internal/router"
)

// ownerLookupLimit сколько пользователей загружается для выбора владельца
const ownerLookupLimit = 1000

func newAdminCmd(c *console) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Администрирование",
		Long:  `Управление пользователями и бизнесами. Доступно только администратору.`,
	}

	usersCmd := &cobra.Command{Use: "users", Short: "Пользователи"}
	usersListCmd := &cobra.Command{
		Use:   "list",
		Short: "Показать пользователей",
		RunE:  c.run(c.handleUsersList),
	}
	usersListCmd.Flags().Int("page", 1, "номер страницы")

	usersCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Создать пользователя",
		Long:  `Создает пользователя. Роль: admin, owner или operator. Пароль не короче 6 символов.`,
		RunE:  c.run(c.handleUsersCreate),
	}
	usersCreateCmd.Flags().StringP("username", "u", "", "имя пользователя")
	usersCreateCmd.Flags().String("phone", "", "телефон")
	usersCreateCmd.Flags().StringP("password", "p", "", "пароль (по умолчанию запрашивается)")
	usersCreateCmd.Flags().StringP("role", "r", string(domain.RoleOperator), "роль")
	usersCmd.AddCommand(usersListCmd, usersCreateCmd)

	businessesCmd := &cobra.Command{Use: "businesses", Short: "Бизнесы"}
	businessesListCmd := &cobra.Command{
		Use:   "list",
		Short: "Показать бизнесы",
		RunE:  c.run(c.handleBusinessesList),
	}
	businessesListCmd.Flags().Int("page", 1, "номер страницы")

	ownersCmd := &cobra.Command{
		Use:   "owners",
		Short: "Показать пользователей, которых можно назначить владельцем",
		RunE:  c.run(c.handleOwnersList),
	}

	businessesCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Создать бизнес",
		Long:  `Создает бизнес. --owner принимает id или имя пользователя с ролью owner.`,
		RunE:  c.run(c.handleBusinessesCreate),
	}
	businessesCreateCmd.Flags().StringP("name", "n", "", "название бизнеса")
	businessesCreateCmd.Flags().String("owner", "", "владелец: id или имя пользователя")
	businessesUseCmd := &cobra.Command{
		Use:   "use [business-id]",
		Short: "Выбрать рабочий бизнес",
		Long: `Выбирает бизнес, с которым администратор работает в чате, лидах и настройках бота.
Выбор хранится в сессии до следующего входа.`,
		Args: cobra.ExactArgs(1),
		RunE: c.run(c.handleBusinessesUse),
	}
	businessesCmd.AddCommand(businessesListCmd, ownersCmd, businessesCreateCmd, businessesUseCmd)

	adminCmd.AddCommand(usersCmd, businessesCmd)
	return adminCmd
}

func (c *console) adminApp() (*app.App, error) {
	return c.open(router.PathAdmin)
}

// pageIndex переводит номер страницы из флага в нумерацию с нуля
func pageIndex(cmd *cobra.Command) (int, error) {
	page, _ := cmd.Flags().GetInt("page")
	if page < 1 {
		return 0, pkgerrors.Invalid(fmt.Errorf("page must be at least 1"))
	}
	return page - 1, nil
}

func (c *console) handleUsersList(cmd *cobra.Command, args []string) error {
	page, err := pageIndex(cmd)
	if err != nil {
		return err
	}
	a, err := c.adminApp()
	if err != nil {
		return err
	}

	ctrl := a.AdminController()
	if err := ctrl.SetUsersPage(c.ctx, page); err != nil {
		return err
	}
	return c.printer.Print(usersView(ctrl.Snapshot().Users))
}

func (c *console) handleUsersCreate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	form := admin.UserForm{}
	form.Username, _ = flags.GetString("username")
	form.Phone, _ = flags.GetString("phone")
	form.Password, _ = flags.GetString("password")
	form.Role, _ = flags.GetString("role")

	a, err := c.adminApp()
	if err != nil {
		return err
	}
	if form.Password == "" {
		if form.Password, err = prompt(cmd, "Password: "); err != nil {
			return err
		}
	}

	user, err := a.AdminController().CreateUser(c.ctx, form)
	if user == nil {
		return err
	}
	if err != nil {
		// Пользователь создан, не удалось только перечитать таблицы
		a.Logger.Warn("Failed to reload admin tables", logger.Error(err))
	}
	c.printer.Message("Пользователь %s создан", user.Username)
	return c.printer.Print(userView{*user})
}

func (c *console) handleBusinessesList(cmd *cobra.Command, args []string) error {
	page, err := pageIndex(cmd)
	if err != nil {
		return err
	}
	a, err := c.adminApp()
	if err != nil {
		return err
	}

	ctrl := a.AdminController()
	if err := ctrl.SetBusinessesPage(c.ctx, page); err != nil {
		return err
	}
	return c.printer.Print(businessesView(ctrl.Snapshot().Businesses))
}

func (c *console) handleBusinessesUse(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "business")
	if err != nil {
		return err
	}
	a, err := c.adminApp()
	if err != nil {
		return err
	}

	ctrl := admin.NewController(a.Admin, a.Audit, a.Logger, ownerLookupLimit)
	if err := ctrl.LoadBusinesses(c.ctx); err != nil {
		return err
	}
	var selected *domain.Business
	for _, b := range ctrl.Snapshot().Businesses {
		if b.ID == id {
			selected = &b
			break
		}
	}
	if selected == nil {
		return pkgerrors.New(pkgerrors.ErrNotFound, "business not found").
			WithDetails(fmt.Sprintf("Бизнес %d не найден", id))
	}

	if err := a.Session.SetBusinessID(c.ctx, id); err != nil {
		return err
	}
	a.Logger.Info("Business selected", logger.Int64("business_id", id))
	c.printer.Message("Выбран бизнес %d (%s)", selected.ID, selected.Name)
	return nil
}

// owners загружает пользователей и возвращает тех, кого можно выбрать владельцем
func (c *console) owners(a *app.App) ([]domain.User, error) {
	ctrl := admin.NewController(a.Admin, a.Audit, a.Logger, ownerLookupLimit)
	if err := ctrl.LoadUsers(c.ctx); err != nil {
		return nil, err
	}
	return ctrl.OwnerOptions(), nil
}

func (c *console) handleOwnersList(cmd *cobra.Command, args []string) error {
	a, err := c.adminApp()
	if err != nil {
		return err
	}
	owners, err := c.owners(a)
	if err != nil {
		return err
	}
	return c.printer.Print(usersView(owners))
}

// resolveOwner ищет владельца по id или имени. Пустое значение дает 0,
// такую форму отклонит проверка перед запросом.
func resolveOwner(owners []domain.User, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	id, numErr := strconv.ParseInt(value, 10, 64)
	for _, u := range owners {
		if (numErr == nil && u.ID == id) || strings.EqualFold(u.Username, value) {
			return u.ID, nil
		}
	}
	return 0, pkgerrors.New(pkgerrors.ErrValidation, "owner not found").
		WithDetails(fmt.Sprintf("Пользователь %q с ролью owner не найден", value))
}

func (c *console) handleBusinessesCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	ownerValue, _ := cmd.Flags().GetString("owner")

	a, err := c.adminApp()
	if err != nil {
		return err
	}

	var ownerID int64
	if strings.TrimSpace(ownerValue) != "" {
		owners, err := c.owners(a)
		if err != nil {
			return err
		}
		if ownerID, err = resolveOwner(owners, ownerValue); err != nil {
			return err
		}
	}

	business, err := a.AdminController().CreateBusiness(c.ctx, admin.BusinessForm{Name: name, OwnerID: ownerID})
	if business == nil {
		return err
	}
	if err != nil {
		a.Logger.Warn("Failed to reload admin tables", logger.Error(err))
	}
	c.printer.Message("Бизнес %s создан", business.Name)
	return c.printer.Print(businessesView{*business})
}
