package cmd

import (
	"github.com/spf13/cobra"

	"ExtraGPTConsole/services/console/internal/router"
)

func newNavCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "nav",
		Short: "Показать доступные страницы",
		Long:  `Показывает пункты навигации, доступные роли текущего пользователя.`,
		RunE: c.run(func(cmd *cobra.Command, args []string) error {
			a, err := c.open(router.PathDashboard)
			if err != nil {
				return err
			}
			return c.printer.Print(navView(router.Nav(a.Session.User())))
		}),
	}
}

func newDashboardCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"home"},
		Short:   "Сводка по бизнесу",
		Long: `Показывает количество диалогов и лидов, активные за сутки диалоги,
новые лиды за сегодня и распределение по каналам.`,
		RunE: c.run(func(cmd *cobra.Command, args []string) error {
			a, err := c.open(router.PathDashboard)
			if err != nil {
				return err
			}
			summary, err := a.DashboardController().Load(c.ctx)
			if err != nil {
				return err
			}
			return c.printer.Print(summaryView{*summary})
		}),
	}
}
