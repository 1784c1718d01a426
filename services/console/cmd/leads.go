package cmd

import (
	"github.com/spf13/cobra"

	"ExtraGPTConsole/services/console/internal/domain"
	"ExtraGPTConsole/services/console/internal/router"
)

func newLeadsCmd(c *console) *cobra.Command {
	leadsCmd := &cobra.Command{
		Use:   "leads",
		Short: "Лиды бизнеса",
		Long: `Команды для просмотра лидов и смены их статуса.
Статусы: need_to_call, contacted, continuing, finished, rejected.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Показать лиды",
		RunE:  c.run(c.handleLeadsList),
	}
	listCmd.Flags().String("status", "", "фильтр по статусу (по умолчанию все)")
	listCmd.Flags().Bool("stats", false, "показать только количество по статусам")

	setStatusCmd := &cobra.Command{
		Use:   "set-status [lead-id] [status]",
		Short: "Сменить статус лида",
		Long:  `Меняет статус лида. Допускается любой переход. После смены список и счетчики загружаются заново.`,
		Args:  cobra.ExactArgs(2),
		RunE:  c.run(c.handleLeadsSetStatus),
	}

	leadsCmd.AddCommand(listCmd, setStatusCmd)
	return leadsCmd
}

func (c *console) handleLeadsList(cmd *cobra.Command, args []string) error {
	a, err := c.open(router.PathLeads)
	if err != nil {
		return err
	}

	status, _ := cmd.Flags().GetString("status")
	ctrl := a.LeadsController()
	if err := ctrl.SetFilter(c.ctx, status); err != nil {
		return err
	}

	snap := ctrl.Snapshot()
	if onlyStats, _ := cmd.Flags().GetBool("stats"); onlyStats {
		return c.printer.Print(leadStatsView(snap.Stats))
	}
	return c.printer.Print(leadsView{Filter: snap.Filter, Leads: snap.Leads, Total: snap.Total, Stats: snap.Stats})
}

func (c *console) handleLeadsSetStatus(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "lead")
	if err != nil {
		return err
	}
	a, err := c.open(router.PathLeads)
	if err != nil {
		return err
	}

	ctrl := a.LeadsController()
	if err := ctrl.UpdateStatus(c.ctx, id, args[1]); err != nil {
		return err
	}

	c.printer.Message("Статус лида %d: %s", id, args[1])
	snap := ctrl.Snapshot()
	if lead, ok := ctrl.Lead(id); ok {
		return c.printer.Print(leadsView{Leads: []domain.Lead{lead}, Total: snap.Total, Stats: snap.Stats})
	}
	return c.printer.Print(leadStatsView(snap.Stats))
}
