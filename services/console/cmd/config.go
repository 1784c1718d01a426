package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"ExtraGPTConsole/pkg/config"
	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/services/console/internal/output"
)

func newConfigCmd(c *console) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Управление конфигурацией",
		Long: `Команды для просмотра и создания файла конфигурации консоли.
Значения из файла переопределяются переменными EXTRAGPT_* и флагами.`,
		// init должен работать и с поврежденным файлом
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(cmd); err != nil && cmd.Name() != "init" {
				return err
			}
			if c.printer == nil {
				c.printer = output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Показать текущую конфигурацию",
		Long:  `Показывает итоговую конфигурацию с учетом файла, окружения и флагов. Пароли скрываются.`,
		RunE:  c.run(c.handleConfigShow),
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Показать путь к файлу конфигурации",
		RunE: c.run(func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write([]byte(c.configPath() + "\n"))
			return err
		}),
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Создать файл конфигурации",
		Long:  `Записывает конфигурацию по умолчанию. Существующий файл перезаписывается только с --force.`,
		RunE:  c.run(c.handleConfigInit),
	}
	initCmd.Flags().Bool("force", false, "перезаписать существующий файл")
	initCmd.Flags().String("api-url", "", "адрес API сервера")

	configCmd.AddCommand(showCmd, pathCmd, initCmd)
	return configCmd
}

func (c *console) handleConfigShow(cmd *cobra.Command, args []string) error {
	shown := *c.cfg
	if shown.Redis.Password != "" {
		shown.Redis.Password = "***"
	}
	return c.printer.Print(shown)
}

func (c *console) handleConfigInit(cmd *cobra.Command, args []string) error {
	path := c.configPath()
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return pkgerrors.New(pkgerrors.ErrConflict, "config already exists").
			WithDetails("Файл " + path + " уже существует, используйте --force")
	}

	cfg := config.Default()
	if apiURL, _ := cmd.Flags().GetString("api-url"); apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if err := cfg.Validate(); err != nil {
		return pkgerrors.Invalid(err)
	}
	if err := cfg.Save(path); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to save config")
	}

	c.printer.Message("Конфигурация сохранена: %s", path)
	return nil
}
