package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ExtraGPTConsole/pkg/config"
	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/logger"
	"ExtraGPTConsole/services/console/internal/app"
	"ExtraGPTConsole/services/console/internal/metrics"
	"ExtraGPTConsole/services/console/internal/output"
)

const (
	// annotationFileLog включает запись логов в файл вместо терминала
	annotationFileLog = "extragpt/file-log"
	// annotationTelemetry поднимает сервер метрик на время долгой команды
	annotationTelemetry = "extragpt/telemetry"
)

// console состояние одного запуска CLI
type console struct {
	ctx     context.Context
	v       *viper.Viper
	cfg     *config.Config
	log     logger.Logger
	app     *app.App
	printer *output.Printer

	telemetry     bool
	stopTelemetry func()
}

// Execute выполняет корневую команду. Подключения закрываются и после ошибки.
func Execute(ctx context.Context) error {
	rootCmd, c := newRootCommand(ctx)
	err := rootCmd.Execute()
	if closeErr := c.close(); err == nil && closeErr != nil && c.log != nil {
		c.log.Warn("Failed to close console", logger.Error(closeErr))
	}
	return err
}

// NewRootCommand создает дерево команд консоли
func NewRootCommand(ctx context.Context) *cobra.Command {
	rootCmd, _ := newRootCommand(ctx)
	return rootCmd
}

func newRootCommand(ctx context.Context) (*cobra.Command, *console) {
	c := &console{ctx: ctx, v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "extragpt",
		Short: "ExtraGPT - консоль управления AI ботами",
		Long: `ExtraGPT - консоль для администраторов, владельцев и операторов
бизнесов, которые ведут переписку с клиентами через AI ботов.

Поддерживает вход в систему, просмотр диалогов и лидов,
настройку бота, расписания и каналов, а также администрирование.`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return handleError(c.close(), cmd, c.log)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "файл конфигурации (по умолчанию ~/.extragpt/config.yaml)")
	flags.StringP("server", "s", "", "адрес API сервера")
	flags.StringP("output", "o", "", "формат вывода (table, json, yaml)")
	flags.Bool("no-color", false, "отключить цвета")
	flags.Bool("debug", false, "режим отладки")

	c.v.BindPFlag("config", flags.Lookup("config"))
	c.v.BindPFlag("server", flags.Lookup("server"))
	c.v.BindPFlag("output", flags.Lookup("output"))
	c.v.BindPFlag("no-color", flags.Lookup("no-color"))
	c.v.BindPFlag("debug", flags.Lookup("debug"))
	c.v.SetEnvPrefix("EXTRAGPT")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	rootCmd.AddCommand(newAuthCmd(c))
	rootCmd.AddCommand(newNavCmd(c))
	rootCmd.AddCommand(newDashboardCmd(c))
	rootCmd.AddCommand(newChatCmd(c))
	rootCmd.AddCommand(newLeadsCmd(c))
	rootCmd.AddCommand(newBotCmd(c))
	rootCmd.AddCommand(newAdminCmd(c))
	rootCmd.AddCommand(newConfigCmd(c))

	return rootCmd, c
}

// setup читает конфигурацию, флаги и создает логгер
func (c *console) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return handleError(err, cmd, nil)
	}

	cfg, err := config.LoadConfig(c.configPath())
	if err != nil {
		return handleError(pkgerrors.Wrap(err, pkgerrors.ErrValidation, "invalid configuration").
			WithDetails(err.Error()), cmd, nil)
	}

	if server := c.v.GetString("server"); server != "" {
		cfg.API.BaseURL = server
	}
	if format := c.v.GetString("output"); format != "" {
		cfg.Output.Format = format
	}
	if c.v.GetBool("no-color") {
		cfg.Output.Colors = false
	}
	if c.v.GetBool("debug") {
		cfg.Logger.Level = "debug"
	}
	if cmd.Annotations[annotationFileLog] == "true" {
		cfg.Logger.Output = cfg.Logger.File
	}

	if err := cfg.Validate(); err != nil {
		return handleError(pkgerrors.Invalid(err), cmd, nil)
	}

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return handleError(pkgerrors.Invalid(err), cmd, nil)
	}

	log, err := logger.NewLogger(cfg.Environment, cfg.Logger.Level, metrics.ServiceName, cfg.Logger.Output)
	if err != nil {
		return handleError(err, cmd, nil)
	}

	c.cfg = cfg
	c.log = log
	c.telemetry = cmd.Annotations[annotationTelemetry] == "true"
	c.printer = output.NewPrinter(cmd.OutOrStdout(), format, cfg.Output.Colors)
	return nil
}

func (c *console) configPath() string {
	if path := c.v.GetString("config"); path != "" {
		return path
	}
	return config.DefaultPath()
}

// open создает App при первом обращении и проверяет доступ к странице.
// Пустой path означает команду без проверки роли.
func (c *console) open(path string) (*app.App, error) {
	if c.app == nil {
		a, err := app.New(c.ctx, c.cfg, c.log)
		if err != nil {
			return nil, err
		}
		c.app = a
		if c.telemetry {
			c.stopTelemetry = a.ServeTelemetry()
		}
	}

	if path == "" {
		return c.app, nil
	}
	if err := c.app.Require(c.ctx, path); err != nil {
		return nil, err
	}
	return c.app, nil
}

func (c *console) close() error {
	if c.stopTelemetry != nil {
		c.stopTelemetry()
		c.stopTelemetry = nil
	}
	if c.app != nil {
		err := c.app.Close()
		c.app = nil
		return err
	}
	if c.log != nil {
		_ = c.log.Sync()
	}
	return nil
}

// run оборачивает обработчик команды: считает метрики и приводит ошибку к виду для пользователя
func (c *console) run(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		err := fn(cmd, args)
		if c.app != nil {
			c.app.Metrics.CommandExecuted(cmd.CommandPath(), err == nil, time.Since(start))
		}
		return handleError(err, cmd, c.log)
	}
}

// handleError приводит ошибку к единому виду для всех команд
func handleError(err error, cmd *cobra.Command, log logger.Logger) error {
	if err == nil {
		return nil
	}

	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) {
		appErr = pkgerrors.New(pkgerrors.ErrInternal, err.Error())
	}

	if log != nil {
		log.Debug("Command failed",
			logger.String("command", cmd.CommandPath()),
			logger.String("code", string(appErr.Code)),
			logger.Error(err))
		if pkgerrors.HasCode(err, pkgerrors.ErrSessionExpired) {
			log.Warn("Session expired", logger.String("command", cmd.CommandPath()))
		}
	}

	return fmt.Errorf("%s: %s", cmd.Name(), appErr.GetUserMessage())
}

// prompt читает строку из stdin команды
func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
