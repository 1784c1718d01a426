// Package app собирает зависимости консоли из конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tracesdk "go.opentelemetry.io/otel/sdk/trace"

	"ExtraGPTConsole/pkg/config"
	pkgerrors "ExtraGPTConsole/pkg/errors"
	"ExtraGPTConsole/pkg/health"
	"ExtraGPTConsole/pkg/logger"
	pkgmetrics "ExtraGPTConsole/pkg/metrics"
	"ExtraGPTConsole/pkg/rabbitmq"
	"ExtraGPTConsole/pkg/redis"
	"ExtraGPTConsole/services/console/internal/audit"
	"ExtraGPTConsole/services/console/internal/client"
	"ExtraGPTConsole/services/console/internal/metrics"
	"ExtraGPTConsole/services/console/internal/pages/admin"
	"ExtraGPTConsole/services/console/internal/pages/botconfig"
	"ExtraGPTConsole/services/console/internal/pages/chat"
	"ExtraGPTConsole/services/console/internal/pages/dashboard"
	"ExtraGPTConsole/services/console/internal/pages/leads"
	"ExtraGPTConsole/services/console/internal/router"
	"ExtraGPTConsole/services/console/internal/session"
	"ExtraGPTConsole/services/console/internal/store"
)

// Version версия консоли
const Version = "1.0.0"

// App зависимости консоли
type App struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Metrics
	Tracer  *tracesdk.TracerProvider

	Storage store.Storage
	Router  *router.Router
	Guard   *router.Guard
	Session *session.Store
	Gateway *client.Gateway
	Auth    *client.AuthAPI
	Admin   *client.AdminAPI
	Bot     *client.BotAPI
	Chat    *client.ChatAPI
	Leads   *client.LeadsAPI
	Audit   audit.Publisher
	Health  *health.ComponentChecker

	closers []func() error
}

// New создает App. Хранилище сессии выбирается по session.backend.
// Аудит подключается только при audit.enabled, ошибка подключения не фатальна.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(log),
		Tracer:  pkgmetrics.InitializeOpenTelemetry(metrics.ServiceName, Version),
		Router:  router.New(),
		Health:  health.NewComponentChecker(Version, 5*time.Second),
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return a.Tracer.Shutdown(shutdownCtx)
	})

	storage, err := a.openStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Storage = storage

	// Gateway нужен сессии, а сессия нужна Gateway для перехода ко входу.
	// Цикл разрывается замыканием, которое читает a.Session уже после сборки.
	gw, err := client.NewGateway(client.Options{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.APITimeout(),
		Storage:   storage,
		Navigator: client.NavigatorFunc(func(reason string) { a.Session.Expire(reason) }),
		Logger:    log,
		Metrics:   a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Gateway = gw
	a.Auth = client.NewAuthAPI(gw)
	a.Admin = client.NewAdminAPI(gw)
	a.Bot = client.NewBotAPI(gw)
	a.Chat = client.NewChatAPI(gw)
	a.Leads = client.NewLeadsAPI(gw)

	a.Session = session.NewStore(storage, a.Auth, a.Admin, a.Router, log)
	a.Guard = router.NewGuard(a.Session)
	a.Router.OnLogin(func(reason string) {
		log.Info("Navigated to login", logger.String("reason", reason))
	})

	a.Audit = a.openAudit(ctx)
	a.Health.Register("api", gw.Ping)

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (store.Storage, error) {
	cfg := a.Config
	switch cfg.Session.Backend {
	case "memory":
		return store.NewMemoryStorage(), nil
	case "redis":
		rcfg := redis.NewConfig()
		rcfg.Addr = cfg.Redis.Addr
		rcfg.Password = cfg.Redis.Password
		rcfg.DB = cfg.Redis.DB
		rcfg.PoolSize = cfg.Redis.PoolSize
		rcfg.MinIdleConn = cfg.Redis.MinIdleConn
		rcfg.MaxRetries = cfg.Redis.MaxRetries
		if d, err := time.ParseDuration(cfg.Redis.RetryInterval); err == nil {
			rcfg.RetryInterval = d
		}

		rc, err := redis.Connect(ctx, rcfg)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "session storage unavailable")
		}
		a.closers = append(a.closers, rc.Close)
		a.Health.Register("redis", rc.HealthCheck)
		a.Logger.Debug("Using redis session storage", logger.String("addr", cfg.Redis.Addr))
		return store.NewRedisStorage(rc.Client, cfg.Redis.KeyPrefix), nil
	default:
		fs, err := store.NewFileStorage(cfg.Session.Dir)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to open session storage")
		}
		a.Logger.Debug("Using file session storage", logger.String("path", fs.Path()))
		return fs, nil
	}
}

func (a *App) openAudit(ctx context.Context) audit.Publisher {
	if !a.Config.Audit.Enabled {
		return audit.Nop{}
	}

	rcfg := rabbitmq.NewConfig()
	rcfg.URL = a.Config.Audit.URL
	rcfg.Exchange = a.Config.Audit.Exchange
	rcfg.RoutingKey = a.Config.Audit.RoutingKey
	rcfg.MaxRetries = 1

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pub, err := audit.Dial(dialCtx, rcfg, a.Logger, a.Metrics)
	if err != nil {
		a.Logger.Warn("Audit events disabled", logger.Error(err))
		return audit.Nop{}
	}
	a.closers = append(a.closers, pub.Close)
	a.Health.Register("audit", pub.HealthCheck)
	return pub
}

// Require восстанавливает сессию и проверяет доступ к странице.
// Возвращает UNAUTHORIZED без входа и FORBIDDEN при чужой роли.
func (a *App) Require(ctx context.Context, path string) error {
	if !a.Session.Hydrated() {
		if err := a.Session.Hydrate(ctx); err != nil {
			return err
		}
	}

	decision := a.Guard.Resolve(path)
	switch decision.Outcome {
	case router.Render:
		a.Router.Navigate(path)
		return nil
	case router.Redirect:
		if decision.Target == router.PathLogin {
			return pkgerrors.New(pkgerrors.ErrUnauthorized, "not logged in").
				WithDetails("Выполните вход: extragpt auth login")
		}
		return pkgerrors.New(pkgerrors.ErrForbidden, "role not allowed").
			WithDetails(fmt.Sprintf("Страница %s недоступна для вашей роли", path))
	default:
		return pkgerrors.New(pkgerrors.ErrInternal, "session is not hydrated")
	}
}

// ChatController контроллер страницы чата.
// Страница завершается при любом принудительном переходе ко входу.
func (a *App) ChatController() *chat.Controller {
	ctrl := chat.NewController(chat.Options{
		API:             a.Chat,
		Session:         a.Session,
		Audit:           a.Audit,
		Logger:          a.Logger,
		Metrics:         a.Metrics,
		ListInterval:    a.Config.ConversationsInterval(),
		HistoryInterval: a.Config.HistoryInterval(),
	})
	a.Router.OnLogin(ctrl.Terminate)
	return ctrl
}

// LeadsController контроллер страницы лидов
func (a *App) LeadsController() *leads.Controller {
	return leads.NewController(a.Leads, a.Session, a.Audit, a.Logger)
}

// BotConfigController контроллер настроек бота
func (a *App) BotConfigController() *botconfig.Controller {
	return botconfig.NewController(a.Bot, a.Session, a.Audit, a.Logger)
}

// AdminController контроллер страницы администратора
func (a *App) AdminController() *admin.Controller {
	return admin.NewController(a.Admin, a.Audit, a.Logger, a.Config.Admin.PageSize)
}

// DashboardController контроллер главной страницы
func (a *App) DashboardController() *dashboard.Controller {
	return dashboard.NewController(a.Chat, a.Leads, a.Session, a.Logger)
}

// TelemetryHandler обработчик /metrics, /health, /ready, /live
func (a *App) TelemetryHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.GetHandler())
	mux.Handle("/health", health.Handler(a.Health))
	mux.Handle("/ready", health.Handler(a.Health))
	mux.Handle("/live", health.LiveHandler())
	return a.Metrics.Middleware(mux)
}

// ServeTelemetry запускает сервер метрик, если он включен.
// Возвращает функцию остановки.
func (a *App) ServeTelemetry() func() {
	if !a.Config.Metrics.Enabled {
		return func() {}
	}

	server := &http.Server{
		Addr:              a.Config.Metrics.Addr,
		Handler:           a.TelemetryHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.Logger.Info("Telemetry server started", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Telemetry server failed", logger.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.Logger.Warn("Telemetry server shutdown failed", logger.Error(err))
		}
	}
}

// Close освобождает подключения в обратном порядке
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
