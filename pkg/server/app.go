package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TradePull/internal/domain/repository"
	"TradePull/internal/feed"
	"TradePull/internal/runtime"
	"TradePull/internal/scheduler"
	"TradePull/pkg/cache"
	pkgch "TradePull/pkg/clickhouse"
	"TradePull/pkg/config"
	xhttp "TradePull/pkg/http"
	applogger "TradePull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Task names registered with the scheduler.
const (
	taskTokenRefresher = "token_refresher"
	taskHealthMonitor  = "feed_health_monitor"
)

// Handlers groups route registrars into a single xhttp.Handler.
type Handlers []xhttp.Handler

func (hs Handlers) RegisterRoutes(e *echo.Echo) {
	for _, h := range hs {
		h.RegisterRoutes(e)
	}
}

// App encapsulates the entire application lifecycle: the feed
// connection, the background tasks that supervise it, the strategy
// manager, and the HTTP surface.
type App struct {
	cfg       *config.Config
	logger    *applogger.Logger
	feedConn  *feed.Connection
	sched     *scheduler.Scheduler
	refresher *scheduler.TokenRefresher
	monitor   *scheduler.FeedHealthMonitor
	mgr       *runtime.Manager
	publisher repository.EventPublisher
	chClient  *pkgch.Client
	redis     *cache.RedisCache

	handler    xhttp.Handler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	feedConn *feed.Connection,
	sched *scheduler.Scheduler,
	refresher *scheduler.TokenRefresher,
	monitor *scheduler.FeedHealthMonitor,
	mgr *runtime.Manager,
	publisher repository.EventPublisher,
	chClient *pkgch.Client,
	redis *cache.RedisCache,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		feedConn:  feedConn,
		sched:     sched,
		refresher: refresher,
		monitor:   monitor,
		mgr:       mgr,
		publisher: publisher,
		chClient:  chClient,
		redis:     redis,
		handler:   handler,
	}
}

// Run starts the application and blocks until interrupted. The feed
// itself is brought up by the health monitor's first run, so a broker
// outage at boot delays data instead of killing the process.
func (a *App) Run() error {
	if err := a.sched.Start(taskTokenRefresher, a.cfg.Scheduler.TokenRefreshInterval, a.refresher.Run); err != nil {
		return err
	}
	if err := a.sched.Start(taskHealthMonitor, a.cfg.Scheduler.MonitorInterval, a.monitor.Run); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("application started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.sched.StopAll()
	a.mgr.Shutdown()

	if err := a.feedConn.Close(); err != nil {
		a.logger.Warn("feed close error", applogger.Error(err))
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
