package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/binaryoptions/internal/pipeline"
	"github.com/alanyoungcy/binaryoptions/internal/platform/binance"
	"github.com/alanyoungcy/binaryoptions/internal/scheduler"
	"github.com/alanyoungcy/binaryoptions/internal/server"
	"github.com/alanyoungcy/binaryoptions/internal/server/handler"
	"github.com/alanyoungcy/binaryoptions/internal/server/ws"
	"github.com/alanyoungcy/binaryoptions/internal/service"
)

// core is the settlement machinery shared by every mode.
type core struct {
	orders *service.BinaryOrderService
	sched  *scheduler.Scheduler
}

// FullMode serves the API and runs settlement plus the maintenance loops in
// one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	a.startScheduler(ctx, g, c)
	a.startHTTPServer(ctx, g, deps, c)
	a.startPipeline(ctx, g, deps, c)

	return g.Wait()
}

// APIMode serves the API. Orders placed here are settled by this process's
// scheduler; pending orders found at startup are armed once.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	a.startScheduler(ctx, g, c)
	a.startHTTPServer(ctx, g, deps, c)

	n, err := c.orders.Reconcile(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "api mode: startup reconcile failed", slog.String("error", err.Error()))
	} else {
		a.logger.InfoContext(ctx, "api mode: pending orders armed", slog.Int("count", n))
	}

	return g.Wait()
}

// WorkerMode settles orders without serving HTTP. The reconcile sweep picks
// up orders placed by API instances.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	a.startScheduler(ctx, g, c)
	a.startPipeline(ctx, g, deps, c)

	return g.Wait()
}

func (a *App) buildCore(deps *Dependencies) *core {
	bc := a.cfg.Binary

	exchange := binance.New(binance.Config{
		BaseURL:           a.cfg.Exchange.BaseURL,
		Timeout:           a.cfg.Exchange.Timeout.Duration,
		RequestsPerSecond: a.cfg.Exchange.RequestsPerSecond,
		Burst:             a.cfg.Exchange.Burst,
		BanCooldown:       a.cfg.Exchange.BanCooldown.Duration,
	}, deps.BanGuard, a.logger)
	prices := service.NewPriceService(exchange, deps.PriceCache, deps.SignalBus, a.cfg.Exchange.PriceCacheTTL.Duration, a.logger)

	dd := service.DispatcherDeps{
		Bus:           deps.SignalBus,
		Notifications: deps.Notifications,
		Users:         deps.UserStore,
		Alerts:        deps.Notifier,
		Audit:         deps.AuditStore,
	}
	if deps.Mailer != nil {
		dd.Mailer = deps.Mailer
	}

	orders := service.NewBinaryOrderService(service.BinaryOrderDeps{
		Tx:         deps.Tx,
		Orders:     deps.OrderStore,
		Markets:    deps.MarketStore,
		Oracle:     prices,
		Guard:      deps.BanGuard,
		Locks:      deps.LockManager,
		Dispatcher: service.NewDispatcher(dd, a.logger),
	}, service.BinaryOrderConfig{
		Enabled:       bc.Enabled,
		ProfitPercent: decimal.NewFromFloat(bc.ProfitPercent),
		RetryDelay:    bc.SettleRetryDelay.Duration,
		MinDuration:   bc.MinDuration.Duration,
		MaxDuration:   bc.MaxDuration.Duration,
		LockTTL:       bc.SettleLockTTL.Duration,
	}, a.logger)

	sched := scheduler.New(orders.SettleScheduled, scheduler.Config{MaxConcurrent: bc.MaxConcurrent}, a.logger)
	orders.SetScheduler(sched)

	return &core{orders: orders, sched: sched}
}

func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, c *core) {
	g.Go(func() error {
		return c.sched.Run(ctx)
	})
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	sc := a.cfg.Server
	if !sc.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	hub := ws.NewHub(deps.SignalBus, sc.CORSOrigins, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        sc.Port,
		CORSOrigins: sc.CORSOrigins,
		JWTSecret:   sc.JWTSecret,
		RateLimit:   sc.RateLimit,
		RateWindow:  sc.RateWindow.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Pingers, a.logger),
		Status: &handler.StatusHandler{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
			Pending:   c.sched.Len,
		},
		Orders:  handler.NewBinaryOrderHandler(c.orders, a.logger),
		Markets: handler.NewMarketHandler(deps.MarketStore, decimal.NewFromFloat(a.cfg.Binary.ProfitPercent), a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", sc.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", sc.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	}
	orch := pipeline.NewOrchestrator(
		pipeline.NewReconciler(c.orders, a.logger),
		archiver,
		a.cfg.Binary.ReconcileEvery.Duration,
		a.cfg.Archive.Cron,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}
