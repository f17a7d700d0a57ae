package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coinpilot/coinpilot/internal/executor"
	"github.com/coinpilot/coinpilot/internal/server"
	"github.com/coinpilot/coinpilot/internal/server/handler"
	"github.com/coinpilot/coinpilot/internal/server/ws"
	"github.com/coinpilot/coinpilot/internal/service"
)

// services bundles the service layer built on top of the wired dependencies.
type services struct {
	signals   *service.SignalService
	trading   *service.PaperTradeService
	portfolio *service.PortfolioService
	configSvc *service.ConfigService
	prices    *service.PriceService
	retention *service.RetentionService
	exec      *executor.Executor
}

// buildServices constructs the executor and service layer from the wired
// dependencies. The retention service is nil when S3 is disabled.
func (a *App) buildServices(deps *Dependencies) *services {
	logger := a.logger

	exec := executor.New(
		deps.PositionStore,
		deps.Ledger,
		deps.SignalStore,
		deps.LockManager,
		logger,
	)

	trading := service.NewPaperTradeService(
		exec,
		deps.SignalStore,
		deps.PositionStore,
		deps.TradeStore,
		deps.PriceCache,
		deps.WeightsStore,
		deps.SignalBus,
		deps.AuditStore,
		deps.Notifier,
		logger,
	)
	trading.SetLookback(a.cfg.Trading.SignalLookback.Duration)

	svcs := &services{
		signals:   service.NewSignalService(deps.SignalStore, deps.WeightsStore, deps.SignalBus, logger),
		trading:   trading,
		portfolio: service.NewPortfolioService(deps.PositionStore, deps.PriceCache, deps.SnapshotStore, deps.SignalBus, logger),
		configSvc: service.NewConfigService(deps.WeightsStore, deps.AuditStore, logger),
		prices:    service.NewPriceService(deps.PriceCache, logger),
		exec:      exec,
	}

	if deps.Archiver != nil {
		svcs.retention = service.NewRetentionService(
			deps.Archiver,
			deps.SignalStore,
			deps.TradeStore,
			deps.SnapshotStore,
			logger,
		)
	}

	return svcs
}

// ServeMode runs the HTTP and WebSocket API without the background cycle.
// Signal evaluation and trade execution happen only on API request.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, svcs)
	return g.Wait()
}

// CycleMode runs the evaluation and execution loop without the API surface.
func (a *App) CycleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting cycle mode",
		slog.Duration("interval", a.cfg.Trading.CycleInterval.Duration),
	)

	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startCycleLoop(ctx, g, svcs)
	a.startRetentionLoop(ctx, g, svcs)
	return g.Wait()
}

// FullMode runs the API surface and the background cycle together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startCycleLoop(ctx, g, svcs)
	a.startRetentionLoop(ctx, g, svcs)
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, svcs)
	}
	return g.Wait()
}

// startServer adds the HTTP server and WebSocket hub goroutines to the
// errgroup. The server shuts down gracefully when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Signals:   handler.NewSignalHandler(svcs.signals, a.logger),
		Trades:    handler.NewTradeHandler(svcs.trading, a.logger),
		Portfolio: handler.NewPortfolioHandler(svcs.portfolio, a.logger),
		Admin:     handler.NewAdminHandler(svcs.configSvc, deps.AuditStore, a.logger),
		Prices:    handler.NewPriceHandler(svcs.prices, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startCycleLoop adds the periodic execution cycle goroutine to the
// errgroup. Each tick drains pending signals, sweeps risk exits, and takes a
// portfolio snapshot every SnapshotEvery cycles. Cycle failures are logged
// and retried on the next tick rather than stopping the loop.
func (a *App) startCycleLoop(ctx context.Context, g *errgroup.Group, svcs *services) {
	interval := a.cfg.Trading.CycleInterval.Duration
	snapshotEvery := a.cfg.Trading.SnapshotEvery

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cycles := 0
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			summary, err := svcs.trading.ExecuteRecent(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "cycle: execution failed",
					slog.String("error", err.Error()),
				)
				continue
			}

			svcs.exec.Cleanup()

			cycles++
			if snapshotEvery > 0 && cycles%snapshotEvery == 0 {
				if _, err := svcs.portfolio.TakeSnapshot(ctx); err != nil {
					a.logger.ErrorContext(ctx, "cycle: snapshot failed",
						slog.String("error", err.Error()),
					)
				}
			}

			a.logger.DebugContext(ctx, "cycle: completed",
				slog.Int("signals", summary.Signals),
				slog.Int("executed", summary.Executed),
				slog.Int("risk_exits", summary.RiskExits),
			)
		}
	})
}

// startRetentionLoop adds the archive-and-prune goroutine to the errgroup
// when retention is enabled and the archiver is wired.
func (a *App) startRetentionLoop(ctx context.Context, g *errgroup.Group, svcs *services) {
	if !a.cfg.Retention.Enabled || svcs.retention == nil {
		return
	}

	interval := a.cfg.Retention.SweepInterval.Duration
	retainFor := time.Duration(a.cfg.Retention.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			cutoff := time.Now().UTC().Add(-retainFor)
			res, err := svcs.retention.ArchiveAndPrune(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "retention: sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}

			a.logger.InfoContext(ctx, "retention: sweep completed",
				slog.Int64("signals_pruned", res.SignalsPruned),
				slog.Int64("trades_pruned", res.TradesPruned),
				slog.Int64("snapshots_pruned", res.SnapshotsPruned),
			)
		}
	})
}
