package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/okeymeta/probalyze-sub000/internal/blob/s3"
	"github.com/okeymeta/probalyze-sub000/internal/pipeline"
	"github.com/okeymeta/probalyze-sub000/internal/server"
	"github.com/okeymeta/probalyze-sub000/internal/server/handler"
	"github.com/okeymeta/probalyze-sub000/internal/server/ws"
)

// ServerMode serves the HTTP API and the websocket event feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// SweeperMode runs only the background pipelines: the lifecycle sweeper and,
// when enabled, the snapshot archiver.
func (a *App) SweeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweeper mode")

	orch := a.buildOrchestrator(ctx, deps, true)
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("sweeper mode: %w", err)
	}
	return nil
}

// FullMode runs the API server and the background pipelines in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)

	orch := a.buildOrchestrator(ctx, deps, a.cfg.Sweeper.Enabled)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	return g.Wait()
}

// ReportMode prints the markets, balances, and platform stats as tables and
// returns.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting report mode")

	markets, err := deps.Engine.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("report mode: markets: %w", err)
	}
	balances, err := deps.Balances.List(ctx)
	if err != nil {
		return fmt.Errorf("report mode: balances: %w", err)
	}
	stats, err := deps.Stats.Get(ctx)
	if err != nil {
		return fmt.Errorf("report mode: stats: %w", err)
	}

	deps.Console.Markets(markets)
	deps.Console.Balances(balances)
	deps.Console.Stats(stats)
	return nil
}

// buildOrchestrator assembles the sweeper and archiver. The sweeper is
// included when withSweeper is true; the archiver when snapshots are wired.
func (a *App) buildOrchestrator(ctx context.Context, deps *Dependencies, withSweeper bool) *pipeline.Orchestrator {
	var sweeper *pipeline.Sweeper
	if withSweeper {
		sweeper = pipeline.NewSweeper(deps.Engine, a.logger)
	}

	var archiver *pipeline.Archiver
	if deps.Snapshots != nil {
		archiver = pipeline.NewArchiver(deps.Snapshots, a.cfg.Archive.RetentionDays, a.logger)
		if deps.BlobReader != nil && deps.BlobDeleter != nil {
			reader, deleter := deps.BlobReader, deps.BlobDeleter
			archiver.WithPruner(func(ctx context.Context, before time.Time) (int, error) {
				return s3blob.PruneSnapshots(ctx, reader, deleter, before)
			})
		}
	} else if a.cfg.Archive.Enabled {
		a.logger.WarnContext(ctx, "archive enabled but blob storage is not wired; snapshots disabled")
	}

	return pipeline.NewOrchestrator(
		sweeper,
		archiver,
		a.cfg.Sweeper.Interval.Duration,
		a.cfg.Archive.Cron,
		a.logger,
	)
}

// startHTTPServer registers the API server, the websocket hub, and a
// shutdown watcher on g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		StartedAt:      time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	admin := handler.NewAdminHandler(deps.Engine, deps.Balances, deps.Stats, deps.Engine, a.logger)
	if audit, ok := deps.AuditStore.(handler.AuditReader); ok {
		admin.WithAudit(audit)
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, deps.Documents, a.logger),
		Markets:  handler.NewMarketHandler(deps.Engine, a.logger),
		Bets:     handler.NewBetHandler(deps.Engine, a.logger),
		Balances: handler.NewBalanceHandler(deps.Balances, deps.Engine, a.logger),
		Stats:    handler.NewStatsHandler(deps.Stats, a.logger),
		Admin:    admin,
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
