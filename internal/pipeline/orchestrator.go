// Package pipeline runs the ledger's background work: the lifecycle sweeper
// and the snapshot archiver.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages all background goroutines. Either component may be
// nil, in which case it is not started.
type Orchestrator struct {
	sweeper       *Sweeper
	archiver      *Archiver
	sweepInterval time.Duration
	archiveCron   string
	logger        *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates the sweeper and
// the archiver.
func NewOrchestrator(
	sweeper *Sweeper,
	archiver *Archiver,
	sweepInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sweeper:       sweeper,
		archiver:      archiver,
		sweepInterval: sweepInterval,
		archiveCron:   archiveCron,
		logger:        logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline orchestrator starting",
		slog.Bool("sweeper", o.sweeper != nil),
		slog.Duration("sweep_interval", o.sweepInterval),
		slog.Bool("archiver", o.archiver != nil),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.sweeper != nil {
		g.Go(func() error {
			err := o.sweeper.RunLoop(ctx, o.sweepInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("sweeper: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
