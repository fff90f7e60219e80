package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// PruneFunc deletes snapshots older than before and returns how many objects
// were removed.
type PruneFunc func(ctx context.Context, before time.Time) (int, error)

// Archiver copies the ledger documents to cold storage on a schedule and
// prunes snapshots past the retention window.
type Archiver struct {
	snapshots     domain.SnapshotArchiver
	prune         PruneFunc
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(snapshots domain.SnapshotArchiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		snapshots:     snapshots,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// WithPruner enables retention. Without it snapshots are kept forever.
func (a *Archiver) WithPruner(prune PruneFunc) *Archiver {
	a.prune = prune
	return a
}

// WithClock overrides the time source.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Run takes one snapshot, then prunes snapshots older than retentionDays.
// A prune failure is logged; the snapshot already succeeded.
func (a *Archiver) Run(ctx context.Context) error {
	at := a.now().UTC()
	a.logger.InfoContext(ctx, "starting snapshot run",
		slog.Time("at", at),
		slog.Int("retention_days", a.retentionDays),
	)

	written, err := a.snapshots.ArchiveSnapshot(ctx, at)
	if err != nil {
		return fmt.Errorf("snapshot at %s: %w", at.Format(time.RFC3339), err)
	}
	a.logger.InfoContext(ctx, "snapshot written", slog.Int("objects", written))

	if a.prune == nil || a.retentionDays <= 0 {
		return nil
	}
	cutoff := at.Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	removed, err := a.prune(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "snapshot prune failed",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if removed > 0 {
		a.logger.InfoContext(ctx, "old snapshots pruned",
			slog.Time("cutoff", cutoff),
			slog.Int("removed", removed),
		)
	}
	return nil
}

// RunCron takes a snapshot at every time the cron expression admits, in
// UTC, until ctx is cancelled. Besides the 5-field form it accepts @hourly,
// @daily, @weekly and @monthly.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseSchedule(cronExpr)
	if err != nil {
		return fmt.Errorf("cron %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, ok := sched.next(a.now().UTC())
		if !ok {
			return fmt.Errorf("cron %q: never fires", cronExpr)
		}
		wait := next.Sub(a.now())
		a.logger.DebugContext(ctx, "next snapshot scheduled",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.InfoContext(ctx, "archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "snapshot run failed", slog.String("error", err.Error()))
			}
		}
	}
}
