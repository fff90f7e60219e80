package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/okeymeta/probalyze-sub000/internal/service"
)

// Lifecycle is the part of the engine the sweeper drives. *service.Engine
// satisfies it.
type Lifecycle interface {
	CheckAndRefundSingleBettorMarkets(ctx context.Context) ([]service.Refund, error)
	CloseExpiredMarkets(ctx context.Context) (int, error)
}

// Sweeper periodically refunds stale single-bettor markets and closes
// markets past their close time.
type Sweeper struct {
	engine Lifecycle
	logger *slog.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(engine Lifecycle, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		engine: engine,
		logger: logger.With(slog.String("component", "sweeper")),
	}
}

// Run executes one pass. The refund sweep runs first so that an expired
// single-bettor market is refunded rather than merely closed.
func (s *Sweeper) Run(ctx context.Context) (refunded, closed int, err error) {
	refunds, err := s.engine.CheckAndRefundSingleBettorMarkets(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range refunds {
		s.logger.InfoContext(ctx, "market refunded",
			slog.String("market_id", r.MarketID),
			slog.String("wallet", r.Wallet),
			slog.String("amount", r.Amount.String()),
		)
	}

	closed, err = s.engine.CloseExpiredMarkets(ctx)
	if err != nil {
		return len(refunds), 0, err
	}
	return len(refunds), closed, nil
}

// RunLoop runs a pass immediately and then on every tick until ctx is
// cancelled. A failed pass is logged and retried on the next tick.
func (s *Sweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.InfoContext(ctx, "sweeper started", slog.Duration("interval", interval))
	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	start := time.Now()
	refunded, closed, err := s.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
		return
	}
	if refunded > 0 || closed > 0 {
		s.logger.InfoContext(ctx, "sweep complete",
			slog.Int("refunded", refunded),
			slog.Int("closed", closed),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
