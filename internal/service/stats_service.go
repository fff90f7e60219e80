package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// rollingWindow is the span of the 24h volume and fee counters.
const rollingWindow = 24 * time.Hour

// StatsService derives PlatformStats from the markets document. The stats
// document is a cache: it is overwritten, never incremented.
type StatsService struct {
	ledger *LedgerStore
	now    func() time.Time
	logger *slog.Logger
}

// NewStatsService creates a StatsService.
func NewStatsService(ledger *LedgerStore, logger *slog.Logger) *StatsService {
	return &StatsService{
		ledger: ledger,
		now:    time.Now,
		logger: logger.With(slog.String("component", "stats_service")),
	}
}

// WithClock overrides the time source.
func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	s.now = now
	return s
}

// Get returns the cached stats.
func (s *StatsService) Get(ctx context.Context) (domain.PlatformStats, error) {
	stats, err := s.ledger.LoadStats(ctx)
	if err != nil {
		return domain.PlatformStats{}, fmt.Errorf("stats_service: get: %w", err)
	}
	return stats, nil
}

// Recompute loads the markets document, derives fresh stats and saves them.
func (s *StatsService) Recompute(ctx context.Context) (domain.PlatformStats, error) {
	doc, err := s.ledger.LoadMarkets(ctx)
	if err != nil {
		return domain.PlatformStats{}, fmt.Errorf("stats_service: recompute: %w", err)
	}
	return s.Refresh(ctx, doc)
}

// Refresh derives stats from doc and saves them.
func (s *StatsService) Refresh(ctx context.Context, doc domain.MarketsDocument) (domain.PlatformStats, error) {
	stats := ComputeStats(doc, s.now())
	if err := s.ledger.SaveStats(ctx, stats); err != nil {
		return domain.PlatformStats{}, fmt.Errorf("stats_service: refresh: %w", err)
	}
	return stats, nil
}

// ComputeStats derives platform statistics from the market collection as of
// now. Pool money counts only markets whose stakes are still held: neither
// resolved nor refunded.
func ComputeStats(doc domain.MarketsDocument, now time.Time) domain.PlatformStats {
	stats := domain.PlatformStats{
		TotalVolume:         decimal.Zero,
		TotalFees:           decimal.Zero,
		TotalSettlementFees: decimal.Zero,
		TotalPoolMoney:      decimal.Zero,
		Volume24h:           decimal.Zero,
		Fees24h:             decimal.Zero,
		UnclaimedPools:      decimal.Zero,
		TotalRefunds:        decimal.Zero,
		LastUpdated:         now.UTC(),
	}
	users := make(map[string]struct{})
	since := now.Add(-rollingWindow)

	for i := range doc.Markets {
		m := &doc.Markets[i]
		stats.TotalMarkets++
		switch m.Status {
		case domain.MarketStatusActive:
			stats.ActiveMarkets++
		case domain.MarketStatusResolved:
			stats.ResolvedMarkets++
		}

		stats.TotalVolume = stats.TotalVolume.Add(m.TotalVolume)
		stats.TotalFees = stats.TotalFees.Add(m.PlatformFeesCollected)
		stats.TotalSettlementFees = stats.TotalSettlementFees.Add(m.SettlementFeesCollected)
		stats.UnclaimedPools = stats.UnclaimedPools.Add(m.UnclaimedPool)
		stats.TotalRefunds = stats.TotalRefunds.Add(m.RefundedAmount)
		if m.Status != domain.MarketStatusResolved && m.RefundedAt == nil {
			stats.TotalPoolMoney = stats.TotalPoolMoney.Add(m.TotalPool())
		}

		for _, b := range m.Bets {
			users[b.Wallet] = struct{}{}
			if !b.Timestamp.Before(since) {
				stats.Volume24h = stats.Volume24h.Add(b.Gross())
				stats.Fees24h = stats.Fees24h.Add(b.PlatformFee)
			}
		}
	}
	stats.TotalUsers = len(users)
	return stats
}

// rollVolume24h recomputes the market's 24h volume from bet timestamps and
// reports whether it changed.
func rollVolume24h(m *domain.Market, now time.Time) bool {
	since := now.Add(-rollingWindow)
	vol := decimal.Zero
	for _, b := range m.Bets {
		if !b.Timestamp.Before(since) {
			vol = vol.Add(b.Gross())
		}
	}
	if vol.Equal(m.Volume24h) {
		return false
	}
	m.Volume24h = vol
	return true
}
