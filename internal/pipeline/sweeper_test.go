package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/objectstore"
	"github.com/okeymeta/probalyze-sub000/internal/pipeline"
	"github.com/okeymeta/probalyze-sub000/internal/service"
)

func TestSweeper_RefundsSingleBettorMarketClosedBeforeRefundAge(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mem := objectstore.New(objectstore.NewMemoryBackend(), nil, objectstore.Options{}, logger)
	ledger := service.NewLedgerStore(mem)
	balances := service.NewBalanceService(ledger, objectstore.NewJournal(mem), logger).WithClock(clock)
	stats := service.NewStatsService(ledger, logger).WithClock(clock)
	engine := service.NewEngine(service.EngineConfig{AdminWallet: "admin"}, ledger, balances, stats, objectstore.NewCopyTradeLog(mem), logger).
		WithClock(clock)

	m, err := engine.CreateMarket(ctx, "admin", service.MarketInput{
		Title:    "Will the match end in a draw?",
		ClosesAt: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = engine.PlaceBet(ctx, service.BetRequest{
		MarketID: m.ID,
		Wallet:   "solo",
		Amount:   decimal.NewFromInt(10),
		Side:     domain.SideYes,
	})
	require.NoError(t, err)

	sweeper := pipeline.NewSweeper(engine, logger)
	totalRefunded := 0
	for range 12 {
		now = now.Add(10 * time.Hour)
		refunded, _, err := sweeper.Run(ctx)
		require.NoError(t, err)
		totalRefunded += refunded
	}
	assert.Equal(t, 1, totalRefunded, "refunded exactly once")

	got, err := engine.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, got.Status)
	require.NotNil(t, got.RefundedAt)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Before(*got.RefundedAt), "close time is kept from the expiry")

	b, err := balances.Get(ctx, "solo")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("9.75").Equal(b.Balance), "balance %s", b.Balance)
	assert.True(t, decimal.RequireFromString("9.75").Equal(b.TotalWinnings), "winnings %s", b.TotalWinnings)
}
