package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/service"
)

func TestResolveMarket_PaysProRataShareNetOfSettlementFee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.createMarket(t)
	h.seedBets(t, m.ID, bet("whale", domain.SideYes, "100"), bet("bear", domain.SideNo, "50"))
	h.deposit(t, "carol", "10")

	_, err := h.engine.PlaceBet(ctx, service.BetRequest{MarketID: m.ID, Wallet: "carol", Amount: dec("10"), Side: domain.SideYes})
	require.NoError(t, err)
	assertDec(t, "0", h.balance(t, "carol"))

	st, err := h.engine.ResolveMarket(ctx, admin, m.ID, domain.SideYes)
	require.NoError(t, err)

	assertDec(t, "159.75", st.TotalPool)
	assertDec(t, "109.75", st.WinningPool)
	require.Len(t, st.Payouts, 2)

	var carol service.WalletPayout
	for _, p := range st.Payouts {
		if p.Wallet == "carol" {
			carol = p
		}
	}
	assertDec(t, "9.75", carol.Stake)
	assert.InDelta(t, 14.19, carol.Gross.InexactFloat64(), 0.005)
	assert.InDelta(t, 13.76, carol.Net.InexactFloat64(), 0.01)
	assert.True(t, carol.Net.Equal(h.balance(t, "carol")), "winnings credited to the balance")

	// Everything paid out plus the settlement fees equals the pool.
	paid := decimal.Zero
	for _, p := range st.Payouts {
		paid = paid.Add(p.Net).Add(p.SettlementFee)
	}
	assert.InDelta(t, 159.75, paid.InexactFloat64(), 1e-9)

	got := h.market(t, m.ID)
	assert.Equal(t, domain.MarketStatusResolved, got.Status)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, domain.SideYes, *got.Outcome)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, st.SettlementFees.Equal(got.SettlementFeesCollected))

	h.notifier.mu.Lock()
	assert.Contains(t, h.notifier.events, "market_resolved")
	h.notifier.mu.Unlock()
}

func TestResolveMarket_SecondResolutionChangesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.createMarket(t)
	h.seedBets(t, m.ID, bet("a", domain.SideYes, "40"), bet("b", domain.SideNo, "60"))

	_, err := h.engine.ResolveMarket(ctx, admin, m.ID, domain.SideYes)
	require.NoError(t, err)
	before := h.balance(t, "a")
	entries, err := h.journal.All(ctx)
	require.NoError(t, err)

	_, err = h.engine.ResolveMarket(ctx, admin, m.ID, domain.SideNo)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	assert.True(t, before.Equal(h.balance(t, "a")))
	assertDec(t, "0", h.balance(t, "b"))
	again, err := h.journal.All(ctx)
	require.NoError(t, err)
	assert.Len(t, again, len(entries))
	assert.Equal(t, domain.SideYes, *h.market(t, m.ID).Outcome)
}

func TestResolveMarket_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.createMarket(t)

	_, err := h.engine.ResolveMarket(ctx, "mallory", m.ID, domain.SideYes)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.MarketStatusActive, h.market(t, m.ID).Status)
}

func TestResolveMarket_NoWinningStakeLeavesPoolUnclaimed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.createMarket(t)
	h.seedBets(t, m.ID, bet("b", domain.SideNo, "30"))

	st, err := h.engine.ResolveMarket(ctx, admin, m.ID, domain.SideYes)
	require.NoError(t, err)
	assert.Empty(t, st.Payouts)
	assertDec(t, "30", st.Unclaimed)
	assertDec(t, "30", h.market(t, m.ID).UnclaimedPool)
	assertDec(t, "0", h.balance(t, "b"))

	stats, err := h.stats.Get(ctx)
	require.NoError(t, err)
	assertDec(t, "30", stats.UnclaimedPools)
	assertDec(t, "0", stats.TotalPoolMoney, "resolved pools are not held")
}

func TestResolveMarket_RejectsMultiOutcome(t *testing.T) {
	h := newHarness(t)
	m := h.createMarket(t, "A", "B")
	_, err := h.engine.ResolveMarket(context.Background(), admin, m.ID, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResolveMultiOutcomeMarket_PoolSpansAllOutcomes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.createMarket(t, "Red", "Blue", "Green")
	red, blue, green := m.Outcomes[0].ID, m.Outcomes[1].ID, m.Outcomes[2].ID

	place := func(wallet string, side domain.Side, outcome, amount string) {
		_, err := h.engine.PlaceBetOnOutcome(ctx, service.BetRequest{MarketID: m.ID, Wallet: wallet, Amount: dec(amount), Side: side, OutcomeID: outcome})
		require.NoError(t, err)
	}
	place("w1", domain.SideYes, red, "10")
	place("w2", domain.SideYes, blue, "20")
	place("w3", domain.SideNo, green, "30")
	place("w4", domain.SideNo, red, "10")

	st, err := h.engine.ResolveMultiOutcomeMarket(ctx, admin, m.ID, red)
	require.NoError(t, err)

	assertDec(t, "68.25", st.TotalPool)
	assertDec(t, "9.75", st.WinningPool)
	require.Len(t, st.Payouts, 1)
	assert.Equal(t, "w1", st.Payouts[0].Wallet)
	assertDec(t, "68.25", st.Payouts[0].Gross)
	assertDec(t, "66.2025", st.Payouts[0].Net)
	assertDec(t, "66.2025", h.balance(t, "w1"))
	assertDec(t, "0", h.balance(t, "w4"), "a no stake never wins a multi-outcome market")

	got := h.market(t, m.ID)
	assert.Equal(t, red, got.WinningOutcomeID)
	assert.True(t, got.FindOutcome(red).IsWinner)
	assert.False(t, got.FindOutcome(blue).IsWinner)
	assert.False(t, got.FindOutcome(green).IsWinner)
}

func TestResolveMultiOutcomeMarket_UnknownOutcome(t *testing.T) {
	h := newHarness(t)
	m := h.createMarket(t, "A", "B")
	_, err := h.engine.ResolveMultiOutcomeMarket(context.Background(), admin, m.ID, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.MarketStatusActive, h.market(t, m.ID).Status)
}
