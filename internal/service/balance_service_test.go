package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

func TestBalanceService_DepositIsIdempotentByReference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	b, err := h.balances.Deposit(ctx, "w", dec("10"), "tx-1")
	require.NoError(t, err)
	assertDec(t, "10", b.Balance)

	b, err = h.balances.Deposit(ctx, "w", dec("10"), "tx-1")
	require.NoError(t, err)
	assertDec(t, "10", b.Balance, "same reference applied once")
	assertDec(t, "10", b.TotalDeposited)

	entries, err := h.balances.Journal(ctx, "w")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "deposit:tx-1", entries[0].OpID)
}

func TestBalanceService_Withdraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.deposit(t, "w", "10")

	_, err := h.balances.Withdraw(ctx, "w", dec("10.01"), "")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	b, err := h.balances.Withdraw(ctx, "w", dec("4"), "out-1")
	require.NoError(t, err)
	assertDec(t, "6", b.Balance)
	assertDec(t, "4", b.TotalWithdrawn)

	_, err = h.balances.Withdraw(ctx, "w", dec("-1"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBalanceService_GetUnknownWalletIsZero(t *testing.T) {
	h := newHarness(t)
	b, err := h.balances.Get(context.Background(), "stranger")
	require.NoError(t, err)
	assert.Equal(t, "stranger", b.Wallet)
	assert.True(t, b.Balance.IsZero())
}

func TestBalanceService_RebuildReplaysJournal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.deposit(t, "a", "20")
	h.deposit(t, "b", "5")
	require.NoError(t, h.balances.Apply(ctx, domain.BalanceEntry{
		OpID: "win:m1:a", Wallet: "a", Type: domain.EntryWinning, Amount: dec("7.5"),
	}))

	want, err := h.balances.List(ctx)
	require.NoError(t, err)

	// Wipe the reduced document; the journal is the source of truth.
	require.NoError(t, h.ledger.SaveBalances(ctx, domain.BalancesDocument{}))

	n, err := h.balances.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := h.balances.List(ctx)
	require.NoError(t, err)
	for wallet, wb := range want {
		assert.True(t, wb.Balance.Equal(got[wallet].Balance), wallet)
		assert.True(t, wb.TotalWinnings.Equal(got[wallet].TotalWinnings), wallet)
	}
	assertDec(t, "27.5", got["a"].Balance)
}

func TestBalanceService_ApplyRejectsInvalidEntries(t *testing.T) {
	h := newHarness(t)
	err := h.balances.Apply(context.Background(), domain.BalanceEntry{Wallet: "", Type: domain.EntryDeposit, Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = h.balances.Apply(context.Background(), domain.BalanceEntry{Wallet: "w", Type: "bonus", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBalanceService_DebitUpToCapsAtBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.deposit(t, "w", "6")

	got, err := h.balances.DebitUpTo(ctx, domain.BalanceEntry{OpID: "copy:c1", Wallet: "w", Type: domain.EntryBet, Amount: dec("10")})
	require.NoError(t, err)
	assertDec(t, "6", got)
	assertDec(t, "0", h.balance(t, "w"))

	_, err = h.balances.DebitUpTo(ctx, domain.BalanceEntry{OpID: "copy:c2", Wallet: "w", Type: domain.EntryBet, Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	entries, err := h.balances.Journal(ctx, "w")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assertDec(t, "6", entries[1].Amount, "journal records the capped amount")
}
