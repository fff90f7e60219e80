package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a balance journal entry.
type EntryType string

const (
	EntryDeposit  EntryType = "deposit"
	EntryWithdraw EntryType = "withdraw"
	EntryBet      EntryType = "bet"
	EntryWinning  EntryType = "winning"
	EntryRefund   EntryType = "refund"
	EntryExit     EntryType = "exit"
	// EntryReversal returns a debit whose operation was never committed.
	EntryReversal EntryType = "reversal"
)

// Credits reports whether entries of this type increase the spendable balance.
func (t EntryType) Credits() bool {
	switch t {
	case EntryDeposit, EntryWinning, EntryRefund, EntryExit, EntryReversal:
		return true
	}
	return false
}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryDeposit, EntryWithdraw, EntryBet, EntryWinning, EntryRefund, EntryExit, EntryReversal:
		return true
	}
	return false
}

// UserBalance is the per-wallet spendable ledger.
type UserBalance struct {
	Wallet         string          `json:"wallet"`
	Balance        decimal.Decimal `json:"balance"`
	TotalDeposited decimal.Decimal `json:"totalDeposited"`
	TotalWithdrawn decimal.Decimal `json:"totalWithdrawn"`
	TotalWinnings  decimal.Decimal `json:"totalWinnings"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

// Apply folds one journal entry into the balance. Debits floor at zero: a bet
// stake is paid externally before it reaches the ledger, so the debit only
// catches the ledger up with funds that already left.
//
// Refunds count toward TotalWinnings and exits toward TotalWithdrawn, while
// both credit the spendable balance.
func (b *UserBalance) Apply(e BalanceEntry) {
	switch e.Type {
	case EntryDeposit:
		b.Balance = b.Balance.Add(e.Amount)
		b.TotalDeposited = b.TotalDeposited.Add(e.Amount)
	case EntryWithdraw:
		b.Balance = b.Balance.Sub(e.Amount)
		b.TotalWithdrawn = b.TotalWithdrawn.Add(e.Amount)
	case EntryBet:
		b.Balance = b.Balance.Sub(e.Amount)
	case EntryWinning, EntryRefund:
		b.Balance = b.Balance.Add(e.Amount)
		b.TotalWinnings = b.TotalWinnings.Add(e.Amount)
	case EntryExit:
		b.Balance = b.Balance.Add(e.Amount)
		b.TotalWithdrawn = b.TotalWithdrawn.Add(e.Amount)
	case EntryReversal:
		b.Balance = b.Balance.Add(e.Amount)
	}
	if b.Balance.IsNegative() {
		b.Balance = decimal.Zero
	}
	if e.CreatedAt.After(b.LastUpdated) {
		b.LastUpdated = e.CreatedAt
	}
}

// BalanceEntry is one append-only journal record. OpID is unique across the
// journal so that replays of the same logical operation are ignored.
type BalanceEntry struct {
	OpID      string          `json:"opId"`
	Wallet    string          `json:"wallet"`
	Type      EntryType       `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	MarketID  string          `json:"marketId,omitempty"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BalancesDocument is the persisted wallet → balance map.
type BalancesDocument map[string]UserBalance
