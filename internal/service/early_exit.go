package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// Exit is the result of selling a position back to the pool.
type Exit struct {
	MarketID string          `json:"marketId"`
	Bet      domain.Bet      `json:"bet"`
	Value    decimal.Decimal `json:"value"`
}

// SellPosition unwinds one open bet at the current mark: the bet's share of
// the live total pool, priced as if its side won now, with no settlement fee.
// A "no" bet on a multi-outcome market is worth its own stake. The bet is
// removed and its net amount leaves the side pool. The wallet is credited
// through an exit entry, which counts toward its lifetime withdrawals.
func (e *Engine) SellPosition(ctx context.Context, wallet, marketID, betID string) (Exit, error) {
	var out Exit
	err := e.mutate(ctx, "sell position", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, marketID)
		if err != nil {
			return err
		}
		idx := m.FindBet(betID)
		if idx < 0 {
			return fmt.Errorf("bet %s: %w", betID, domain.ErrNotFound)
		}
		bet := m.Bets[idx]
		if bet.Wallet != wallet {
			return fmt.Errorf("bet %s belongs to another wallet: %w", betID, domain.ErrUnauthorized)
		}
		if err := checkOpen(m, t); err != nil {
			return err
		}

		var outcome *domain.Outcome
		sidePool := m.TotalYesAmount
		if bet.Side == domain.SideNo {
			sidePool = m.TotalNoAmount
		}
		if bet.OutcomeID != "" {
			outcome = m.FindOutcome(bet.OutcomeID)
			if outcome == nil {
				return fmt.Errorf("outcome %s: %w", bet.OutcomeID, domain.ErrNotFound)
			}
			sidePool = outcome.TotalYesAmount
			if bet.Side == domain.SideNo {
				sidePool = outcome.TotalNoAmount
			}
		}
		if !sidePool.IsPositive() {
			return fmt.Errorf("%s pool is empty: %w", bet.Side, domain.ErrInsufficientFunds)
		}

		value := domain.ExitValue(bet.Amount, sidePool, m.TotalPool())
		if outcome != nil && bet.Side == domain.SideNo {
			// Multi-outcome "no" stakes never win at resolution, so they
			// exit at their own net amount.
			value = bet.Amount
		}

		m.Bets = append(m.Bets[:idx], m.Bets[idx+1:]...)
		switch bet.Side {
		case domain.SideYes:
			m.TotalYesAmount = m.TotalYesAmount.Sub(bet.Amount)
			m.UniqueYesBettors = pruneBettor(m.UniqueYesBettors, m.Bets, wallet, "", domain.SideYes)
			if outcome != nil {
				outcome.TotalYesAmount = outcome.TotalYesAmount.Sub(bet.Amount)
				outcome.UniqueYesBettors = pruneBettor(outcome.UniqueYesBettors, m.Bets, wallet, outcome.ID, domain.SideYes)
			}
		case domain.SideNo:
			m.TotalNoAmount = m.TotalNoAmount.Sub(bet.Amount)
			m.UniqueNoBettors = pruneBettor(m.UniqueNoBettors, m.Bets, wallet, "", domain.SideNo)
			if outcome != nil {
				outcome.TotalNoAmount = outcome.TotalNoAmount.Sub(bet.Amount)
				outcome.UniqueNoBettors = pruneBettor(outcome.UniqueNoBettors, m.Bets, wallet, outcome.ID, domain.SideNo)
			}
		}
		refreshPrices(m)
		t.touch(m)

		t.credit(domain.BalanceEntry{
			OpID:     "exit:" + bet.ID,
			Wallet:   wallet,
			Type:     domain.EntryExit,
			Amount:   value,
			MarketID: m.ID,
		})
		out = Exit{MarketID: m.ID, Bet: bet, Value: value}
		t.emit(domain.ChannelBets, "bet.sold", m, wallet, out)
		return nil
	})
	if err != nil {
		return Exit{}, err
	}

	e.logger.InfoContext(ctx, "position sold",
		slog.String("market_id", marketID),
		slog.String("bet_id", betID),
		slog.String("value", out.Value.String()),
	)
	return out, nil
}

// pruneBettor drops wallet from set unless it still holds a bet on side (and
// outcome, when outcomeID is set).
func pruneBettor(set []string, bets []domain.Bet, wallet, outcomeID string, side domain.Side) []string {
	for _, b := range bets {
		if b.Wallet == wallet && b.Side == side && (outcomeID == "" || b.OutcomeID == outcomeID) {
			return set
		}
	}
	out := set[:0]
	for _, w := range set {
		if w != wallet {
			out = append(out, w)
		}
	}
	return out
}
