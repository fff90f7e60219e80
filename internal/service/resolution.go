package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// WalletPayout is one winner's settlement.
type WalletPayout struct {
	Wallet string          `json:"wallet"`
	Stake  decimal.Decimal `json:"stake"`
	domain.Payout
}

// Settlement summarises a resolution.
type Settlement struct {
	MarketID         string          `json:"marketId"`
	Outcome          *domain.Side    `json:"outcome,omitempty"`
	WinningOutcomeID string          `json:"winningOutcomeId,omitempty"`
	TotalPool        decimal.Decimal `json:"totalPool"`
	WinningPool      decimal.Decimal `json:"winningPool"`
	Payouts          []WalletPayout  `json:"payouts"`
	SettlementFees   decimal.Decimal `json:"settlementFees"`
	Unclaimed        decimal.Decimal `json:"unclaimed"`
}

// ResolveMarket settles a binary market on outcome. Only the admin may call
// it, and a market resolves at most once.
func (e *Engine) ResolveMarket(ctx context.Context, caller, marketID string, outcome domain.Side) (Settlement, error) {
	if err := e.requireAdmin(caller); err != nil {
		return Settlement{}, fmt.Errorf("engine: resolve market: %w", err)
	}
	if !outcome.Valid() {
		return Settlement{}, fmt.Errorf("engine: resolve market: %w: outcome must be yes or no", domain.ErrInvalidInput)
	}

	var st Settlement
	err := e.mutate(ctx, "resolve market", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findResolvable(doc, marketID)
		if err != nil {
			return err
		}
		if m.IsMultiOutcome() {
			return fmt.Errorf("%w: market %s is multi-outcome", domain.ErrInvalidInput, m.ID)
		}

		winning := m.TotalYesAmount
		if outcome == domain.SideNo {
			winning = m.TotalNoAmount
		}
		st = e.settle(m, t, m.TotalPool(), winning, func(b domain.Bet) bool {
			return b.Side == outcome
		})

		side := outcome
		m.Outcome = &side
		st.Outcome = &side
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}

	e.logResolution(ctx, st)
	return st, nil
}

// ResolveMultiOutcomeMarket settles a multi-outcome market on one outcome.
// The winning pool is that outcome's yes-pool and the total pool is every
// outcome's yes and no stakes combined.
func (e *Engine) ResolveMultiOutcomeMarket(ctx context.Context, caller, marketID, outcomeID string) (Settlement, error) {
	if err := e.requireAdmin(caller); err != nil {
		return Settlement{}, fmt.Errorf("engine: resolve multi-outcome market: %w", err)
	}

	var st Settlement
	err := e.mutate(ctx, "resolve multi-outcome market", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findResolvable(doc, marketID)
		if err != nil {
			return err
		}
		if !m.IsMultiOutcome() {
			return fmt.Errorf("%w: market %s is binary", domain.ErrInvalidInput, m.ID)
		}
		winner := m.FindOutcome(outcomeID)
		if winner == nil {
			return fmt.Errorf("outcome %s: %w", outcomeID, domain.ErrNotFound)
		}

		total := decimal.Zero
		for _, o := range m.Outcomes {
			total = total.Add(o.TotalYesAmount).Add(o.TotalNoAmount)
		}
		st = e.settle(m, t, total, winner.TotalYesAmount, func(b domain.Bet) bool {
			return b.OutcomeID == outcomeID && b.Side == domain.SideYes
		})

		for i := range m.Outcomes {
			m.Outcomes[i].IsWinner = m.Outcomes[i].ID == outcomeID
		}
		m.WinningOutcomeID = outcomeID
		st.WinningOutcomeID = outcomeID
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}

	e.logResolution(ctx, st)
	return st, nil
}

// findResolvable returns a market that may still be resolved.
func findResolvable(doc *domain.MarketsDocument, id string) (*domain.Market, error) {
	m, err := findMarket(doc, id)
	if err != nil {
		return nil, err
	}
	if m.Status == domain.MarketStatusResolved {
		return nil, domain.ErrAlreadyResolved
	}
	if m.RefundedAt != nil {
		return nil, fmt.Errorf("%w: market %s was refunded", domain.ErrInvalidState, m.ID)
	}
	return m, nil
}

// settle pays every winning wallet its pari-mutuel share of total, grouping
// a wallet's winning bets into one stake, and marks the market resolved.
// With no winning stakes the whole pool stays with the house as unclaimed.
func (e *Engine) settle(m *domain.Market, t *txn, total, winning decimal.Decimal, wins func(domain.Bet) bool) Settlement {
	st := Settlement{
		MarketID:       m.ID,
		TotalPool:      total,
		WinningPool:    winning,
		Payouts:        []WalletPayout{},
		SettlementFees: decimal.Zero,
		Unclaimed:      decimal.Zero,
	}

	var order []string
	stakes := make(map[string]decimal.Decimal)
	for _, b := range m.Bets {
		if !wins(b) {
			continue
		}
		if _, ok := stakes[b.Wallet]; !ok {
			order = append(order, b.Wallet)
		}
		stakes[b.Wallet] = stakes[b.Wallet].Add(b.Amount)
	}

	for _, wallet := range order {
		p := e.cfg.Fees.ComputePayout(stakes[wallet], winning, total)
		if !p.Net.IsPositive() {
			continue
		}
		st.Payouts = append(st.Payouts, WalletPayout{Wallet: wallet, Stake: stakes[wallet], Payout: p})
		st.SettlementFees = st.SettlementFees.Add(p.SettlementFee)
		t.credit(domain.BalanceEntry{
			OpID:     "win:" + m.ID + ":" + wallet,
			Wallet:   wallet,
			Type:     domain.EntryWinning,
			Amount:   p.Net,
			MarketID: m.ID,
		})
	}
	if len(st.Payouts) == 0 && total.IsPositive() {
		st.Unclaimed = total
	}

	now := t.now
	m.Status = domain.MarketStatusResolved
	m.ResolvedAt = &now
	if m.ClosedAt == nil {
		m.ClosedAt = &now
	}
	m.SettlementFeesCollected = m.SettlementFeesCollected.Add(st.SettlementFees)
	m.UnclaimedPool = m.UnclaimedPool.Add(st.Unclaimed)
	t.touch(m)

	t.emit(domain.ChannelResolutions, "market.resolved", m, "", st)
	t.auditf("market.resolved", map[string]any{
		"market_id":       m.ID,
		"total_pool":      total.String(),
		"winning_pool":    winning.String(),
		"winners":         len(st.Payouts),
		"settlement_fees": st.SettlementFees.String(),
		"unclaimed":       st.Unclaimed.String(),
	})
	t.notify("market_resolved", "Market resolved",
		fmt.Sprintf("%s: %d winner(s), pool %s, settlement fees %s",
			m.Title, len(st.Payouts), total.StringFixed(2), st.SettlementFees.StringFixed(2)))
	return st
}

func (e *Engine) logResolution(ctx context.Context, st Settlement) {
	e.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", st.MarketID),
		slog.String("total_pool", st.TotalPool.String()),
		slog.String("winning_pool", st.WinningPool.String()),
		slog.Int("winners", len(st.Payouts)),
		slog.String("unclaimed", st.Unclaimed.String()),
	)
}
