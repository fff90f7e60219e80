package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// Refund records one market closed by the sweep.
type Refund struct {
	MarketID string          `json:"marketId"`
	Wallet   string          `json:"wallet"`
	Amount   decimal.Decimal `json:"amount"`
}

// CheckAndRefundSingleBettorMarkets closes every unsettled market that is at
// least RefundAge old and whose bets all belong to one wallet, crediting that
// wallet the sum of its net stakes. Unsettled means active, or closed without
// a resolution or refund, so a market that expired before reaching RefundAge
// is still refunded. Markets with no bets, or with two or more distinct
// wallets, are never touched. The pass also rolls each market's 24h volume
// forward.
func (e *Engine) CheckAndRefundSingleBettorMarkets(ctx context.Context) ([]Refund, error) {
	var refunds []Refund
	err := e.mutate(ctx, "refund sweep", func(doc *domain.MarketsDocument, t *txn) error {
		changed := false
		for i := range doc.Markets {
			m := &doc.Markets[i]
			if rollVolume24h(m, t.now) {
				changed = true
			}
			if !refundable(m) {
				continue
			}
			if t.now.Sub(m.CreatedAt) < e.cfg.RefundAge {
				continue
			}
			wallets := m.DistinctWallets()
			if len(wallets) != 1 {
				continue
			}

			amount := decimal.Zero
			for _, b := range m.Bets {
				amount = amount.Add(b.Amount)
			}
			now := t.now
			m.Status = domain.MarketStatusClosed
			if m.ClosedAt == nil {
				m.ClosedAt = &now
			}
			m.RefundedAt = &now
			m.RefundedAmount = amount
			t.touch(m)

			r := Refund{MarketID: m.ID, Wallet: wallets[0], Amount: amount}
			refunds = append(refunds, r)
			t.credit(domain.BalanceEntry{
				OpID:     "refund:" + m.ID,
				Wallet:   r.Wallet,
				Type:     domain.EntryRefund,
				Amount:   amount,
				MarketID: m.ID,
			})
			t.emit(domain.ChannelRefunds, "market.refunded", m, r.Wallet, r)
			t.auditf("market.refunded", map[string]any{
				"market_id": m.ID,
				"wallet":    r.Wallet,
				"amount":    amount.String(),
			})
			t.notify("market_refunded", "Market refunded",
				fmt.Sprintf("%s: %s refunded to %s", m.Title, amount.StringFixed(2), r.Wallet))
			changed = true
		}
		if !changed {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(refunds) > 0 {
		e.logger.InfoContext(ctx, "single-bettor markets refunded",
			slog.Int("count", len(refunds)),
		)
	}
	return refunds, nil
}

func refundable(m *domain.Market) bool {
	switch m.Status {
	case domain.MarketStatusActive:
		return true
	case domain.MarketStatusClosed:
		return m.ResolvedAt == nil && m.RefundedAt == nil
	}
	return false
}

// CloseExpiredMarkets flips every active market past its close time to
// closed and returns how many were closed.
func (e *Engine) CloseExpiredMarkets(ctx context.Context) (int, error) {
	closed := 0
	err := e.mutate(ctx, "close expired markets", func(doc *domain.MarketsDocument, t *txn) error {
		for i := range doc.Markets {
			m := &doc.Markets[i]
			if m.Status != domain.MarketStatusActive || m.ClosesAt.IsZero() || t.now.Before(m.ClosesAt) {
				continue
			}
			closeMarket(m, t)
			t.emit(domain.ChannelMarkets, "market.closed", m, "", map[string]any{"reason": "expired"})
			closed++
		}
		if closed == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		e.logger.InfoContext(ctx, "expired markets closed", slog.Int("count", closed))
	}
	return closed, nil
}
