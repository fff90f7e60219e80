package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// allocationKey identifies one position a target holds: a side, and for
// multi-outcome markets the outcome.
type allocationKey struct {
	outcomeID string
	side      domain.Side
}

// CopyTrade mirrors target's side allocation in a market onto copier's
// stake. The copier stakes min(balance, target's total stake), split across
// the target's positions in proportion, each part placed as an ordinary bet
// paying its own entry fee. The whole stake is debited as one journal entry;
// if the bets are not saved the debit is reversed.
func (e *Engine) CopyTrade(ctx context.Context, copier, target, marketID string) (domain.CopyTradeRecord, error) {
	if copier == "" || target == "" {
		return domain.CopyTradeRecord{}, fmt.Errorf("engine: copy trade: %w: copier and target are required", domain.ErrInvalidInput)
	}
	if copier == target {
		return domain.CopyTradeRecord{}, fmt.Errorf("engine: copy trade: %w: cannot copy yourself", domain.ErrInvalidInput)
	}

	var (
		rec     domain.CopyTradeRecord
		debited decimal.Decimal
	)
	err := e.mutate(ctx, "copy trade", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, marketID)
		if err != nil {
			return err
		}
		if err := checkOpen(m, t); err != nil {
			return err
		}

		var keys []allocationKey
		stakes := make(map[allocationKey]decimal.Decimal)
		targetTotal := decimal.Zero
		yes, no := decimal.Zero, decimal.Zero
		for _, b := range m.Bets {
			if b.Wallet != target {
				continue
			}
			k := allocationKey{outcomeID: b.OutcomeID, side: b.Side}
			if _, ok := stakes[k]; !ok {
				keys = append(keys, k)
			}
			stakes[k] = stakes[k].Add(b.Amount)
			targetTotal = targetTotal.Add(b.Amount)
			if b.Side == domain.SideYes {
				yes = yes.Add(b.Amount)
			} else {
				no = no.Add(b.Amount)
			}
		}
		if !targetTotal.IsPositive() {
			return fmt.Errorf("target %s has no bets in market %s: %w", target, m.ID, domain.ErrNotFound)
		}

		// The stake is debited up front, capped by the balance at debit time.
		id := newID("copy")
		copyAmount, err := e.balances.DebitUpTo(ctx, domain.BalanceEntry{
			OpID:      "copy:" + id,
			Wallet:    copier,
			Type:      domain.EntryBet,
			Amount:    targetTotal,
			MarketID:  m.ID,
			Reference: id,
			CreatedAt: t.now,
		})
		if err != nil {
			return err
		}
		debited = copyAmount

		rec = domain.CopyTradeRecord{
			ID:           id,
			CopierWallet: copier,
			TargetWallet: target,
			MarketID:     m.ID,
			Amount:       copyAmount,
			YesAmount:    decimal.Zero,
			NoAmount:     decimal.Zero,
			DominantSide: domain.SideYes,
			CreatedAt:    t.now,
		}
		if no.GreaterThan(yes) {
			rec.DominantSide = domain.SideNo
		}

		for _, k := range keys {
			alloc := stakes[k].Mul(copyAmount).Div(targetTotal)
			if !alloc.IsPositive() {
				continue
			}
			bet, err := e.addStake(m, t, BetRequest{
				MarketID:   m.ID,
				Wallet:     copier,
				Amount:     alloc,
				Side:       k.side,
				OutcomeID:  k.outcomeID,
				PaymentRef: rec.ID,
			})
			if err != nil {
				return err
			}
			rec.BetIDs = append(rec.BetIDs, bet.ID)
			if k.side == domain.SideYes {
				rec.YesAmount = rec.YesAmount.Add(alloc)
			} else {
				rec.NoAmount = rec.NoAmount.Add(alloc)
			}
		}

		t.emit(domain.ChannelCopyTrades, "copytrade.executed", m, copier, rec)
		t.auditf("copytrade.executed", map[string]any{
			"id":        rec.ID,
			"wallet":    copier,
			"target":    target,
			"market_id": m.ID,
			"amount":    copyAmount.String(),
		})
		return nil
	})
	if err != nil {
		if debited.IsPositive() {
			e.reverseDebit(ctx, copier, marketID, rec.ID, debited)
		}
		return domain.CopyTradeRecord{}, err
	}

	if err := e.copyLog.Append(ctx, rec); err != nil {
		// The bets are committed; the log is analytics only.
		e.logger.ErrorContext(ctx, "copy trade log append failed",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "copy trade executed",
		slog.String("copier", copier),
		slog.String("target", target),
		slog.String("market_id", marketID),
		slog.String("amount", rec.Amount.String()),
		slog.String("dominant_side", string(rec.DominantSide)),
	)
	return rec, nil
}

// reverseDebit credits back a copy-trade stake whose bets were never saved.
func (e *Engine) reverseDebit(ctx context.Context, wallet, marketID, id string, amount decimal.Decimal) {
	err := e.balances.Apply(ctx, domain.BalanceEntry{
		OpID:      "copy-reversal:" + id,
		Wallet:    wallet,
		Type:      domain.EntryReversal,
		Amount:    amount,
		MarketID:  marketID,
		Reference: id,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "copy trade debit reversal failed",
			slog.String("id", id),
			slog.String("wallet", wallet),
			slog.String("amount", amount.String()),
			slog.String("error", err.Error()),
		)
	}
}

// CopyTrades lists copy-trade records involving wallet, newest first. An
// empty wallet lists every record.
func (e *Engine) CopyTrades(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.CopyTradeRecord, error) {
	recs, err := e.copyLog.List(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list copy trades: %w", err)
	}
	return recs, nil
}
