package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// BetRequest is one stake as paid. Amount is gross: the entry fee is taken
// from it.
type BetRequest struct {
	MarketID   string
	Wallet     string
	Amount     decimal.Decimal
	Side       domain.Side
	OutcomeID  string
	PaymentRef string
}

func (r BetRequest) validate() error {
	if r.Wallet == "" {
		return fmt.Errorf("%w: wallet is required", domain.ErrInvalidInput)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}
	if !r.Side.Valid() {
		return fmt.Errorf("%w: side must be yes or no", domain.ErrInvalidInput)
	}
	return nil
}

// PlaceBet stakes on a binary market.
func (e *Engine) PlaceBet(ctx context.Context, req BetRequest) (domain.Bet, error) {
	req.OutcomeID = ""
	return e.placeBet(ctx, "place bet", req)
}

// PlaceBetOnOutcome stakes on one outcome of a multi-outcome market.
func (e *Engine) PlaceBetOnOutcome(ctx context.Context, req BetRequest) (domain.Bet, error) {
	if req.OutcomeID == "" {
		return domain.Bet{}, fmt.Errorf("engine: place bet on outcome: %w: outcome id is required", domain.ErrInvalidInput)
	}
	return e.placeBet(ctx, "place bet on outcome", req)
}

func (e *Engine) placeBet(ctx context.Context, op string, req BetRequest) (domain.Bet, error) {
	if err := req.validate(); err != nil {
		return domain.Bet{}, fmt.Errorf("engine: %s: %w", op, err)
	}

	var placed domain.Bet
	err := e.mutate(ctx, op, func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, req.MarketID)
		if err != nil {
			return err
		}
		if err := checkOpen(m, t); err != nil {
			return err
		}
		placed, err = e.applyBet(m, t, req)
		return err
	})
	if err != nil {
		return domain.Bet{}, err
	}

	e.logger.InfoContext(ctx, "bet placed",
		slog.String("market_id", req.MarketID),
		slog.String("wallet", req.Wallet),
		slog.String("side", string(req.Side)),
		slog.String("outcome_id", req.OutcomeID),
		slog.String("net", placed.Amount.String()),
	)
	return placed, nil
}

// checkOpen rejects bets on a market that is not active. A market whose close
// time has passed is flipped to closed, and that flip is saved even though
// the bet is rejected.
func checkOpen(m *domain.Market, t *txn) error {
	if m.Status != domain.MarketStatusActive {
		return domain.ErrMarketInactive
	}
	if !m.ClosesAt.IsZero() && !t.now.Before(m.ClosesAt) {
		closeMarket(m, t)
		t.emit(domain.ChannelMarkets, "market.closed", m, "", map[string]any{"reason": "expired"})
		return &commitErr{err: domain.ErrMarketClosed}
	}
	return nil
}

func closeMarket(m *domain.Market, t *txn) {
	now := t.now
	m.Status = domain.MarketStatusClosed
	m.ClosedAt = &now
	t.touch(m)
}

// applyBet records one stake on an open market and debits the wallet the
// gross amount. The caller has checked the market is open.
func (e *Engine) applyBet(m *domain.Market, t *txn, req BetRequest) (domain.Bet, error) {
	bet, err := e.addStake(m, t, req)
	if err != nil {
		return domain.Bet{}, err
	}
	t.credit(domain.BalanceEntry{
		OpID:      "bet:" + bet.ID,
		Wallet:    req.Wallet,
		Type:      domain.EntryBet,
		Amount:    req.Amount,
		MarketID:  m.ID,
		Reference: req.PaymentRef,
	})
	return bet, nil
}

// addStake adds one bet to the market pools without touching the wallet.
func (e *Engine) addStake(m *domain.Market, t *txn, req BetRequest) (domain.Bet, error) {
	var outcome *domain.Outcome
	if m.IsMultiOutcome() {
		if req.OutcomeID == "" {
			return domain.Bet{}, fmt.Errorf("%w: market %s needs an outcome id", domain.ErrInvalidInput, m.ID)
		}
		outcome = m.FindOutcome(req.OutcomeID)
		if outcome == nil {
			return domain.Bet{}, fmt.Errorf("outcome %s: %w", req.OutcomeID, domain.ErrNotFound)
		}
	} else if req.OutcomeID != "" {
		return domain.Bet{}, fmt.Errorf("%w: market %s has no outcomes", domain.ErrInvalidInput, m.ID)
	}

	fee, net := e.cfg.Fees.SplitEntryFee(req.Amount)
	bet := domain.Bet{
		ID:          newID("bet"),
		Wallet:      req.Wallet,
		Amount:      net,
		Side:        req.Side,
		OutcomeID:   req.OutcomeID,
		Timestamp:   t.now,
		PaymentRef:  req.PaymentRef,
		PlatformFee: fee,
	}
	m.Bets = append(m.Bets, bet)

	switch req.Side {
	case domain.SideYes:
		m.TotalYesAmount = m.TotalYesAmount.Add(net)
		m.UniqueYesBettors = addUnique(m.UniqueYesBettors, req.Wallet)
		if outcome != nil {
			outcome.TotalYesAmount = outcome.TotalYesAmount.Add(net)
			outcome.UniqueYesBettors = addUnique(outcome.UniqueYesBettors, req.Wallet)
		}
	case domain.SideNo:
		m.TotalNoAmount = m.TotalNoAmount.Add(net)
		m.UniqueNoBettors = addUnique(m.UniqueNoBettors, req.Wallet)
		if outcome != nil {
			outcome.TotalNoAmount = outcome.TotalNoAmount.Add(net)
			outcome.UniqueNoBettors = addUnique(outcome.UniqueNoBettors, req.Wallet)
		}
	}

	m.TotalVolume = m.TotalVolume.Add(req.Amount)
	m.Volume24h = m.Volume24h.Add(req.Amount)
	m.PlatformFeesCollected = m.PlatformFeesCollected.Add(fee)
	refreshPrices(m)
	t.touch(m)

	t.emit(domain.ChannelBets, "bet.placed", m, req.Wallet, bet)
	return bet, nil
}

// PreviewPayout prices a hypothetical stake of gross amount on side as if
// the market resolved that way right after it was placed.
func (e *Engine) PreviewPayout(ctx context.Context, marketID string, side domain.Side, outcomeID string, amount decimal.Decimal) (domain.Payout, error) {
	if !side.Valid() || !amount.IsPositive() {
		return domain.Payout{}, fmt.Errorf("engine: preview payout: %w: side and a positive amount are required", domain.ErrInvalidInput)
	}
	m, err := e.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("engine: preview payout: %w", err)
	}

	_, net := e.cfg.Fees.SplitEntryFee(amount)
	var sidePool, total decimal.Decimal
	if m.IsMultiOutcome() {
		o := m.FindOutcome(outcomeID)
		if o == nil {
			return domain.Payout{}, fmt.Errorf("engine: preview payout: outcome %s: %w", outcomeID, domain.ErrNotFound)
		}
		if side == domain.SideNo {
			// A "no" stake never wins in a multi-outcome market.
			return domain.Payout{}, nil
		}
		sidePool = o.TotalYesAmount
		total = m.TotalPool()
	} else {
		sidePool = m.TotalYesAmount
		if side == domain.SideNo {
			sidePool = m.TotalNoAmount
		}
		total = m.TotalPool()
	}
	return e.cfg.Fees.ComputePayout(net, sidePool.Add(net), total.Add(net)), nil
}
