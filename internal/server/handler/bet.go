package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/service"
)

// BettingService defines the engine methods the bet handler requires.
type BettingService interface {
	PlaceBet(ctx context.Context, req service.BetRequest) (domain.Bet, error)
	PlaceBetOnOutcome(ctx context.Context, req service.BetRequest) (domain.Bet, error)
	SellPosition(ctx context.Context, wallet, marketID, betID string) (service.Exit, error)
	CopyTrade(ctx context.Context, copier, target, marketID string) (domain.CopyTradeRecord, error)
	CopyTrades(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.CopyTradeRecord, error)
}

// BetHandler serves staking, early exit and copy-trade endpoints.
type BetHandler struct {
	bets   BettingService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BettingService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

type placeBetRequest struct {
	Amount     decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Side       string          `json:"side" validate:"required,oneof=yes no"`
	OutcomeID  string          `json:"outcomeId" validate:"max=128"`
	PaymentRef string          `json:"paymentRef" validate:"max=256"`
}

type copyTradeRequest struct {
	Target string `json:"target" validate:"required,max=128"`
}

type listCopyTradesResponse struct {
	CopyTrades []domain.CopyTradeRecord `json:"copyTrades"`
	Limit      int                      `json:"limit"`
	Offset     int                      `json:"offset"`
}

// PlaceBet stakes the caller's gross amount on a side, or on an outcome when
// outcomeId is set.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	var body placeBetRequest
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}

	req := service.BetRequest{
		MarketID:   pathParam(r, "id"),
		Wallet:     caller,
		Amount:     body.Amount,
		Side:       domain.Side(body.Side),
		OutcomeID:  body.OutcomeID,
		PaymentRef: body.PaymentRef,
	}
	var (
		bet domain.Bet
		err error
	)
	if req.OutcomeID != "" {
		bet, err = h.bets.PlaceBetOnOutcome(r.Context(), req)
	} else {
		bet, err = h.bets.PlaceBet(r.Context(), req)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// SellPosition exits one of the caller's bets at the current pool value.
// POST /api/markets/{id}/bets/{betId}/sell
func (h *BetHandler) SellPosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	exit, err := h.bets.SellPosition(r.Context(), caller, pathParam(r, "id"), pathParam(r, "betId"))
	if err != nil {
		writeServiceError(w, r, h.logger, "sell position", err)
		return
	}
	writeJSON(w, http.StatusOK, exit)
}

// CopyTrade mirrors the target wallet's position in a market.
// POST /api/markets/{id}/copy
func (h *BetHandler) CopyTrade(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	var body copyTradeRequest
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, r, h.logger, "copy trade", err)
		return
	}

	rec, err := h.bets.CopyTrade(r.Context(), caller, body.Target, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "copy trade", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListCopyTrades lists copy trades, optionally for one wallet.
// GET /api/copytrades?wallet=&limit=50&offset=0
func (h *BetHandler) ListCopyTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	recs, err := h.bets.CopyTrades(r.Context(), r.URL.Query().Get("wallet"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list copy trades", err)
		return
	}
	if recs == nil {
		recs = []domain.CopyTradeRecord{}
	}
	writeJSON(w, http.StatusOK, listCopyTradesResponse{CopyTrades: recs, Limit: opts.Limit, Offset: opts.Offset})
}
