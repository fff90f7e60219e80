package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// BalanceService defines the balance ledger methods the handler requires.
type BalanceService interface {
	Get(ctx context.Context, wallet string) (domain.UserBalance, error)
	Journal(ctx context.Context, wallet string) ([]domain.BalanceEntry, error)
	Deposit(ctx context.Context, wallet string, amount decimal.Decimal, ref string) (domain.UserBalance, error)
	Withdraw(ctx context.Context, wallet string, amount decimal.Decimal, ref string) (domain.UserBalance, error)
}

// AdminChecker reports whether a wallet holds the admin role.
type AdminChecker interface {
	IsAdmin(wallet string) bool
}

// BalanceHandler serves wallet balance endpoints.
type BalanceHandler struct {
	balances BalanceService
	admin    AdminChecker
	logger   *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(balances BalanceService, admin AdminChecker, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, admin: admin, logger: logger}
}

type movementRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Reference string          `json:"reference" validate:"max=256"`
}

type journalResponse struct {
	Wallet  string                `json:"wallet"`
	Entries []domain.BalanceEntry `json:"entries"`
}

// GetBalance returns a wallet's balance. Unknown wallets read as zero.
// GET /api/balances/{wallet}
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.balances.Get(r.Context(), pathParam(r, "wallet"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Journal returns every ledger entry for a wallet, oldest first.
// GET /api/balances/{wallet}/journal
func (h *BalanceHandler) Journal(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	entries, err := h.balances.Journal(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, "read journal", err)
		return
	}
	if entries == nil {
		entries = []domain.BalanceEntry{}
	}
	writeJSON(w, http.StatusOK, journalResponse{Wallet: wallet, Entries: entries})
}

// Deposit credits a wallet. Callers may only move their own funds unless
// they are the admin.
// POST /api/balances/{wallet}/deposit
func (h *BalanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "deposit", h.balances.Deposit)
}

// Withdraw debits a wallet and fails when the balance is short.
// POST /api/balances/{wallet}/withdraw
func (h *BalanceHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "withdraw", h.balances.Withdraw)
}

func (h *BalanceHandler) move(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	apply func(ctx context.Context, wallet string, amount decimal.Decimal, ref string) (domain.UserBalance, error),
) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	wallet := pathParam(r, "wallet")
	if caller != wallet && !h.admin.IsAdmin(caller) {
		writeError(w, http.StatusForbidden, "cannot move funds of another wallet")
		return
	}

	var req movementRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	b, err := apply(r.Context(), wallet, req.Amount, req.Reference)
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
