package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/service"
)

// StatsService defines the platform statistics methods the handlers require.
type StatsService interface {
	Get(ctx context.Context) (domain.PlatformStats, error)
	Recompute(ctx context.Context) (domain.PlatformStats, error)
}

// BalanceRebuilder replays the journal into the balances document.
type BalanceRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// RefundSweeper refunds stale single-bettor markets.
type RefundSweeper interface {
	CheckAndRefundSingleBettorMarkets(ctx context.Context) ([]service.Refund, error)
}

// AuditReader lists the audit log.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// StatsHandler serves the public platform statistics.
type StatsHandler struct {
	stats  StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// GetStats returns the cached platform statistics.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.stats.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "get stats", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// AdminHandler serves maintenance endpoints. Every route requires the caller
// to be the admin wallet.
type AdminHandler struct {
	admin    AdminChecker
	balances BalanceRebuilder
	stats    StatsService
	sweeper  RefundSweeper
	audit    AuditReader
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminChecker, balances BalanceRebuilder, stats StatsService, sweeper RefundSweeper, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:    admin,
		balances: balances,
		stats:    stats,
		sweeper:  sweeper,
		logger:   logger,
	}
}

// WithAudit enables GET /api/admin/audit.
func (h *AdminHandler) WithAudit(audit AuditReader) *AdminHandler {
	h.audit = audit
	return h
}

func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	caller, ok := callerWallet(w, r)
	if !ok {
		return false
	}
	if !h.admin.IsAdmin(caller) {
		writeError(w, http.StatusForbidden, "admin wallet required")
		return false
	}
	return true
}

// RebuildBalances replays the balance journal.
// POST /api/admin/balances/rebuild
func (h *AdminHandler) RebuildBalances(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	n, err := h.balances.Rebuild(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "rebuild balances", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"wallets": n})
}

// RecomputeStats rebuilds platform statistics from the markets document.
// POST /api/admin/stats/recompute
func (h *AdminHandler) RecomputeStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	s, err := h.stats.Recompute(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "recompute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// RefundSweep runs the single-bettor refund sweep now.
// POST /api/admin/refund-sweep
func (h *AdminHandler) RefundSweep(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	refunds, err := h.sweeper.CheckAndRefundSingleBettorMarkets(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "refund sweep", err)
		return
	}
	if refunds == nil {
		refunds = []service.Refund{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"refunds": refunds})
}

// ListAudit returns audit entries newest first, optionally for one market.
// GET /api/admin/audit?market=&limit=&offset=
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log is not configured")
		return
	}

	opts := parseListOpts(r)
	var (
		entries []domain.AuditEntry
		err     error
	)
	if market := r.URL.Query().Get("market"); market != "" {
		entries, err = h.audit.ListByMarket(r.Context(), market, opts)
	} else {
		entries, err = h.audit.List(r.Context(), opts)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
