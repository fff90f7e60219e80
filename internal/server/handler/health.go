package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode      string
	docs      domain.ObjectStore
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. docs may be nil, in which case
// storage is not probed.
func NewHealthHandler(mode string, docs domain.ObjectStore, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, docs: docs, startedAt: time.Now(), logger: logger}
}

// HealthCheck reports liveness and whether the document store answers.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	storage := "unchecked"
	if h.docs != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		var raw json.RawMessage
		if _, err := h.docs.GetJSON(ctx, domain.DocPlatformStats, &raw); err != nil {
			h.logger.WarnContext(r.Context(), "handler: health probe failed", slog.String("error", err.Error()))
			status, code, storage = "degraded", http.StatusServiceUnavailable, "unavailable"
		} else {
			storage = "ok"
		}
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"mode":           h.mode,
		"storage":        storage,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
