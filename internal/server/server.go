// Package server exposes the ledger over HTTP and a websocket event feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/server/handler"
	"github.com/okeymeta/probalyze-sub000/internal/server/middleware"
	"github.com/okeymeta/probalyze-sub000/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Bets     *handler.BetHandler
	Balances *handler.BalanceHandler
	Stats    *handler.StatsHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the ledger.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (auth, rate limiting, logging, CORS) and attaches
// the WebSocket hub. limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Markets.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("PUT /api/markets/{id}", handlers.Markets.EditMarket)
	mux.HandleFunc("DELETE /api/markets/{id}", handlers.Markets.DeleteMarket)
	mux.HandleFunc("GET /api/markets/{id}/preview", handlers.Markets.PreviewPayout)
	mux.HandleFunc("POST /api/markets/{id}/close", handlers.Markets.CloseMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/news", handlers.Markets.AddNews)
	mux.HandleFunc("POST /api/markets/{id}/rules", handlers.Markets.AddRule)
	mux.HandleFunc("POST /api/markets/{id}/comments", handlers.Markets.AddComment)

	// Betting.
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/bets/{betId}/sell", handlers.Bets.SellPosition)
	mux.HandleFunc("POST /api/markets/{id}/copy", handlers.Bets.CopyTrade)
	mux.HandleFunc("GET /api/copytrades", handlers.Bets.ListCopyTrades)

	// Balances.
	mux.HandleFunc("GET /api/balances/{wallet}", handlers.Balances.GetBalance)
	mux.HandleFunc("GET /api/balances/{wallet}/journal", handlers.Balances.Journal)
	mux.HandleFunc("POST /api/balances/{wallet}/deposit", handlers.Balances.Deposit)
	mux.HandleFunc("POST /api/balances/{wallet}/withdraw", handlers.Balances.Withdraw)

	// Stats and maintenance.
	mux.HandleFunc("GET /api/stats", handlers.Stats.GetStats)
	mux.HandleFunc("POST /api/admin/balances/rebuild", handlers.Admin.RebuildBalances)
	mux.HandleFunc("POST /api/admin/stats/recompute", handlers.Admin.RecomputeStats)
	mux.HandleFunc("POST /api/admin/refund-sweep", handlers.Admin.RefundSweep)
	mux.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
