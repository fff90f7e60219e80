// Package app runs the ledger service in one of its operating modes:
// server, sweeper, full or report. It owns dependency wiring and teardown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/okeymeta/probalyze-sub000/internal/config"
)

type modeFunc func(context.Context, *Dependencies) error

// App holds the configuration and the cleanup registered by Run.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	closeOnce sync.Once
	cleanup   func()
}

// New creates an App. Nothing is connected until Run.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies and runs the configured mode until ctx is done.
// Report mode returns once the tables are printed. An unknown mode fails
// before any connection is made.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	run, ok := a.modes()[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.cleanup = cleanup

	return run(ctx, deps)
}

func (a *App) modes() map[string]modeFunc {
	return map[string]modeFunc{
		"server":  a.ServerMode,
		"sweeper": a.SweeperMode,
		"full":    a.FullMode,
		"report":  a.ReportMode,
	}
}

// Close releases everything Run connected. Only the first call does work.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.cleanup == nil {
			return
		}
		a.logger.Info("shutting down application")
		a.cleanup()
	})
}
