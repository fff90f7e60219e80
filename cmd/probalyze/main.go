// Command probalyze runs the prediction-market ledger: the HTTP API, the
// lifecycle sweeper and snapshot archiver, or a one-shot report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/okeymeta/probalyze-sub000/internal/app"
	"github.com/okeymeta/probalyze-sub000/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "operating mode, overrides the config file (server, sweeper, full, report)")
	flag.Parse()

	logger := newLogger(os.Stdout, "info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if *mode != "" {
		cfg.Mode = strings.ToLower(*mode)
	}

	// Report mode prints tables on stdout, so logs go to stderr.
	out := io.Writer(os.Stdout)
	if cfg.Mode == "report" {
		out = os.Stderr
	}
	logger = newLogger(out, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	redacted := config.RedactedConfig(cfg)
	logger.Info("probalyze starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.String("primary_storage", redacted.Storage.Primary),
		slog.String("fallback_storage", redacted.Storage.Fallback),
		slog.String("admin_wallet", redacted.Engine.AdminWallet),
	)
	logger.Debug("effective configuration", slog.Any("config", redacted))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	switch err := application.Run(ctx); {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Info("application shut down gracefully")
	default:
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	logger.Info("probalyze stopped")
	return 0
}

// newLogger builds the JSON logger. An unknown level falls back to info.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
