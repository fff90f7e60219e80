package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	s3blob "github.com/okeymeta/probalyze-sub000/internal/blob/s3"
	"github.com/okeymeta/probalyze-sub000/internal/cache/local"
	"github.com/okeymeta/probalyze-sub000/internal/cache/redis"
	"github.com/okeymeta/probalyze-sub000/internal/config"
	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/notify"
	"github.com/okeymeta/probalyze-sub000/internal/objectstore"
	"github.com/okeymeta/probalyze-sub000/internal/service"
	"github.com/okeymeta/probalyze-sub000/internal/store/postgres"
)

// Dependencies bundles every dependency that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Storage
	Documents  *objectstore.Store
	Journal    domain.BalanceJournal
	CopyLog    domain.CopyTradeLog
	AuditStore domain.AuditStore // nil without Postgres

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage, nil unless S3 is configured
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Snapshots   domain.SnapshotArchiver

	// Services
	Ledger   *service.LedgerStore
	Balances *service.BalanceService
	Stats    *service.StatsService
	Engine   *service.Engine

	// Notifications
	Notifier *notify.Notifier
	Console  *notify.Console
}

// needsS3 returns true when the configuration stores anything in S3.
func needsS3(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Storage.Primary, "s3") || cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{}

	// --- PostgreSQL (journal, copy-trade log, audit, optionally documents) ---
	var pgClient *postgres.Client
	if cfg.Supabase.Enabled {
		var err error
		pgClient, err = postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Journal = postgres.NewJournalStore(pool)
		deps.CopyLog = postgres.NewCopyTradeStore(pool)
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		// The document store degrades to its fallback, so an unreachable
		// bucket is not fatal here.
		if err := s3Client.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket unreachable at startup", slog.String("error", err.Error()))
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader
	}

	// --- Notifications ---
	deps.Console = notify.NewConsole()
	deps.Notifier = notify.NewNotifier(buildSenders(cfg, deps.Console), cfg.Notify.Events, logger)

	// --- Ledger documents ---
	primary, err := documentBackend(cfg.Storage.Primary, cfg, pgClient, deps, &closers)
	if err != nil {
		return fail("primary storage", err)
	}
	var fallback domain.DocumentBackend
	if fb := strings.ToLower(cfg.Storage.Fallback); fb != "" && fb != "none" {
		if fallback, err = documentBackend(fb, cfg, pgClient, deps, &closers); err != nil {
			return fail("fallback storage", err)
		}
	}
	deps.Documents = objectstore.New(primary, fallback, objectstore.Options{
		MaxRetries: cfg.Storage.MaxRetries,
		BaseDelay:  cfg.Storage.BaseDelay.Duration,
		OnDegraded: degradedHandler(deps.AuditStore, deps.Notifier, logger),
	}, logger)

	if deps.Journal == nil {
		deps.Journal = objectstore.NewJournal(deps.Documents)
	}
	if deps.CopyLog == nil {
		deps.CopyLog = objectstore.NewCopyTradeLog(deps.Documents)
	}

	// --- Redis, or in-process equivalents ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMax)
	} else {
		logger.InfoContext(ctx, "redis disabled, using in-process locks and pub/sub")
		deps.RateLimiter = local.NewRateLimiter(perSecond(cfg.Server.RateLimit, cfg.Server.RateWindow.Duration), max(cfg.Server.RateLimit, 1))
		deps.LockManager = local.NewLockManager()
		deps.SignalBus = local.NewSignalBus(int(cfg.Redis.StreamMax))
	}

	// --- Services ---
	deps.Ledger = service.NewLedgerStore(deps.Documents)
	deps.Balances = service.NewBalanceService(deps.Ledger, deps.Journal, logger).
		WithLocks(deps.LockManager, cfg.Engine.LockTTL.Duration, cfg.Engine.LockTimeout.Duration).
		WithSignalBus(deps.SignalBus)
	deps.Stats = service.NewStatsService(deps.Ledger, logger)
	deps.Engine = service.NewEngine(service.EngineConfig{
		Fees: domain.Fees{
			EntryRate:      decimal.NewFromFloat(cfg.Engine.EntryFeeRate),
			SettlementRate: decimal.NewFromFloat(cfg.Engine.SettlementFeeRate),
		},
		AdminWallet: cfg.Engine.AdminWallet,
		RefundAge:   cfg.Engine.RefundAge.Duration,
		LockTTL:     cfg.Engine.LockTTL.Duration,
		LockTimeout: cfg.Engine.LockTimeout.Duration,
	}, deps.Ledger, deps.Balances, deps.Stats, deps.CopyLog, logger).
		WithLocks(deps.LockManager).
		WithSignalBus(deps.SignalBus).
		WithNotifier(deps.Notifier)
	if deps.AuditStore != nil {
		deps.Balances.WithAudit(deps.AuditStore)
		deps.Engine.WithAudit(deps.AuditStore)
	}

	// --- Snapshots ---
	if cfg.Archive.Enabled && deps.BlobWriter != nil {
		deps.Snapshots = s3blob.NewSnapshotArchiver(deps.BlobWriter, deps.Documents, deps.Journal, deps.AuditStore)
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("primary", primary.Name()),
		slog.String("fallback", backendName(fallback)),
		slog.Bool("postgres", pgClient != nil),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", deps.BlobWriter != nil),
		slog.Bool("notifications", deps.Notifier.Enabled()),
	)

	return deps, cleanup, nil
}

// documentBackend builds the named document backend. closers collects the
// resources the backend owns.
func documentBackend(name string, cfg *config.Config, pg *postgres.Client, deps *Dependencies, closers *[]func()) (domain.DocumentBackend, error) {
	switch strings.ToLower(name) {
	case "s3":
		if deps.BlobReader == nil || deps.BlobWriter == nil {
			return nil, fmt.Errorf("s3 backend requires s3 configuration")
		}
		return objectstore.NewBlobBackend(deps.BlobReader, deps.BlobWriter, cfg.Storage.Prefix), nil
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("postgres backend requires supabase.enabled")
		}
		return postgres.NewDocumentStore(pg.Pool()), nil
	case "sqlite":
		b, err := objectstore.NewSQLiteBackend(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = b.Close() })
		return b, nil
	case "memory":
		return objectstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// buildSenders returns the configured alert channels. Without any remote
// channel, alerts go to the console.
func buildSenders(cfg *config.Config, console *notify.Console) []notify.Sender {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		senders = append(senders, console)
	}
	return senders
}

// degradedHandler records every fallback read or write in the audit log and
// alerts operators at most once a minute.
func degradedHandler(audit domain.AuditStore, notifier *notify.Notifier, logger *slog.Logger) func(ctx context.Context, op, key string, cause error) {
	alert := &rate.Sometimes{Interval: time.Minute}
	return func(ctx context.Context, op, key string, cause error) {
		if audit != nil {
			if err := audit.Log(ctx, "storage.degraded", map[string]any{
				"op":    op,
				"key":   key,
				"cause": cause.Error(),
			}); err != nil {
				logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
			}
		}
		alert.Do(func() {
			msg := fmt.Sprintf("%s %s served from local cache: %v", op, key, cause)
			if err := notifier.Notify(ctx, "storage_degraded", "Storage degraded", msg); err != nil {
				logger.WarnContext(ctx, "degraded alert failed", slog.String("error", err.Error()))
			}
		})
	}
}

func perSecond(limit int, window time.Duration) float64 {
	if limit <= 0 || window <= 0 {
		return 1
	}
	return float64(limit) / window.Seconds()
}

func backendName(b domain.DocumentBackend) string {
	if b == nil {
		return "none"
	}
	return b.Name()
}
