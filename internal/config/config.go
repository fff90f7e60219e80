// Package config defines the top-level configuration for the ledger engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PROBALYZE_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Storage  StorageConfig  `toml:"storage"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Sweeper  SweeperConfig  `toml:"sweeper"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the accounting rules.
type EngineConfig struct {
	AdminWallet string `toml:"admin_wallet"`
	// EntryFeeRate is taken from every stake before it enters a pool.
	EntryFeeRate float64 `toml:"entry_fee_rate"`
	// SettlementFeeRate is taken from every gross payout.
	SettlementFeeRate float64  `toml:"settlement_fee_rate"`
	RefundAge         duration `toml:"refund_age"`
	LockTTL           duration `toml:"lock_ttl"`
	LockTimeout       duration `toml:"lock_timeout"`
}

// StorageConfig selects where the ledger documents live.
type StorageConfig struct {
	// Primary is one of s3, postgres, sqlite, memory.
	Primary string `toml:"primary"`
	// Fallback is one of sqlite, memory, none. It caches every successful
	// write and serves reads while the primary is down.
	Fallback   string   `toml:"fallback"`
	SQLitePath string   `toml:"sqlite_path"`
	Prefix     string   `toml:"prefix"`
	MaxRetries int      `toml:"max_retries"`
	BaseDelay  duration `toml:"base_delay"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters. When
// enabled, the balance journal, copy-trade log and audit log live in SQL.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn" secret:"true"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password" secret:"true"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Without Redis the engine
// uses in-process locks, pub/sub and rate limiting.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr" secret:"url"`
	Password   string `toml:"password" secret:"true"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	StreamMax  int64  `toml:"stream_max_len"`
	Namespace  string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key" secret:"true"`
	SecretKey      string `toml:"secret_key" secret:"true"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required as a Bearer token or X-API-Key header.
	APIKey string `toml:"api_key" secret:"true"`
	// RateLimit is the number of requests a caller may make per RateWindow.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// SweeperConfig controls the background lifecycle pass.
type SweeperConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// ArchiveConfig controls ledger snapshots to blob storage.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" secret:"true"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" secret:"true"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			EntryFeeRate:      0.025,
			SettlementFeeRate: 0.03,
			RefundAge:         duration{78 * time.Hour},
			LockTTL:           duration{30 * time.Second},
			LockTimeout:       duration{10 * time.Second},
		},
		Storage: StorageConfig{
			Primary:    "sqlite",
			Fallback:   "memory",
			SQLitePath: "probalyze.db",
			Prefix:     "ledger",
			MaxRetries: 3,
			BaseDelay:  duration{200 * time.Millisecond},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			StreamMax:  10000,
			Namespace:  "probalyze",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "probalyze",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: duration{5 * time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 * * *",
			RetentionDays: 30,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "market_refunded", "storage_degraded"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"sweeper": true,
	"full":    true,
	"report":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validPrimaries = map[string]bool{"s3": true, "postgres": true, "sqlite": true, "memory": true}

var validFallbacks = map[string]bool{"sqlite": true, "memory": true, "none": true, "": true}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, sweeper, full, report)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if strings.TrimSpace(c.Engine.AdminWallet) == "" {
		errs = append(errs, "engine: admin_wallet must be set")
	}
	if c.Engine.EntryFeeRate < 0 || c.Engine.EntryFeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("engine: entry_fee_rate must be in [0, 1), got %g", c.Engine.EntryFeeRate))
	}
	if c.Engine.SettlementFeeRate < 0 || c.Engine.SettlementFeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("engine: settlement_fee_rate must be in [0, 1), got %g", c.Engine.SettlementFeeRate))
	}
	if c.Engine.RefundAge.Duration <= 0 {
		errs = append(errs, "engine: refund_age must be > 0")
	}
	if c.Engine.LockTimeout.Duration <= 0 {
		errs = append(errs, "engine: lock_timeout must be > 0")
	}
	if c.Engine.LockTTL.Duration < c.Engine.LockTimeout.Duration {
		errs = append(errs, "engine: lock_ttl must not be shorter than lock_timeout")
	}

	// Storage
	primary := strings.ToLower(c.Storage.Primary)
	if !validPrimaries[primary] {
		errs = append(errs, fmt.Sprintf("storage: unknown primary %q (valid: s3, postgres, sqlite, memory)", c.Storage.Primary))
	}
	fallback := strings.ToLower(c.Storage.Fallback)
	if !validFallbacks[fallback] {
		errs = append(errs, fmt.Sprintf("storage: unknown fallback %q (valid: sqlite, memory, none)", c.Storage.Fallback))
	}
	if (primary == "sqlite" || fallback == "sqlite") && c.Storage.SQLitePath == "" {
		errs = append(errs, "storage: sqlite_path must be set when sqlite is used")
	}
	if primary == "sqlite" && fallback == "sqlite" {
		errs = append(errs, "storage: primary and fallback must differ")
	}
	if c.Storage.MaxRetries < 0 {
		errs = append(errs, "storage: max_retries must be >= 0")
	}
	if primary == "postgres" && !c.Supabase.Enabled {
		errs = append(errs, "storage: primary postgres requires supabase.enabled")
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if primary == "s3" || c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Sweeper
	if c.Sweeper.Enabled && c.Sweeper.Interval.Duration <= 0 {
		errs = append(errs, "sweeper: interval must be > 0")
	}

	// Archive
	if c.Archive.Enabled {
		if cron := strings.TrimSpace(c.Archive.Cron); !strings.HasPrefix(cron, "@") && len(strings.Fields(cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields or be a macro like @daily, got %q", c.Archive.Cron))
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
