package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the configuration in three layers: Defaults, then the TOML
// file at path (skipped when path is empty), then PROBALYZE_* environment
// variables, which may also come from a .env file in the working directory.
// Unknown TOML keys and malformed environment values are errors. The result
// is not validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	// A missing .env is normal; variables already set win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var e env

	e.stringVar(&cfg.Engine.AdminWallet, "PROBALYZE_ENGINE_ADMIN_WALLET", "PROBALYZE_ADMIN_WALLET")
	e.floatVar(&cfg.Engine.EntryFeeRate, "PROBALYZE_ENGINE_ENTRY_FEE_RATE")
	e.floatVar(&cfg.Engine.SettlementFeeRate, "PROBALYZE_ENGINE_SETTLEMENT_FEE_RATE")
	e.durationVar(&cfg.Engine.RefundAge, "PROBALYZE_ENGINE_REFUND_AGE")
	e.durationVar(&cfg.Engine.LockTTL, "PROBALYZE_ENGINE_LOCK_TTL")
	e.durationVar(&cfg.Engine.LockTimeout, "PROBALYZE_ENGINE_LOCK_TIMEOUT")

	e.stringVar(&cfg.Storage.Primary, "PROBALYZE_STORAGE_PRIMARY")
	e.stringVar(&cfg.Storage.Fallback, "PROBALYZE_STORAGE_FALLBACK")
	e.stringVar(&cfg.Storage.SQLitePath, "PROBALYZE_STORAGE_SQLITE_PATH")
	e.stringVar(&cfg.Storage.Prefix, "PROBALYZE_STORAGE_PREFIX")
	e.intVar(&cfg.Storage.MaxRetries, "PROBALYZE_STORAGE_MAX_RETRIES")
	e.durationVar(&cfg.Storage.BaseDelay, "PROBALYZE_STORAGE_BASE_DELAY")

	e.boolVar(&cfg.Supabase.Enabled, "PROBALYZE_SUPABASE_ENABLED")
	e.stringVar(&cfg.Supabase.DSN, "PROBALYZE_SUPABASE_DSN", "PROBALYZE_SUPABASE_URL")
	e.stringVar(&cfg.Supabase.Host, "PROBALYZE_SUPABASE_HOST")
	e.intVar(&cfg.Supabase.Port, "PROBALYZE_SUPABASE_PORT")
	e.stringVar(&cfg.Supabase.Database, "PROBALYZE_SUPABASE_DATABASE")
	e.stringVar(&cfg.Supabase.User, "PROBALYZE_SUPABASE_USER")
	e.stringVar(&cfg.Supabase.Password, "PROBALYZE_SUPABASE_PASSWORD")
	e.stringVar(&cfg.Supabase.SSLMode, "PROBALYZE_SUPABASE_SSL_MODE", "PROBALYZE_SUPABASE_SSLMODE")
	e.intVar(&cfg.Supabase.PoolMaxConns, "PROBALYZE_SUPABASE_POOL_MAX_CONNS")
	e.intVar(&cfg.Supabase.PoolMinConns, "PROBALYZE_SUPABASE_POOL_MIN_CONNS")
	e.boolVar(&cfg.Supabase.RunMigrations, "PROBALYZE_SUPABASE_RUN_MIGRATIONS")

	e.boolVar(&cfg.Redis.Enabled, "PROBALYZE_REDIS_ENABLED")
	e.stringVar(&cfg.Redis.Addr, "PROBALYZE_REDIS_ADDR", "PROBALYZE_REDIS_URL")
	e.stringVar(&cfg.Redis.Password, "PROBALYZE_REDIS_PASSWORD")
	e.intVar(&cfg.Redis.DB, "PROBALYZE_REDIS_DB")
	e.intVar(&cfg.Redis.PoolSize, "PROBALYZE_REDIS_POOL_SIZE")
	e.intVar(&cfg.Redis.MaxRetries, "PROBALYZE_REDIS_MAX_RETRIES")
	e.boolVar(&cfg.Redis.TLSEnabled, "PROBALYZE_REDIS_TLS_ENABLED")
	e.int64Var(&cfg.Redis.StreamMax, "PROBALYZE_REDIS_STREAM_MAX_LEN")
	e.stringVar(&cfg.Redis.Namespace, "PROBALYZE_REDIS_NAMESPACE")

	e.stringVar(&cfg.S3.Endpoint, "PROBALYZE_S3_ENDPOINT")
	e.stringVar(&cfg.S3.Region, "PROBALYZE_S3_REGION")
	e.stringVar(&cfg.S3.Bucket, "PROBALYZE_S3_BUCKET")
	e.stringVar(&cfg.S3.AccessKey, "PROBALYZE_S3_ACCESS_KEY")
	e.stringVar(&cfg.S3.SecretKey, "PROBALYZE_S3_SECRET_KEY")
	e.boolVar(&cfg.S3.UseSSL, "PROBALYZE_S3_USE_SSL")
	e.boolVar(&cfg.S3.ForcePathStyle, "PROBALYZE_S3_FORCE_PATH_STYLE")

	e.boolVar(&cfg.Server.Enabled, "PROBALYZE_SERVER_ENABLED")
	e.intVar(&cfg.Server.Port, "PROBALYZE_SERVER_PORT")
	e.listVar(&cfg.Server.CORSOrigins, "PROBALYZE_SERVER_CORS_ORIGINS")
	e.stringVar(&cfg.Server.APIKey, "PROBALYZE_SERVER_API_KEY")
	e.intVar(&cfg.Server.RateLimit, "PROBALYZE_SERVER_RATE_LIMIT")
	e.durationVar(&cfg.Server.RateWindow, "PROBALYZE_SERVER_RATE_WINDOW")

	e.boolVar(&cfg.Sweeper.Enabled, "PROBALYZE_SWEEPER_ENABLED")
	e.durationVar(&cfg.Sweeper.Interval, "PROBALYZE_SWEEPER_INTERVAL")

	e.boolVar(&cfg.Archive.Enabled, "PROBALYZE_ARCHIVE_ENABLED")
	e.stringVar(&cfg.Archive.Cron, "PROBALYZE_ARCHIVE_CRON")
	e.intVar(&cfg.Archive.RetentionDays, "PROBALYZE_ARCHIVE_RETENTION_DAYS")

	e.stringVar(&cfg.Notify.TelegramToken, "PROBALYZE_NOTIFY_TELEGRAM_TOKEN")
	e.stringVar(&cfg.Notify.TelegramChatID, "PROBALYZE_NOTIFY_TELEGRAM_CHAT_ID")
	e.stringVar(&cfg.Notify.DiscordWebhookURL, "PROBALYZE_NOTIFY_DISCORD_WEBHOOK_URL")
	e.listVar(&cfg.Notify.Events, "PROBALYZE_NOTIFY_EVENTS")

	e.stringVar(&cfg.Mode, "PROBALYZE_MODE")
	e.stringVar(&cfg.LogLevel, "PROBALYZE_LOG_LEVEL")

	return errors.Join(e.errs...)
}

// env applies environment variables to config fields. Each setter takes
// the canonical name first and then aliases; the first non-empty one wins.
// Values that fail to parse are collected rather than ignored.
type env struct {
	errs []error
}

func (e *env) lookup(keys []string) (key, val string, ok bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return k, v, true
		}
	}
	return "", "", false
}

func (e *env) stringVar(dst *string, keys ...string) {
	if _, v, ok := e.lookup(keys); ok {
		*dst = v
	}
}

func (e *env) listVar(dst *[]string, keys ...string) {
	_, v, ok := e.lookup(keys)
	if !ok {
		return
	}
	items := strings.Split(v, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	if items = slices.DeleteFunc(items, func(s string) bool { return s == "" }); len(items) > 0 {
		*dst = items
	}
}

func (e *env) intVar(dst *int, keys ...string) {
	parse(e, dst, strconv.Atoi, keys)
}

func (e *env) int64Var(dst *int64, keys ...string) {
	parse(e, dst, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }, keys)
}

func (e *env) floatVar(dst *float64, keys ...string) {
	parse(e, dst, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }, keys)
}

func (e *env) boolVar(dst *bool, keys ...string) {
	parse(e, dst, strconv.ParseBool, keys)
}

func (e *env) durationVar(dst *duration, keys ...string) {
	parse(e, &dst.Duration, time.ParseDuration, keys)
}

func parse[T any](e *env, dst *T, fn func(string) (T, error), keys []string) {
	k, v, ok := e.lookup(keys)
	if !ok {
		return
	}
	parsed, err := fn(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", k, v, err))
		return
	}
	*dst = parsed
}
