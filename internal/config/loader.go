package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies COINPILOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known COINPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "COINPILOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "COINPILOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "COINPILOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "COINPILOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "COINPILOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "COINPILOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "COINPILOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "COINPILOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "COINPILOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "COINPILOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "COINPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COINPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COINPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COINPILOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COINPILOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COINPILOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "COINPILOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "COINPILOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "COINPILOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "COINPILOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "COINPILOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "COINPILOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "COINPILOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "COINPILOT_S3_FORCE_PATH_STYLE")

	// ── Trading ──
	setDuration(&cfg.Trading.CycleInterval, "COINPILOT_TRADING_CYCLE_INTERVAL")
	setDuration(&cfg.Trading.SignalLookback, "COINPILOT_TRADING_SIGNAL_LOOKBACK")
	setInt(&cfg.Trading.SnapshotEvery, "COINPILOT_TRADING_SNAPSHOT_EVERY")

	// ── Retention ──
	setBool(&cfg.Retention.Enabled, "COINPILOT_RETENTION_ENABLED")
	setInt(&cfg.Retention.RetentionDays, "COINPILOT_RETENTION_DAYS")
	setDuration(&cfg.Retention.SweepInterval, "COINPILOT_RETENTION_SWEEP_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "COINPILOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "COINPILOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "COINPILOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "COINPILOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "COINPILOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "COINPILOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COINPILOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COINPILOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "COINPILOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "COINPILOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "COINPILOT_MODE")
	setStr(&cfg.LogLevel, "COINPILOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
