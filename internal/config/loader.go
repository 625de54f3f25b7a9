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
// built-in defaults, applies TRADEDUEL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEDUEL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "TRADEDUEL_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "TRADEDUEL_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "TRADEDUEL_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "TRADEDUEL_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "TRADEDUEL_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "TRADEDUEL_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "TRADEDUEL_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "TRADEDUEL_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "TRADEDUEL_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "TRADEDUEL_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "TRADEDUEL_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEDUEL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEDUEL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEDUEL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEDUEL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEDUEL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEDUEL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADEDUEL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADEDUEL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEDUEL_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEDUEL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEDUEL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEDUEL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEDUEL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEDUEL_S3_FORCE_PATH_STYLE")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.BaseURL, "TRADEDUEL_JUPITER_BASE_URL")
	setDuration(&cfg.Jupiter.RefreshInterval, "TRADEDUEL_JUPITER_REFRESH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEDUEL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEDUEL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEDUEL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.GatewayKey, "TRADEDUEL_SERVER_GATEWAY_KEY")
	setInt(&cfg.Server.RateLimit, "TRADEDUEL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRADEDUEL_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.ChatRoom, "TRADEDUEL_NOTIFY_CHAT_ROOM")
	setStr(&cfg.Notify.TelegramToken, "TRADEDUEL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEDUEL_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "TRADEDUEL_NOTIFY_EVENTS")

	// ── Challenge ──
	setDuration(&cfg.Challenge.ClaimWindow, "TRADEDUEL_CHALLENGE_CLAIM_WINDOW")
	setFloat64(&cfg.Challenge.MinStake, "TRADEDUEL_CHALLENGE_MIN_STAKE")
	setFloat64(&cfg.Challenge.MaxStake, "TRADEDUEL_CHALLENGE_MAX_STAKE")
	setDuration(&cfg.Challenge.MinTimeframe, "TRADEDUEL_CHALLENGE_MIN_TIMEFRAME")
	setDuration(&cfg.Challenge.MaxTimeframe, "TRADEDUEL_CHALLENGE_MAX_TIMEFRAME")
	setInt(&cfg.Challenge.CreateLimit, "TRADEDUEL_CHALLENGE_CREATE_LIMIT")
	setInt(&cfg.Challenge.ClaimLimit, "TRADEDUEL_CHALLENGE_CLAIM_LIMIT")

	// ── Sweep ──
	setDuration(&cfg.Sweep.Interval, "TRADEDUEL_SWEEP_INTERVAL")
	setDuration(&cfg.Sweep.SettleGrace, "TRADEDUEL_SWEEP_SETTLE_GRACE")
	setDuration(&cfg.Sweep.ArchiveEvery, "TRADEDUEL_SWEEP_ARCHIVE_EVERY")
	setInt(&cfg.Sweep.RetentionDays, "TRADEDUEL_SWEEP_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEDUEL_MODE")
	setStr(&cfg.LogLevel, "TRADEDUEL_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
