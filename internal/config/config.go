// Package config defines the top-level configuration for the trading duel
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEDUEL_* environment variables.
type Config struct {
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Jupiter   JupiterConfig   `toml:"jupiter"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Challenge ChallengeConfig `toml:"challenge"`
	Sweep     SweepConfig     `toml:"sweep"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. The archive is
// optional; an empty bucket disables it.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// JupiterConfig holds the upstream price source parameters.
type JupiterConfig struct {
	BaseURL         string   `toml:"base_url"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	GatewayKey  string   `toml:"gateway_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel settings. Lobby chat announcements
// are always on; Telegram is an optional operator channel.
type NotifyConfig struct {
	ChatRoom       string   `toml:"chat_room"`
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// ChallengeConfig bounds challenge terms.
type ChallengeConfig struct {
	ClaimWindow  duration `toml:"claim_window"`
	MinStake     float64  `toml:"min_stake"`
	MaxStake     float64  `toml:"max_stake"`
	MinTimeframe duration `toml:"min_timeframe"`
	MaxTimeframe duration `toml:"max_timeframe"`
	CreateLimit  int      `toml:"create_limit"`
	ClaimLimit   int      `toml:"claim_limit"`
}

// SweepConfig holds background maintenance parameters.
type SweepConfig struct {
	Interval      duration `toml:"interval"`
	SettleGrace   duration `toml:"settle_grace"`
	ArchiveEvery  duration `toml:"archive_every"`
	RetentionDays int      `toml:"retention_days"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
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
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradeduel-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Jupiter: JupiterConfig{
			BaseURL:         "https://api.jup.ag/price/v2",
			RefreshInterval: duration{10 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			ChatRoom: "general",
			Events:   []string{"challenge_created", "challenge_claimed", "challenge_completed", "challenge_expired"},
		},
		Challenge: ChallengeConfig{
			ClaimWindow:  duration{5 * time.Minute},
			MinStake:     1,
			MaxStake:     1000,
			MinTimeframe: duration{time.Minute},
			MaxTimeframe: duration{24 * time.Hour},
			CreateLimit:  10,
			ClaimLimit:   30,
		},
		Sweep: SweepConfig{
			Interval:      duration{30 * time.Second},
			SettleGrace:   duration{2 * time.Minute},
			ArchiveEvery:  duration{24 * time.Hour},
			RetentionDays: 30,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"sweep": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sweep, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Supabase
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 (only when enabled)
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Jupiter
	if c.Jupiter.BaseURL == "" {
		errs = append(errs, "jupiter: base_url must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify: Telegram credentials must be set together, or not at all.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Challenge
	if c.Challenge.MinStake <= 0 {
		errs = append(errs, "challenge: min_stake must be > 0")
	}
	if c.Challenge.MaxStake < c.Challenge.MinStake {
		errs = append(errs, "challenge: max_stake must be >= min_stake")
	}
	if c.Challenge.ClaimWindow.Duration <= 0 {
		errs = append(errs, "challenge: claim_window must be > 0")
	}
	if c.Challenge.MinTimeframe.Duration <= 0 {
		errs = append(errs, "challenge: min_timeframe must be > 0")
	}
	if c.Challenge.MaxTimeframe.Duration < c.Challenge.MinTimeframe.Duration {
		errs = append(errs, "challenge: max_timeframe must be >= min_timeframe")
	}

	// Sweep
	if c.Mode == "sweep" || c.Mode == "full" {
		if c.Sweep.Interval.Duration <= 0 {
			errs = append(errs, "sweep: interval must be > 0")
		}
		if c.Sweep.RetentionDays < 1 {
			errs = append(errs, "sweep: retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
