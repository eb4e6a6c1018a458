// Package config defines the top-level configuration for the binary options
// settlement service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BINOPT_* environment variables.
type Config struct {
	Binary   BinaryConfig   `toml:"binary"`
	Exchange ExchangeConfig `toml:"exchange"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	SMTP     SMTPConfig     `toml:"smtp"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BinaryConfig holds order lifecycle and settlement parameters.
type BinaryConfig struct {
	Enabled          bool           `toml:"enabled"`
	ProfitPercent    float64        `toml:"profit_percent"`
	SettleRetryDelay duration       `toml:"settle_retry_delay"`
	ReconcileEvery   duration       `toml:"reconcile_interval"`
	MaxConcurrent    int            `toml:"max_concurrent_settlements"`
	MinDuration      duration       `toml:"min_duration"`
	MaxDuration      duration       `toml:"max_duration"`
	SettleLockTTL    duration       `toml:"settle_lock_ttl"`
	Markets          []MarketConfig `toml:"markets"`
}

// MarketConfig seeds one tradable symbol. ProfitPercent of zero falls back to
// binary.profit_percent.
type MarketConfig struct {
	Currency      string  `toml:"currency"`
	Pair          string  `toml:"pair"`
	MinAmount     float64 `toml:"min_amount"`
	MaxAmount     float64 `toml:"max_amount"`
	ProfitPercent float64 `toml:"profit_percent"`
}

// ExchangeConfig holds the price provider endpoint and throttling settings.
type ExchangeConfig struct {
	BaseURL           string   `toml:"base_url"`
	Timeout           duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	BanCooldown       duration `toml:"ban_cooldown"`
	PriceCacheTTL     duration `toml:"price_cache_ttl"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `toml:"driver"` // postgres | memory
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the export of closed orders to S3.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP/WebSocket server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	JWTSecret   string   `toml:"jwt_secret"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SMTPConfig holds the outbound mail relay used for settlement e-mails.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "60s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so that BurntSushi/toml can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-tripping.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns a Config populated with sensible default values. Values
// loaded from a TOML file or environment variables override these defaults.
func Defaults() Config {
	return Config{
		Binary: BinaryConfig{
			Enabled:          true,
			ProfitPercent:    87,
			SettleRetryDelay: duration{60 * time.Second},
			ReconcileEvery:   duration{time.Minute},
			MaxConcurrent:    16,
			MinDuration:      duration{time.Minute},
			MaxDuration:      duration{24 * time.Hour},
			SettleLockTTL:    duration{30 * time.Second},
		},
		Exchange: ExchangeConfig{
			BaseURL:           "https://api.binance.com",
			Timeout:           duration{5 * time.Second},
			RequestsPerSecond: 10,
			Burst:             20,
			BanCooldown:       duration{time.Minute},
			PriceCacheTTL:     duration{time.Second},
		},
		Storage: StorageConfig{
			Driver: "postgres",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "binaryoptions",
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
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "binaryoptions",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"order_settled", "settlement_failed"},
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"api":    true,
	"worker": true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, api, worker)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Binary
	if c.Binary.ProfitPercent <= 0 || c.Binary.ProfitPercent > 1000 {
		errs = append(errs, fmt.Sprintf("binary: profit_percent must be in (0, 1000], got %g", c.Binary.ProfitPercent))
	}
	if c.Binary.SettleRetryDelay.Duration <= 0 {
		errs = append(errs, "binary: settle_retry_delay must be > 0")
	}
	if c.Binary.MaxConcurrent < 1 {
		errs = append(errs, "binary: max_concurrent_settlements must be >= 1")
	}
	if c.Binary.MaxDuration.Duration > 0 && c.Binary.MaxDuration.Duration < c.Binary.MinDuration.Duration {
		errs = append(errs, "binary: max_duration must not be below min_duration")
	}
	seen := make(map[string]bool, len(c.Binary.Markets))
	for i, m := range c.Binary.Markets {
		if m.Currency == "" || m.Pair == "" {
			errs = append(errs, fmt.Sprintf("binary.markets[%d]: currency and pair are required", i))
			continue
		}
		key := strings.ToUpper(m.Currency + "/" + m.Pair)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("binary.markets[%d]: duplicate market %s", i, key))
		}
		seen[key] = true
		if m.MinAmount < 0 {
			errs = append(errs, fmt.Sprintf("binary.markets[%d]: min_amount must be >= 0", i))
		}
		if m.MaxAmount > 0 && m.MaxAmount < m.MinAmount {
			errs = append(errs, fmt.Sprintf("binary.markets[%d]: max_amount must not be below min_amount", i))
		}
		if m.ProfitPercent < 0 {
			errs = append(errs, fmt.Sprintf("binary.markets[%d]: profit_percent must be >= 0", i))
		}
	}

	// Exchange
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.RequestsPerSecond <= 0 {
		errs = append(errs, "exchange: requests_per_second must be > 0")
	}
	if c.Exchange.Burst < 1 {
		errs = append(errs, "exchange: burst must be >= 1")
	}

	// Storage
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: postgres, memory)", c.Storage.Driver))
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, "s3: endpoint and bucket are required when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %q", c.Archive.Cron))
		}
	}

	// Server
	if c.Server.Enabled && c.Mode != "worker" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if len(c.Server.JWTSecret) < 16 {
			errs = append(errs, "server: jwt_secret must be at least 16 characters")
		}
	}

	// SMTP
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, "smtp: from is required when host is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
