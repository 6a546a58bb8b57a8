// Package config defines the top-level configuration for the wagerbook
// settlement service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WAGERBOOK_* environment variables.
type Config struct {
	Mode       string           `toml:"mode"`
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Store      StoreConfig      `toml:"store"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Custody    CustodyConfig    `toml:"custody"`
	Oracle     OracleConfig     `toml:"oracle"`
	Settlement SettlementConfig `toml:"settlement"`
	Notify     NotifyConfig     `toml:"notify"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Keys       KeysConfig       `toml:"keys"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIKey         string   `toml:"api_key"`
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     duration `toml:"rate_window"`
	IdempotencyTTL duration `toml:"idempotency_ttl"`
	ShutdownGrace  duration `toml:"shutdown_grace"`
}

// StoreConfig picks the persistence backend.
type StoreConfig struct {
	Backend string `toml:"backend"` // "postgres" or "memory"
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

// RedisConfig holds Redis connection parameters. When disabled, locks, the
// bus, the market cache, feeds and rate limiting run in process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for archives.
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

// CustodyConfig selects where balances live. The engine identity owns
// every market vault.
type CustodyConfig struct {
	Backend        string `toml:"backend"` // "postgres", "memory" or "http"
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	EngineIdentity string `toml:"engine_identity"`
}

// OracleConfig controls how result readings are trusted.
type OracleConfig struct {
	ChainID          int      `toml:"chain_id"`
	RequireSignature bool     `toml:"require_signature"`
	TrustedSigners   []string `toml:"trusted_signers"`
	MaxReadingAge    duration `toml:"max_reading_age"`
}

// SettlementConfig holds engine tunables.
type SettlementConfig struct {
	DefaultAsset    string   `toml:"default_asset"`
	AssetDecimals   int32    `toml:"asset_decimals"`
	LockTTL         duration `toml:"lock_ttl"`
	LockWait        duration `toml:"lock_wait"`
	ResolveInterval duration `toml:"resolve_interval"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// KeysConfig locates the local oracle signing key used by the sign-reading
// command and by test deployments that relay their own readings.
type KeysConfig struct {
	OraclePrivateKey string `toml:"oracle_private_key"`
	OracleKeyFile    string `toml:"oracle_key_file"`
	KeyPassword      string `toml:"key_password"`
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

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns a Config populated with sensible defaults for local
// development.
func Defaults() Config {
	return Config{
		Mode: "all",
		Log:  LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:      50,
			RateWindow:     duration{time.Second},
			IdempotencyTTL: duration{10 * time.Minute},
			ShutdownGrace:  duration{15 * time.Second},
		},
		Store: StoreConfig{Backend: "postgres"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "wagerbook",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "wagerbook-archive",
			ForcePathStyle: true,
		},
		Custody: CustodyConfig{
			Backend:        "postgres",
			EngineIdentity: "wagerbook-engine",
		},
		Oracle: OracleConfig{
			ChainID:          1,
			RequireSignature: true,
			MaxReadingAge:    duration{24 * time.Hour},
		},
		Settlement: SettlementConfig{
			DefaultAsset:    "USDC",
			AssetDecimals:   6,
			LockTTL:         duration{10 * time.Second},
			LockWait:        duration{5 * time.Second},
			ResolveInterval: duration{30 * time.Second},
			ArchiveInterval: duration{time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "fees_collected", "error"},
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

var validModes = map[string]bool{
	"api":      true,
	"resolver": true,
	"archiver": true,
	"all":      true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, resolver, archiver, all)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log.level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.ServesAPI() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	switch c.Store.Backend {
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
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: postgres, memory)", c.Store.Backend))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Mode == "archiver" && !c.S3.Enabled {
		errs = append(errs, "s3: must be enabled for archiver mode")
	}

	switch c.Custody.Backend {
	case "memory":
	case "postgres":
		if c.Store.Backend != "postgres" {
			errs = append(errs, "custody: postgres backend requires store.backend = postgres")
		}
	case "http":
		if c.Custody.Endpoint == "" {
			errs = append(errs, "custody: endpoint is required for the http backend")
		}
		if c.Custody.APIKey == "" || c.Custody.APISecret == "" {
			errs = append(errs, "custody: api_key and api_secret are required for the http backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("custody: unknown backend %q (valid: postgres, memory, http)", c.Custody.Backend))
	}
	if strings.TrimSpace(c.Custody.EngineIdentity) == "" {
		errs = append(errs, "custody: engine_identity must not be empty")
	}

	if c.Oracle.ChainID <= 0 {
		errs = append(errs, "oracle: chain_id must be positive")
	}
	if c.Oracle.RequireSignature && len(c.Oracle.TrustedSigners) == 0 {
		errs = append(errs, "oracle: trusted_signers must list at least one address when require_signature is set")
	}
	for _, s := range c.Oracle.TrustedSigners {
		if !common.IsHexAddress(s) {
			errs = append(errs, fmt.Sprintf("oracle: trusted signer %q is not a hex address", s))
		}
	}

	if c.Settlement.DefaultAsset == "" {
		errs = append(errs, "settlement: default_asset must not be empty")
	}
	if c.Settlement.AssetDecimals < 0 || c.Settlement.AssetDecimals > 18 {
		errs = append(errs, "settlement: asset_decimals must be 0-18")
	}
	if c.Settlement.LockTTL.Duration <= 0 {
		errs = append(errs, "settlement: lock_ttl must be > 0")
	}
	if c.RunsResolver() && c.Settlement.ResolveInterval.Duration <= 0 {
		errs = append(errs, "settlement: resolve_interval must be > 0")
	}
	if c.RunsArchiver() && c.Settlement.ArchiveInterval.Duration <= 0 {
		errs = append(errs, "settlement: archive_interval must be > 0")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics: path must start with /")
	}
	if c.Keys.OracleKeyFile != "" && c.Keys.KeyPassword == "" {
		errs = append(errs, "keys: key_password is required when oracle_key_file is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ServesAPI reports whether the mode runs the HTTP server.
func (c *Config) ServesAPI() bool { return c.Mode == "api" || c.Mode == "all" }

// RunsResolver reports whether the mode runs the auto resolver.
func (c *Config) RunsResolver() bool { return c.Mode == "resolver" || c.Mode == "all" }

// RunsArchiver reports whether the mode runs the archiver.
func (c *Config) RunsArchiver() bool { return c.Mode == "archiver" || c.Mode == "all" }
