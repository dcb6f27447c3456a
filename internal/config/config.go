// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Required when StorageDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StorageDriver is "postgres" (default) or "memory" for local runs without a database.
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RevocationSweepInterval is how often expired revoked-token entries are dropped (e.g. "5m").
	RevocationSweepInterval string `mapstructure:"REVOCATION_SWEEP_INTERVAL"`

	// SMTP settings for assignment emails. When SMTPHost is empty, emails are logged instead of sent.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	// NotifyTimeout bounds a single email send (e.g. "10s").
	NotifyTimeout string `mapstructure:"NOTIFY_TIMEOUT"`
	// NotifyBreakerMaxFailures is the number of consecutive send failures that opens the circuit breaker.
	NotifyBreakerMaxFailures int `mapstructure:"NOTIFY_BREAKER_MAX_FAILURES"`

	// RBACPolicyFile, when set, is a Rego module defining data.pmt.rbac.allow that decides role checks
	// in place of the built-in table.
	RBACPolicyFile string `mapstructure:"RBAC_POLICY_FILE"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFile, when set, sends logs to a rotating file instead of stderr.
	LogFile string `mapstructure:"LOG_FILE"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "pmt-auth")
	v.SetDefault("JWT_AUDIENCE", "pmt-api")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REVOCATION_SWEEP_INTERVAL", "5m")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@pmt.local")
	v.SetDefault("NOTIFY_TIMEOUT", "10s")
	v.SetDefault("NOTIFY_BREAKER_MAX_FAILURES", 5)
	v.SetDefault("RBAC_POLICY_FILE", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch cfg.StorageDriver {
	case StoragePostgres, StorageMemory:
	default:
		return nil, errors.New("config: STORAGE_DRIVER must be postgres or memory")
	}
	if cfg.StorageDriver == StorageMemory && cfg.Env == "production" {
		return nil, errors.New("config: STORAGE_DRIVER=memory must not be used when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.SMTPHost != "" && (cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535) {
		return nil, errors.New("config: SMTP_PORT must be between 1 and 65535")
	}
	if cfg.NotifyBreakerMaxFailures <= 0 {
		cfg.NotifyBreakerMaxFailures = 5
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, time.Hour)
}

// SweepInterval parses RevocationSweepInterval. Returns 5m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.RevocationSweepInterval, 5*time.Minute)
}

// NotifyTimeoutDuration parses NotifyTimeout. Returns 10s if unset or invalid.
func (c *Config) NotifyTimeoutDuration() time.Duration {
	return parseDuration(c.NotifyTimeout, 10*time.Second)
}

// AuthEnabled reports whether both JWT keys are configured.
func (c *Config) AuthEnabled() bool {
	return strings.TrimSpace(c.JWTPrivateKey) != "" && strings.TrimSpace(c.JWTPublicKey) != ""
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
