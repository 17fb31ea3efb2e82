// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Each security component receives only its own section.
  - Zero Hidden State: No global variables are used to store config.

A local '.env' file is honoured in development through godotenv; real
environment variables always win over file values.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/taibuivan/gatekeeper/internal/platform/validate"
)

// # Configuration Schema

// Config holds all runtime configuration for the Gatekeeper API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string         `env:"DATABASE_URL,required"`
	Database    DatabaseConfig `envPrefix:"DATABASE_"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis). Optional unless the revocation backend is redis.
	RedisURL string      `env:"REDIS_URL"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`

	// Error reporting and observability
	SentryDSN    string `env:"SENTRY_DSN"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	NATSURL      string `env:"NATS_URL"`

	JWT        JWTConfig        `envPrefix:"JWT_"`
	Lockout    LockoutConfig    `envPrefix:"LOCKOUT_"`
	RateLimit  RateLimitConfig  `envPrefix:"RATE_LIMIT_"`
	Session    SessionConfig    `envPrefix:"SESSION_"`
	AdminIP    AdminIPConfig    `envPrefix:"ADMIN_IP_"`
	Revocation RevocationConfig `envPrefix:"REVOCATION_"`
}

// DatabaseConfig sizes the PostgreSQL pool and bounds every statement.
type DatabaseConfig struct {
	MaxConns         int32         `env:"MAX_CONNS"         envDefault:"25"`
	MinConns         int32         `env:"MIN_CONNS"         envDefault:"2"`
	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT" envDefault:"5s"`

	// LockTimeout bounds how long a sign-in waits on another request's lockout row lock.
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"3s"`
}

// RedisConfig sizes the Redis pool and namespaces the keys this service writes.
type RedisConfig struct {
	PoolSize  int    `env:"POOL_SIZE"  envDefault:"10"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"gatekeeper:"`
}

// JWTConfig configures the token codec.
type JWTConfig struct {
	Secret     string        `env:"SECRET,required"`
	Issuer     string        `env:"ISSUER"      envDefault:"gatekeeper.local"`
	AccessTTL  time.Duration `env:"ACCESS_TTL"  envDefault:"15m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

// LockoutConfig configures the brute-force lockout guard.
type LockoutConfig struct {
	Enabled             bool `env:"ENABLED"               envDefault:"true"`
	MaxFailedAttempts   int  `env:"MAX_FAILED_ATTEMPTS"   envDefault:"5"`
	LockDurationMinutes int  `env:"LOCK_DURATION_MINUTES" envDefault:"15"`
}

// LockDuration returns the lock window as a [time.Duration].
func (c LockoutConfig) LockDuration() time.Duration {
	return time.Duration(c.LockDurationMinutes) * time.Minute
}

// RateLimitConfig configures the token buckets guarding sensitive endpoints.
type RateLimitConfig struct {
	Capacity      int `env:"CAPACITY"       envDefault:"10"`
	RefillTokens  int `env:"REFILL_TOKENS"  envDefault:"10"`
	RefillMinutes int `env:"REFILL_MINUTES" envDefault:"1"`
	MaxKeys       int `env:"MAX_KEYS"       envDefault:"10000"`
	IdleMinutes   int `env:"IDLE_MINUTES"   envDefault:"10"`
}

// RefillPeriod returns the refill interval as a [time.Duration].
func (c RateLimitConfig) RefillPeriod() time.Duration {
	return time.Duration(c.RefillMinutes) * time.Minute
}

// IdleTTL returns how long an untouched bucket survives.
func (c RateLimitConfig) IdleTTL() time.Duration {
	return time.Duration(c.IdleMinutes) * time.Minute
}

// SessionConfig configures the per-account session cap and janitor.
type SessionConfig struct {
	MaxPerUser      int           `env:"MAX_PER_USER"     envDefault:"5"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1h"`
}

// AdminIPConfig configures the administrative network allow-list.
type AdminIPConfig struct {
	Enabled      bool     `env:"ENABLED"       envDefault:"false"`
	Allowed      []string `env:"ALLOWED"       envSeparator:","`
	PathPatterns []string `env:"PATH_PATTERNS" envSeparator:"," envDefault:"/admin/**"`
}

// RevocationConfig selects where revoked access tokens are remembered.
type RevocationConfig struct {
	Backend    string `env:"BACKEND"     envDefault:"memory"`
	MaxEntries int    `env:"MAX_ENTRIES" envDefault:"100000"`
}

// # Revocation Backends

const (
	RevocationMemory = "memory"
	RevocationRedis  = "redis"
)

// # Configuration Loading

// Load parses environment variables into a [Config] struct and validates it.
func Load() (*Config, error) {

	// A missing .env file is the normal production case
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env file: %w", err)
	}

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every bounded setting against its documented range.
func (c *Config) Validate() error {
	v := &validate.Validator{}

	v.MinLen("JWT_SECRET", c.JWT.Secret, 32).
		Custom("DATABASE_MAX_CONNS", c.Database.MaxConns < 1, "Must be at least 1").
		Custom("DATABASE_MIN_CONNS", c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns, "Must be between 0 and DATABASE_MAX_CONNS").
		Custom("DATABASE_STATEMENT_TIMEOUT", c.Database.StatementTimeout < time.Millisecond, "Must be at least 1ms").
		Custom("DATABASE_LOCK_TIMEOUT", c.Database.LockTimeout < time.Millisecond, "Must be at least 1ms").
		Custom("REDIS_POOL_SIZE", c.Redis.PoolSize < 1, "Must be at least 1").
		Required("JWT_ISSUER", c.JWT.Issuer).
		Custom("JWT_ACCESS_TTL", c.JWT.AccessTTL <= 0, "Must be positive").
		Custom("JWT_REFRESH_TTL", c.JWT.RefreshTTL <= c.JWT.AccessTTL, "Must be longer than JWT_ACCESS_TTL").
		Range("LOCKOUT_MAX_FAILED_ATTEMPTS", c.Lockout.MaxFailedAttempts, 1, 20).
		Range("LOCKOUT_LOCK_DURATION_MINUTES", c.Lockout.LockDurationMinutes, 1, 1440).
		Custom("RATE_LIMIT_CAPACITY", c.RateLimit.Capacity < 1, "Must be at least 1").
		Custom("RATE_LIMIT_REFILL_TOKENS", c.RateLimit.RefillTokens < 1, "Must be at least 1").
		Custom("RATE_LIMIT_REFILL_MINUTES", c.RateLimit.RefillMinutes < 1, "Must be at least 1").
		Custom("RATE_LIMIT_MAX_KEYS", c.RateLimit.MaxKeys < 1, "Must be at least 1").
		Custom("RATE_LIMIT_IDLE_MINUTES", c.RateLimit.IdleMinutes < c.RateLimit.RefillMinutes, "Must cover at least one refill period").
		Range("SESSION_MAX_PER_USER", c.Session.MaxPerUser, 1, 20).
		Custom("SESSION_JANITOR_INTERVAL", c.Session.JanitorInterval <= 0, "Must be positive").
		OneOf("REVOCATION_BACKEND", c.Revocation.Backend, RevocationMemory, RevocationRedis).
		Custom("REVOCATION_MAX_ENTRIES", c.Revocation.MaxEntries < 1, "Must be at least 1").
		Custom("REDIS_URL", c.Revocation.Backend == RevocationRedis && c.RedisURL == "", "Required when REVOCATION_BACKEND is redis")

	return v.Err()
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
