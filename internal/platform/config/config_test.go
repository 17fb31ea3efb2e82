// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

/*
TestLoad_Defaults verifies that every security setting falls back to its documented default.
*/
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatekeeper")
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.Lockout.Enabled)
	assert.Equal(t, 5, cfg.Lockout.MaxFailedAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.LockDuration())

	assert.Equal(t, 10, cfg.RateLimit.Capacity)
	assert.Equal(t, 10, cfg.RateLimit.RefillTokens)
	assert.Equal(t, time.Minute, cfg.RateLimit.RefillPeriod())

	assert.Equal(t, 5, cfg.Session.MaxPerUser)

	assert.False(t, cfg.AdminIP.Enabled)
	assert.Empty(t, cfg.AdminIP.Allowed)
	assert.Equal(t, []string{"/admin/**"}, cfg.AdminIP.PathPatterns)

	assert.Equal(t, config.RevocationMemory, cfg.Revocation.Backend)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, "gatekeeper:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
}

/*
TestLoad_ListParsing verifies comma separated allow-lists.
*/
func TestLoad_ListParsing(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatekeeper")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ADMIN_IP_ENABLED", "true")
	t.Setenv("ADMIN_IP_ALLOWED", "10.0.0.0/8,192.168.1.7")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.AdminIP.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.7"}, cfg.AdminIP.Allowed)
}

/*
TestValidate_Ranges checks the bounded settings.
*/
func TestValidate_Ranges(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Database:   config.DatabaseConfig{MaxConns: 10, MinConns: 2, StatementTimeout: 5 * time.Second, LockTimeout: 3 * time.Second},
			Redis:      config.RedisConfig{PoolSize: 10, KeyPrefix: "gatekeeper:"},
			JWT:        config.JWTConfig{Secret: testSecret, Issuer: "test", AccessTTL: time.Minute, RefreshTTL: time.Hour},
			Lockout:    config.LockoutConfig{Enabled: true, MaxFailedAttempts: 5, LockDurationMinutes: 15},
			RateLimit:  config.RateLimitConfig{Capacity: 10, RefillTokens: 10, RefillMinutes: 1, MaxKeys: 100, IdleMinutes: 10},
			Session:    config.SessionConfig{MaxPerUser: 5, JanitorInterval: time.Hour},
			Revocation: config.RevocationConfig{Backend: config.RevocationMemory, MaxEntries: 10},
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"attempts_too_low", func(c *config.Config) { c.Lockout.MaxFailedAttempts = 0 }, "LOCKOUT_MAX_FAILED_ATTEMPTS"},
		{"attempts_too_high", func(c *config.Config) { c.Lockout.MaxFailedAttempts = 21 }, "LOCKOUT_MAX_FAILED_ATTEMPTS"},
		{"lock_too_long", func(c *config.Config) { c.Lockout.LockDurationMinutes = 1441 }, "LOCKOUT_LOCK_DURATION_MINUTES"},
		{"sessions_too_high", func(c *config.Config) { c.Session.MaxPerUser = 21 }, "SESSION_MAX_PER_USER"},
		{"janitor_disabled", func(c *config.Config) { c.Session.JanitorInterval = 0 }, "SESSION_JANITOR_INTERVAL"},
		{"pool_empty", func(c *config.Config) { c.Database.MaxConns = 0 }, "DATABASE_MAX_CONNS"},
		{"pool_min_above_max", func(c *config.Config) { c.Database.MinConns = 11 }, "DATABASE_MIN_CONNS"},
		{"no_statement_timeout", func(c *config.Config) { c.Database.StatementTimeout = 0 }, "DATABASE_STATEMENT_TIMEOUT"},
		{"redis_pool_empty", func(c *config.Config) { c.Redis.PoolSize = 0 }, "REDIS_POOL_SIZE"},
		{"short_secret", func(c *config.Config) { c.JWT.Secret = "short" }, "JWT_SECRET"},
		{"unknown_backend", func(c *config.Config) { c.Revocation.Backend = "memcached" }, "REVOCATION_BACKEND"},
		{"redis_without_url", func(c *config.Config) { c.Revocation.Backend = config.RevocationRedis }, "REDIS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			ae := apperr.As(err)
			require.NotNil(t, ae)
			require.NotEmpty(t, ae.Details)
			assert.Equal(t, tt.field, ae.Details[0].Field)
		})
	}
}
