// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package postgres provides the PostgreSQL connection pool and the independent
// transaction helper used by the account, session and lockout stores.
//
// # Session Settings
//
// Every physical connection carries a statement timeout and a lock timeout from
// [config.DatabaseConfig]. Lockout updates hold a row lock on the account, so
// lock_timeout caps how long a concurrent sign-in for the same account waits.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
)

const (
	maxConnLifetime   = 60 * time.Minute
	maxConnIdleTime   = 10 * time.Minute
	healthCheckPeriod = 1 * time.Minute
	connectTimeout    = 5 * time.Second
	pingTimeout       = 2 * time.Second
)

/*
ParseConfig builds the pool configuration for dsn without connecting.

Parameters:
  - dsn: string (libpq connection string or postgres:// URL)
  - settings: config.DatabaseConfig

Returns:
  - *pgxpool.Config: Sized pool with per-session runtime parameters
  - error: Malformed DSN
*/
func ParseConfig(dsn string, settings config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid DSN: %w", err)
	}

	poolConfig.MaxConns = settings.MaxConns
	poolConfig.MinConns = settings.MinConns
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = healthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	// Runtime parameters travel in the startup packet of every connection.
	runtime := poolConfig.ConnConfig.RuntimeParams
	runtime["application_name"] = constants.AppName
	runtime["statement_timeout"] = milliseconds(settings.StatementTimeout)
	runtime["lock_timeout"] = milliseconds(settings.LockTimeout)

	return poolConfig, nil
}

/*
NewPool creates the pool and verifies the database is reachable.

Parameters:
  - ctx: context.Context (bounds the initial connection attempt)
  - dsn: string
  - settings: config.DatabaseConfig
  - logger: *slog.Logger

Returns:
  - *pgxpool.Pool: Connected pool
  - error: Configuration or connectivity failures
*/
func NewPool(ctx context.Context, dsn string, settings config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := ParseConfig(dsn, settings)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	if err := Ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres_pool_connected",
		slog.String("host", poolConfig.ConnConfig.Host),
		slog.Int("max_conns", int(poolConfig.MaxConns)),
		slog.Duration("statement_timeout", settings.StatementTimeout),
		slog.Duration("lock_timeout", settings.LockTimeout),
	)

	return pool, nil
}

// Ping verifies that the PostgreSQL connection pool is healthy.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}

	return nil
}

// milliseconds renders a duration in the unit PostgreSQL assumes for timeout settings.
func milliseconds(duration time.Duration) string {
	return strconv.FormatInt(duration.Milliseconds(), 10)
}
