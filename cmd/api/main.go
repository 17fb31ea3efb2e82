// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Gatekeeper HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Error reporting and tracing.
//  4. Connect to PostgreSQL (pgxpool) and Redis when configured.
//  5. Run database migrations (idempotent).
//  6. Wire the security components and HTTP handlers.
//  7. Start the session janitor and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/taibuivan/gatekeeper/internal/api"
	"github.com/taibuivan/gatekeeper/internal/platform/cidr"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/events"
	"github.com/taibuivan/gatekeeper/internal/platform/migration"
	pgstore "github.com/taibuivan/gatekeeper/internal/platform/postgres"
	"github.com/taibuivan/gatekeeper/internal/platform/ratelimit"
	redisstore "github.com/taibuivan/gatekeeper/internal/platform/redis"
	"github.com/taibuivan/gatekeeper/internal/platform/revocation"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/platform/telemetry"
	"github.com/taibuivan/gatekeeper/internal/users/account"
	"github.com/taibuivan/gatekeeper/internal/users/admin"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
	"github.com/taibuivan/gatekeeper/internal/users/session"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("lockout_enabled", cfg.Lockout.Enabled),
		slog.Bool("admin_ip_enabled", cfg.AdminIP.Enabled),
		slog.String("revocation_backend", cfg.Revocation.Backend),
	)

	// Root context lives until SIGINT/SIGTERM.
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup gets a 30s deadline so misconfiguration fails fast.
	startupCtx, startupCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. Error Reporting & Tracing ──────────────────────────────────────
	if cfg.SentryDSN != "" {
		must(log, sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     constants.AppVersion,
		}), "initialize sentry")
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing, tracing, err := telemetry.Init(startupCtx, constants.AppName, constants.AppVersion, cfg.OTLPEndpoint)
	must(log, err, "initialize tracing")
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("tracing_shutdown_failed", slog.Any("error", err))
		}
	}()

	// ── 4. PostgreSQL & Redis ─────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, cfg.Database, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, cfg.Redis, log)
		must(log, err, "connect to redis")
		defer func() {
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis_close_failed", slog.Any("error", cerr))
			}
		}()
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security Components ────────────────────────────────────────────
	codec, err := sec.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	must(log, err, "initialize token codec")

	var revoked revocation.Cache
	switch cfg.Revocation.Backend {
	case config.RevocationRedis:
		revoked = revocation.NewRedisCache(rdb, redisstore.Keyspace(cfg.Redis.KeyPrefix))
	default:
		revoked = revocation.NewMemoryCache(cfg.Revocation.MaxEntries, cfg.JWT.AccessTTL)
	}

	var publisher events.Publisher = events.NewLogPublisher(log)
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL, log)
		must(log, err, "connect to nats")
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	buckets, err := ratelimit.NewRegistry(ratelimit.Policy{
		Capacity:     int64(cfg.RateLimit.Capacity),
		RefillTokens: int64(cfg.RateLimit.RefillTokens),
		RefillPeriod: cfg.RateLimit.RefillPeriod(),
	}, cfg.RateLimit.MaxKeys, cfg.RateLimit.IdleTTL(), nil)
	must(log, err, "initialize rate limiter")

	adminNetworks := cidr.NewMatcher(cfg.AdminIP.Allowed, log)
	if cfg.AdminIP.Enabled && adminNetworks.Len() == 0 {
		log.Warn("admin_ip_allowlist_empty", slog.String("effect", "every admin request is denied"))
	}

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	userRepository := auth.NewUserRepository(pool)
	sessions := session.NewRegistry(session.NewPostgresStore(pool), cfg.Session)
	guard := lockout.NewGuard(lockout.NewPostgresStore(pool), publisher, cfg.Lockout)

	authService := auth.NewService(userRepository, sessions, guard, codec, revoked)
	accountService := account.NewService(userRepository, sessions)
	adminService := admin.NewService(userRepository, guard)

	// ── 8. Health Handlers ────────────────────────────────────────────────
	healthDeps := api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error { return pgstore.Ping(ctx, pool) },
	}
	if rdb != nil {
		healthDeps.CheckCache = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }
	}
	liveness, readiness := api.NewHealthHandlers(healthDeps, log)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	server := api.NewServer(rootCtx, cfg, log, api.Guards{
		Verifier:      authService,
		Buckets:       buckets,
		AdminNetworks: adminNetworks,
		Tracing:       tracing,
	}, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService),
		Account:   account.NewHandler(accountService),
		Admin:     admin.NewHandler(adminService),
	})

	go sessions.RunJanitor(rootCtx, cfg.Session.JanitorInterval, log)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_signal_received")
	case err := <-serverErr:
		log.Error("server_startup_failed", slog.Any("error", err))
	}
	stop()

	// Give in-flight requests enough time to complete.
	log.Info("server_shutting_down", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_failed", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", constants.AppName))
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned
// and handled explicitly.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
