// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis connects the shared revocation list.

With more than one API instance, revoked access tokens live in Redis so a
sign-out on one node is honoured by every node. Entries expire with the token
they block, so Redis TTLs do all the eviction.

Every key is written through a [Keyspace], which lets several deployments share
one Redis database without colliding.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second
)

// # Key Namespacing

// Keyspace is the deployment prefix prepended to every key.
type Keyspace string

// Key joins the keyspace with the given segments, e.g. Key("auth:revoked:", hash).
func (keyspace Keyspace) Key(segments ...string) string {
	return string(keyspace) + strings.Join(segments, "")
}

// # Client Construction

/*
Options parses redisURL and applies the configured pool.

Parameters:
  - redisURL: string
  - settings: config.RedisConfig

Returns:
  - *redis.Options: Options ready for [redis.NewClient]
  - error: Malformed URL
*/
func Options(redisURL string, settings config.RedisConfig) (*redis.Options, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.ClientName = constants.AppName
	options.PoolSize = settings.PoolSize
	options.MinIdleConns = min(2, settings.PoolSize)
	options.MaxIdleConns = max(options.MinIdleConns, settings.PoolSize/2)

	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	return options, nil
}

// NewClient connects to Redis and pings it once before returning.
func NewClient(context stdctx.Context, redisURL string, settings config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	options, err := Options(redisURL, settings)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)

	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected",
		slog.String("addr", options.Addr),
		slog.Int("pool_size", options.PoolSize),
		slog.String("key_prefix", settings.KeyPrefix),
	)

	return client, nil
}

// Ping verifies that the Redis client is healthy.
func Ping(context stdctx.Context, client *redis.Client) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	return nil
}
