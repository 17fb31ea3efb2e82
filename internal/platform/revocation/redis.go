// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	redisstore "github.com/taibuivan/gatekeeper/internal/platform/redis"
)

// RedisCache shares the blacklist between API instances.
type RedisCache struct {
	client   *redis.Client
	keyspace redisstore.Keyspace
	now      func() time.Time
}

// NewRedisCache creates a Redis-backed cache writing under keyspace.
func NewRedisCache(client *redis.Client, keyspace redisstore.Keyspace) *RedisCache {
	return &RedisCache{client: client, keyspace: keyspace, now: time.Now}
}

/*
Add stores the digest with a TTL equal to the token's remaining lifetime.

Parameters:
  - context: context.Context
  - tokenHash: string (SHA-256 hex of the access token)
  - expiresAt: time.Time (expiry of the access token)

Returns:
  - error: Redis failures
*/
func (cache *RedisCache) Add(context context.Context, tokenHash string, expiresAt time.Time) error {
	remaining := expiresAt.Sub(cache.now())
	if remaining <= 0 {
		return nil
	}

	// Redis rounds sub-millisecond TTLs down to zero, which means "no expiry"
	remaining = max(remaining, time.Millisecond)

	if err := cache.client.Set(context, cache.key(tokenHash), 1, remaining).Err(); err != nil {
		return fmt.Errorf("redis_revocation_set_failed: %w", err)
	}
	return nil
}

// IsRevoked implements [Cache].
func (cache *RedisCache) IsRevoked(context context.Context, tokenHash string) (bool, error) {
	count, err := cache.client.Exists(context, cache.key(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("redis_revocation_exists_failed: %w", err)
	}
	return count > 0, nil
}

func (cache *RedisCache) key(tokenHash string) string {
	return cache.keyspace.Key(constants.RedisPrefixRevoked, tokenHash)
}
