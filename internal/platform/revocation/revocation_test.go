// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package revocation_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/redis"
	"github.com/taibuivan/gatekeeper/internal/platform/revocation"
	"github.com/taibuivan/gatekeeper/internal/testkit"
)

/*
TestMemoryCache_ExpiresWithToken verifies that an entry never outlives its token.
*/
func TestMemoryCache_ExpiresWithToken(t *testing.T) {
	ctx := context.Background()
	clock := testkit.NewClock()
	cache := revocation.NewMemoryCache(100, time.Hour).WithClock(clock.Now)

	require.NoError(t, cache.Add(ctx, "hash-a", clock.Now().Add(10*time.Minute)))

	revoked, err := cache.IsRevoked(ctx, "hash-a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = cache.IsRevoked(ctx, "hash-b")
	assert.False(t, revoked)

	clock.Advance(10 * time.Minute)
	revoked, _ = cache.IsRevoked(ctx, "hash-a")
	assert.False(t, revoked)
	assert.Equal(t, 0, cache.Len())
}

/*
TestMemoryCache_IgnoresExpiredTokens checks that dead tokens are not stored.
*/
func TestMemoryCache_IgnoresExpiredTokens(t *testing.T) {
	ctx := context.Background()
	clock := testkit.NewClock()
	cache := revocation.NewMemoryCache(100, time.Hour).WithClock(clock.Now)

	require.NoError(t, cache.Add(ctx, "hash-a", clock.Now().Add(-time.Second)))
	assert.Equal(t, 0, cache.Len())
}

/*
TestMemoryCache_Bounded verifies the entry bound.
*/
func TestMemoryCache_Bounded(t *testing.T) {
	ctx := context.Background()
	cache := revocation.NewMemoryCache(2, time.Hour)
	expiry := time.Now().Add(time.Minute)

	for _, hash := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Add(ctx, hash, expiry))
	}
	assert.Equal(t, 2, cache.Len())
}

/*
TestRedisCache runs against a live Redis when REDIS_TEST_URL is set.
*/
func TestRedisCache(t *testing.T) {
	redisURL := os.Getenv("REDIS_TEST_URL")
	if redisURL == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	ctx := context.Background()
	client, err := redis.NewClient(ctx, redisURL, config.RedisConfig{PoolSize: 2, KeyPrefix: "gatekeeper-test:"}, slog.Default())
	require.NoError(t, err)
	defer client.Close()

	cache := revocation.NewRedisCache(client, redis.Keyspace("gatekeeper-test:"))
	hash := "test-" + time.Now().Format(time.RFC3339Nano)

	require.NoError(t, cache.Add(ctx, hash, time.Now().Add(2*time.Second)))
	revoked, err := cache.IsRevoked(ctx, hash)
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.Eventually(t, func() bool {
		revoked, err := cache.IsRevoked(ctx, hash)
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond)
}
