// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package revocation

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is a bounded in-process blacklist.
//
// # Eviction
//
// The LRU drops entries after maxTTL or when maxEntries is reached; each entry
// also carries its own expiry, checked on read, so an entry never outlives
// the token it blocks. maxTTL must be at least the access token lifetime.
type MemoryCache struct {
	entries *expirable.LRU[string, time.Time]
	now     func() time.Time
}

// NewMemoryCache creates an in-process cache.
func NewMemoryCache(maxEntries int, maxTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: expirable.NewLRU[string, time.Time](maxEntries, nil, maxTTL),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for expiry checks.
func (cache *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	cache.now = now
	return cache
}

// Add implements [Cache].
func (cache *MemoryCache) Add(_ context.Context, tokenHash string, expiresAt time.Time) error {
	if !expiresAt.After(cache.now()) {
		return nil
	}
	cache.entries.Add(tokenHash, expiresAt)
	return nil
}

// IsRevoked implements [Cache].
func (cache *MemoryCache) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	expiresAt, ok := cache.entries.Get(tokenHash)
	if !ok {
		return false, nil
	}
	if !expiresAt.After(cache.now()) {
		cache.entries.Remove(tokenHash)
		return false, nil
	}
	return true, nil
}

// Len returns the number of entries currently held.
func (cache *MemoryCache) Len() int {
	return cache.entries.Len()
}
