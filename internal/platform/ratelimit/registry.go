// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry keeps one bucket per client key in a bounded, idle-expiring cache.
//
// # Memory Bound
//
// At most maxKeys buckets are held; the least recently used key is dropped
// first, and a key untouched for idleTTL disappears. A dropped key starts
// again with a full bucket.
type Registry struct {
	policy  Policy
	buckets *expirable.LRU[string, *Bucket]
	now     func() time.Time

	// create serialises get-or-create only; consumption locks the bucket itself.
	create sync.Mutex
}

// NewRegistry creates a registry. now may be nil to use the wall clock.
func NewRegistry(policy Policy, maxKeys int, idleTTL time.Duration, now func() time.Time) (*Registry, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		policy:  policy,
		buckets: expirable.NewLRU[string, *Bucket](maxKeys, nil, idleTTL),
		now:     now,
	}, nil
}

// TryConsume takes one token from the bucket of key.
func (registry *Registry) TryConsume(key string) bool {
	return registry.bucket(key).TryConsume()
}

// Available returns the tokens left for key without creating a bucket.
func (registry *Registry) Available(key string) int64 {
	if bucket, ok := registry.buckets.Peek(key); ok {
		return bucket.Available()
	}
	return registry.policy.Capacity
}

// RetryAfter returns how long key must wait before its next token.
func (registry *Registry) RetryAfter(key string) time.Duration {
	if bucket, ok := registry.buckets.Peek(key); ok {
		return bucket.RetryAfter()
	}
	return 0
}

// Capacity returns the per-key bucket capacity.
func (registry *Registry) Capacity() int64 {
	return registry.policy.Capacity
}

// Len returns the number of tracked keys.
func (registry *Registry) Len() int {
	return registry.buckets.Len()
}

func (registry *Registry) bucket(key string) *Bucket {
	registry.create.Lock()
	defer registry.create.Unlock()

	bucket, ok := registry.buckets.Get(key)
	if !ok {
		bucket = NewBucket(registry.policy, registry.now)
	}

	// Re-adding refreshes the idle deadline.
	registry.buckets.Add(key, bucket)
	return bucket
}
