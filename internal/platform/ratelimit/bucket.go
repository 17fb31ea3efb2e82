// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ratelimit implements the token buckets that throttle credential
// endpoints per client.
//
// # Refill Model
//
// Buckets refill in whole intervals: every full refill period elapsed since
// the last refill adds refillTokens, capped at capacity. Refill is computed
// lazily on access; no background goroutine touches a bucket.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Bucket is a fixed-capacity token counter. It is safe for concurrent use.
type Bucket struct {
	mu sync.Mutex

	capacity     int64
	refillTokens int64
	refillPeriod time.Duration

	tokens     int64
	lastRefill time.Time
	now        func() time.Time
}

// Policy describes the shape shared by every bucket of a registry.
type Policy struct {
	Capacity     int64
	RefillTokens int64
	RefillPeriod time.Duration
}

// Validate rejects non-positive settings.
func (policy Policy) Validate() error {
	if policy.Capacity <= 0 || policy.RefillTokens <= 0 || policy.RefillPeriod <= 0 {
		return fmt.Errorf("ratelimit: invalid policy %+v", policy)
	}
	return nil
}

// NewBucket creates a full bucket.
func NewBucket(policy Policy, now func() time.Time) *Bucket {
	if now == nil {
		now = time.Now
	}
	return &Bucket{
		capacity:     policy.Capacity,
		refillTokens: policy.RefillTokens,
		refillPeriod: policy.RefillPeriod,
		tokens:       policy.Capacity,
		lastRefill:   now(),
		now:          now,
	}
}

// TryConsume takes one token if available.
func (bucket *Bucket) TryConsume() bool {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.refill()
	if bucket.tokens <= 0 {
		return false
	}
	bucket.tokens--
	return true
}

// Available returns the tokens that could be consumed right now.
func (bucket *Bucket) Available() int64 {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.refill()
	return bucket.tokens
}

// Capacity returns the maximum number of tokens the bucket can hold.
func (bucket *Bucket) Capacity() int64 {
	return bucket.capacity
}

// RetryAfter returns the wait until the next refill adds tokens.
// It is zero while tokens remain.
func (bucket *Bucket) RetryAfter() time.Duration {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.refill()
	if bucket.tokens > 0 {
		return 0
	}
	return bucket.lastRefill.Add(bucket.refillPeriod).Sub(bucket.now())
}

// refill must be called with mu held.
func (bucket *Bucket) refill() {
	elapsed := bucket.now().Sub(bucket.lastRefill)
	if elapsed < bucket.refillPeriod {
		return
	}

	periods := int64(elapsed / bucket.refillPeriod)
	bucket.lastRefill = bucket.lastRefill.Add(time.Duration(periods) * bucket.refillPeriod)

	// Guard the multiplication against overflow after very long idle periods.
	if periods >= bucket.capacity {
		bucket.tokens = bucket.capacity
		return
	}
	bucket.tokens = min(bucket.capacity, bucket.tokens+periods*bucket.refillTokens)
}
