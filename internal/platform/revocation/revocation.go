// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package revocation remembers access tokens that were signed out before
// their natural expiry.
//
// # Lifetime
//
// Entries are keyed by the SHA-256 digest of the token and live exactly as
// long as the token they block. Nothing is ever cleaned up explicitly:
// expiry does the work, in memory or in Redis.
package revocation

import (
	"context"
	"time"
)

// Cache is the blacklist consulted on every authenticated request.
type Cache interface {
	// Add blocks tokenHash until expiresAt. Already-expired entries are ignored.
	Add(context context.Context, tokenHash string, expiresAt time.Time) error

	// IsRevoked reports whether tokenHash is currently blocked.
	IsRevoked(context context.Context, tokenHash string) (bool, error)
}
