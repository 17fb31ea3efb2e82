// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session tracks refresh-token sessions and caps how many each account may hold.

A session is created for every issued refresh token and identified by the SHA-256
digest of that token; the raw token never reaches storage.

# Lifecycle

  - Active: not revoked and not expired.
  - Revoked: consumed by a refresh, evicted by the cap, or revoked by the owner.
  - Expired: past its deadline; removed by the janitor.
*/
package session

import (
	"context"
	"time"
)

// # Domain Entities

// Session is one refresh-token grant held by a device.
type Session struct {
	ID          string     `json:"id"           db:"id"`
	UserID      string     `json:"-"            db:"userid"`
	TokenHash   string     `json:"-"            db:"tokenhash"`
	DeviceLabel string     `json:"device_label" db:"devicelabel"`
	IPAddress   string     `json:"ip_address"   db:"ipaddress"`
	UserAgent   string     `json:"user_agent"   db:"useragent"`
	IsRevoked   bool       `json:"-"            db:"isrevoked"`
	ExpiresAt   time.Time  `json:"expires_at"   db:"expiresat"`
	RevokedAt   *time.Time `json:"-"            db:"revokedat"`
	CreatedAt   time.Time  `json:"created_at"   db:"createdat"`

	// Current marks the session that issued the caller's refresh token.
	Current bool `json:"current" db:"-"`
}

// ActiveAt reports whether the session can still be used at now.
func (session *Session) ActiveAt(now time.Time) bool {
	return !session.IsRevoked && now.Before(session.ExpiresAt)
}

// Metadata describes the client that obtained a session.
type Metadata struct {
	UserAgent string
	IPAddress string
}

// # Repository Contract

// Store is the persistence contract for sessions.
//
// "Active" always means not revoked and expiring after the supplied now.
type Store interface {

	// Create persists a new session.
	Create(context context.Context, session *Session) error

	/*
		Consume atomically revokes the active session holding tokenHash and returns it.

		Description: Exactly one caller wins for a given hash; every other concurrent
		or later caller receives apperr.NotFound.

		Parameters:
		  - context: context.Context
		  - tokenHash: string
		  - now: time.Time

		Returns:
		  - *Session: The consumed session, already marked revoked
		  - error: apperr.NotFound or storage failures
	*/
	Consume(context context.Context, tokenHash string, now time.Time) (*Session, error)

	// CountActive returns the number of active sessions owned by userID.
	CountActive(context context.Context, userID string, now time.Time) (int, error)

	// OldestActive returns the active session with the earliest creation time.
	OldestActive(context context.Context, userID string, now time.Time) (*Session, error)

	// ListActive returns the active sessions owned by userID, newest first.
	ListActive(context context.Context, userID string, now time.Time) ([]*Session, error)

	// RevokeByID revokes one active session owned by userID and reports whether a row changed.
	RevokeByID(context context.Context, userID, sessionID string, now time.Time) (bool, error)

	// RevokeAllExcept revokes every active session of userID whose hash differs from keepHash.
	RevokeAllExcept(context context.Context, userID, keepHash string, now time.Time) (int, error)

	// RevokeAll revokes every active session of userID.
	RevokeAll(context context.Context, userID string, now time.Time) (int, error)

	// DeleteExpired removes sessions that expired before the cutoff.
	DeleteExpired(context context.Context, before time.Time) (int64, error)
}
