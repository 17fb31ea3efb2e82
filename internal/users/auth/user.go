// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the authentication coordinator.

It orchestrates sign-up, sign-in, token refresh, sign-out and password changes
across the lockout guard, the token codec, the session registry and the
revocation cache.

# Architecture

This layer is the "Truth" of the system for identity. Storage and transport
details live behind the [UserRepository] contract and the HTTP [Handler].
*/
package auth

import (
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
)

// # Domain Entities

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// User represents a registered principal.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	// PasswordHash is nil for accounts that cannot sign in with a password.
	PasswordHash *string        `json:"-"`
	Roles        []sec.UserRole `json:"roles"`
	Status       Status         `json:"status"`
	Nickname     string         `json:"nickname"`

	FailedAttempts int        `json:"-"`
	LockoutUntil   *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the account may authenticate.
func (user *User) IsActive() bool {
	return user.Status == StatusActive
}

// LockoutState projects the brute-force counters of the account.
func (user *User) LockoutState() lockout.State {
	return lockout.State{
		FailedAttempts: user.FailedAttempts,
		LockoutUntil:   user.LockoutUntil,
	}
}

// RoleStrings returns the roles in their claim representation.
func (user *User) RoleStrings() []string {
	return sec.RoleStrings(user.Roles)
}

// # Field Identifiers

// Field names used in validation errors and request bodies.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldNickname        = "nickname"
	FieldRefreshToken    = "refresh_token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
)
