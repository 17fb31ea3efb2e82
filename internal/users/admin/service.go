// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package admin exposes the operator surface of the lockout policy.

Operators can inspect an account's failed-attempt state and lift a lockout
before its window elapses. The same service backs the HTTP endpoints and
the authctl command line tool.
*/
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
	"github.com/taibuivan/gatekeeper/pkg/normalize"
)

// AccountFinder is the read side of the account store used by operators.
type AccountFinder interface {
	FindByID(context context.Context, id string) (*auth.User, error)
	FindByEmail(context context.Context, email string) (*auth.User, error)
}

// LockoutStatus is the operator view of an account's lockout state.
type LockoutStatus struct {
	UserID            string     `json:"user_id"`
	Email             string     `json:"email"`
	FailedAttempts    int        `json:"failed_attempts"`
	LockoutUntil      *time.Time `json:"lockout_until"`
	Locked            bool       `json:"locked"`
	RemainingAttempts int        `json:"remaining_attempts"`
}

// Service implements the lockout administration use cases.
type Service struct {
	accounts AccountFinder
	guard    *lockout.Guard
}

// NewService constructs a new [Service].
func NewService(accounts AccountFinder, guard *lockout.Guard) *Service {
	return &Service{accounts: accounts, guard: guard}
}

/*
LockoutStatus reports the failed-attempt counter and lock window of an account.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *LockoutStatus: Current state
  - error: apperr.NotFound or storage failures
*/
func (service *Service) LockoutStatus(context context.Context, userID string) (*LockoutStatus, error) {
	user, err := service.accounts.FindByID(context, userID)
	if err != nil {
		return nil, fmt.Errorf("admin_service_lockout_lookup_failed: %w", err)
	}
	return service.status(user), nil
}

/*
Unlock lifts the lockout of an account and resets its counter.

Parameters:
  - context: context.Context
  - actorID: string (the operator, recorded in the audit log)
  - userID: string

Returns:
  - *LockoutStatus: State after the unlock
  - error: apperr.NotFound or storage failures
*/
func (service *Service) Unlock(context context.Context, actorID, userID string) (*LockoutStatus, error) {
	if err := service.guard.ForceUnlock(context, userID); err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).WarnContext(context, "admin_account_unlocked",
		slog.String("user_id", userID),
		slog.String("actor_id", actorID),
	)

	return service.LockoutStatus(context, userID)
}

// UnlockByEmail resolves an account by email before unlocking it.
func (service *Service) UnlockByEmail(context context.Context, actorID, email string) (*LockoutStatus, error) {
	user, err := service.accounts.FindByEmail(context, normalize.Email(email))
	if err != nil {
		return nil, fmt.Errorf("admin_service_unlock_lookup_failed: %w", err)
	}
	return service.Unlock(context, actorID, user.ID)
}

func (service *Service) status(user *auth.User) *LockoutStatus {
	state := user.LockoutState()
	return &LockoutStatus{
		UserID:            user.ID,
		Email:             user.Email,
		FailedAttempts:    state.FailedAttempts,
		LockoutUntil:      state.LockoutUntil,
		Locked:            service.guard.IsLocked(state),
		RemainingAttempts: service.guard.RemainingAttempts(state),
	}
}
