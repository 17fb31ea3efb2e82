// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/events"
	"github.com/taibuivan/gatekeeper/internal/platform/metrics"
)

// writeTimeout bounds an independent write once it is detached from the request.
const writeTimeout = 5 * time.Second

// Guard applies the lockout policy to sign-in attempts.
//
// # Disabled Mode
//
// When the policy is disabled every method is a no-op: nothing is read,
// written, or rejected.
type Guard struct {
	store     Store
	publisher events.Publisher
	policy    config.LockoutConfig
	now       func() time.Time
}

// NewGuard constructs a new [Guard].
func NewGuard(store Store, publisher events.Publisher, policy config.LockoutConfig) *Guard {
	return &Guard{
		store:     store,
		publisher: publisher,
		policy:    policy,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (guard *Guard) WithClock(now func() time.Time) *Guard {
	guard.now = now
	return guard
}

// Enabled reports whether the guard enforces anything.
func (guard *Guard) Enabled() bool {
	return guard.policy.Enabled
}

/*
CheckLocked rejects accounts inside their lockout window.

Description: A lockout deadline in the future returns [apperr.Locked]; the remaining
time is logged, never returned. A deadline in the past is cleared, together with the
counter, before the attempt proceeds.

Parameters:
  - ctx: context.Context
  - userID: string
  - state: State (as loaded with the account)

Returns:
  - error: apperr.Locked, or storage failures while clearing an expired window
*/
func (guard *Guard) CheckLocked(ctx context.Context, userID string, state State) error {
	if !guard.policy.Enabled || state.LockoutUntil == nil {
		return nil
	}

	now := guard.now()
	if state.LockedAt(now) {
		ctxutil.GetLogger(ctx).WarnContext(ctx, "signin_rejected_account_locked",
			slog.String("user_id", userID),
			slog.Duration("remaining", state.LockoutUntil.Sub(now)),
		)
		return apperr.Locked()
	}

	// The window elapsed: reset against the persisted row, which may have moved on.
	stillLocked := false
	err := guard.independent(ctx, func(txCtx context.Context, tx AttemptTx) error {
		fresh, err := tx.LockState(txCtx, userID)
		if err != nil {
			return err
		}
		if fresh.LockedAt(now) {
			stillLocked = true
			return nil
		}
		if fresh.IsClear() {
			return nil
		}
		return tx.SaveState(txCtx, userID, State{})
	})
	if err != nil {
		return fmt.Errorf("lockout_clear_expired_failed: %w", err)
	}
	if stillLocked {
		return apperr.Locked()
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "account_lockout_expired", slog.String("user_id", userID))
	return nil
}

/*
RecordFailure counts one failed attempt against the freshest persisted counter.

Description: Reaching the configured maximum opens a lockout window, publishes
an account-locked event and bumps the lockout metric.

Parameters:
  - ctx: context.Context
  - userID: string

Returns:
  - State: The state after the failure was recorded
  - error: Storage failures
*/
func (guard *Guard) RecordFailure(ctx context.Context, userID string) (State, error) {
	if !guard.policy.Enabled {
		return State{}, nil
	}

	var (
		recorded State
		locked   bool
	)

	now := guard.now()
	err := guard.independent(ctx, func(txCtx context.Context, tx AttemptTx) error {
		state, err := tx.LockState(txCtx, userID)
		if err != nil {
			return err
		}

		state.FailedAttempts++
		if state.FailedAttempts >= guard.policy.MaxFailedAttempts && !state.LockedAt(now) {
			until := now.Add(guard.policy.LockDuration())
			state.LockoutUntil = &until
			locked = true
		}

		recorded = state
		return tx.SaveState(txCtx, userID, state)
	})
	if err != nil {
		return State{}, fmt.Errorf("lockout_record_failure_failed: %w", err)
	}

	if locked {
		guard.announceLock(ctx, userID, recorded, now)
	}

	return recorded, nil
}

/*
RecordSuccess clears the counters after a successful authentication.

Description: The persisted row is read under lock, so a failure committed by a
concurrent request after the account was loaded is cleared as well.

Parameters:
  - ctx: context.Context
  - userID: string

Returns:
  - error: Storage failures
*/
func (guard *Guard) RecordSuccess(ctx context.Context, userID string) error {
	if !guard.policy.Enabled {
		return nil
	}

	err := guard.independent(ctx, func(txCtx context.Context, tx AttemptTx) error {
		fresh, err := tx.LockState(txCtx, userID)
		if err != nil {
			return err
		}
		if fresh.IsClear() {
			return nil
		}
		return tx.SaveState(txCtx, userID, State{})
	})
	if err != nil {
		return fmt.Errorf("lockout_record_success_failed: %w", err)
	}
	return nil
}

/*
ForceUnlock is the administrative override that clears both counters.

Parameters:
  - ctx: context.Context
  - userID: string

Returns:
  - error: apperr.NotFound for unknown accounts, or storage failures
*/
func (guard *Guard) ForceUnlock(ctx context.Context, userID string) error {
	if !guard.policy.Enabled {
		return nil
	}

	err := guard.independent(ctx, func(txCtx context.Context, tx AttemptTx) error {
		if _, err := tx.LockState(txCtx, userID); err != nil {
			return err
		}
		return tx.SaveState(txCtx, userID, State{})
	})
	if err != nil {
		return fmt.Errorf("lockout_force_unlock_failed: %w", err)
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "account_force_unlocked", slog.String("user_id", userID))
	return nil
}

// RemainingAttempts returns the failures left before a lockout, never negative.
func (guard *Guard) RemainingAttempts(state State) int {
	return max(0, guard.policy.MaxFailedAttempts-state.FailedAttempts)
}

// IsLocked reports whether state is inside a lockout window now.
func (guard *Guard) IsLocked(state State) bool {
	return guard.policy.Enabled && state.LockedAt(guard.now())
}

// independent detaches the write from request cancellation before handing it to the store.
func (guard *Guard) independent(parent context.Context, fn func(context.Context, AttemptTx) error) error {
	detached, cancel := context.WithTimeout(context.WithoutCancel(parent), writeTimeout)
	defer cancel()
	return guard.store.Independent(detached, fn)
}

func (guard *Guard) announceLock(context context.Context, userID string, state State, now time.Time) {
	metrics.Lockouts.Inc()

	logger := ctxutil.GetLogger(context)
	logger.WarnContext(context, "account_locked",
		slog.String("user_id", userID),
		slog.Int("failed_attempts", state.FailedAttempts),
		slog.Time("lockout_until", *state.LockoutUntil),
	)

	if guard.publisher == nil {
		return
	}

	event := events.AccountLocked{
		UserID:         userID,
		FailedAttempts: state.FailedAttempts,
		LockedUntil:    *state.LockoutUntil,
		OccurredAt:     now,
	}
	if err := guard.publisher.Publish(context, constants.SubjectAccountLocked, event); err != nil {
		logger.ErrorContext(context, "account_locked_publish_failed", slog.Any("error", err))
	}
}
