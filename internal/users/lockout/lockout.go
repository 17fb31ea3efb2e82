// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package lockout implements the brute-force protection state machine.

An account is Active while its failed-attempt counter is below the configured
maximum, and Locked while its lockout deadline is in the future.

# Durability

Every counter write runs in its own unit of work obtained from [Store.Independent].
A failure recorded during sign-in is therefore committed even when the rest of
the request fails, is rolled back, or the client disconnects.
*/
package lockout

import (
	"context"
	"time"
)

// State is the lockout projection of an account.
type State struct {
	FailedAttempts int        `json:"failed_attempts"`
	LockoutUntil   *time.Time `json:"lockout_until,omitempty"`
}

// LockedAt reports whether the state is inside a lockout window at now.
func (state State) LockedAt(now time.Time) bool {
	return state.LockoutUntil != nil && now.Before(*state.LockoutUntil)
}

// IsClear reports whether there is nothing to reset.
func (state State) IsClear() bool {
	return state.FailedAttempts == 0 && state.LockoutUntil == nil
}

// # Storage Contract

// AttemptTx is the row-level view of one account inside an independent unit of work.
type AttemptTx interface {

	/*
		LockState reads the persisted state and holds the row until commit.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - State: Freshest persisted counters
		  - error: apperr.NotFound or database errors
	*/
	LockState(context context.Context, userID string) (State, error)

	/*
		SaveState overwrites both counters.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - state: State

		Returns:
		  - error: Persistence failures
	*/
	SaveState(context context.Context, userID string, state State) error
}

// Store runs lockout updates outside any enclosing transaction.
type Store interface {

	/*
		Independent executes fn in a brand-new unit of work that commits on its own.
		An error from fn rolls the unit back.

		Parameters:
		  - context: context.Context
		  - fn: func(context.Context, AttemptTx) error

		Returns:
		  - error: fn's error or commit failures
	*/
	Independent(context context.Context, fn func(context.Context, AttemptTx) error) error
}
