// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/gatekeeper/internal/platform/database/schema"
	"github.com/taibuivan/gatekeeper/internal/platform/dberr"
	"github.com/taibuivan/gatekeeper/internal/platform/postgres"
)

// # Lockout Repository

// PostgresStore implements [Store] against users.account.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the lockout [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Independent opens a dedicated transaction for fn.
func (repository *PostgresStore) Independent(ctx context.Context, fn func(context.Context, AttemptTx) error) error {
	return postgres.RunInTx(ctx, repository.pool, func(txCtx context.Context, tx pgx.Tx) error {
		return fn(txCtx, &postgresAttemptTx{tx: tx})
	})
}

type postgresAttemptTx struct {
	tx pgx.Tx
}

/*
LockState reads the counters with SELECT ... FOR UPDATE.

Description: Concurrent failures for the same account serialize on the row lock,
so every increment starts from the committed value of the previous one.
*/
func (attempt *postgresAttemptTx) LockState(context context.Context, userID string) (State, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM %s
		WHERE %s = $1
		FOR UPDATE`,
		schema.UserAccount.FailedAttempts, schema.UserAccount.LockoutUntil,
		schema.UserAccount.Table, schema.UserAccount.ID,
	)

	var state State
	err := attempt.tx.QueryRow(context, query, userID).Scan(&state.FailedAttempts, &state.LockoutUntil)
	if err != nil {
		return State{}, fmt.Errorf("postgres_lockout_lock_state_failed: %w", dberr.Wrap(err, "Account"))
	}

	return state, nil
}

func (attempt *postgresAttemptTx) SaveState(context context.Context, userID string, state State) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, %s = $3, %s = $4
		WHERE %s = $1`,
		schema.UserAccount.Table,
		schema.UserAccount.FailedAttempts, schema.UserAccount.LockoutUntil, schema.UserAccount.UpdatedAt,
		schema.UserAccount.ID,
	)

	tag, err := attempt.tx.Exec(context, query, userID, state.FailedAttempts, state.LockoutUntil, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_lockout_save_state_failed: %w", dberr.Wrap(err, "Account"))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres_lockout_save_state_failed: %w", dberr.ErrNotFound)
	}

	return nil
}
