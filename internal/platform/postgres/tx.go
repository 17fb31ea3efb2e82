// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunInTx executes fn inside a brand-new transaction taken from the pool.
//
// # Isolation
//
// The transaction never joins a caller's transaction: it commits or rolls back
// on its own, so its writes survive whatever happens to the surrounding request.
// fn's error rolls the transaction back and is returned unchanged.
func RunInTx(context context.Context, pool *pgxpool.Pool, fn func(context.Context, pgx.Tx) error) (err error) {
	tx, err := pool.BeginTx(context, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin failed: %w", err)
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(context); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("postgres: rollback failed: %w", rollbackErr))
			}
		}
	}()

	if err = fn(context, tx); err != nil {
		return err
	}

	if err = tx.Commit(context); err != nil {
		return fmt.Errorf("postgres: commit failed: %w", err)
	}

	return nil
}
