// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/database/schema"
	"github.com/taibuivan/gatekeeper/internal/platform/dberr"
)

// # Session Repository

// PostgresStore implements [Store] against users.session.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the session [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// sessionColumns lists every column in the order scany maps them onto [Session].
var sessionColumns = strings.Join(schema.UserSession.Columns(), ", ")

// activeFilter restricts a statement to live sessions of user $1 at instant $2.
var activeFilter = fmt.Sprintf("%s = $1 AND %s = FALSE AND %s > $2",
	schema.UserSession.UserID, schema.UserSession.IsRevoked, schema.UserSession.ExpiresAt)

func (repository *PostgresStore) Create(context context.Context, session *Session) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		schema.UserSession.Table,
		schema.UserSession.ID, schema.UserSession.UserID, schema.UserSession.TokenHash,
		schema.UserSession.DeviceLabel, schema.UserSession.IPAddress, schema.UserSession.UserAgent,
		schema.UserSession.ExpiresAt, schema.UserSession.CreatedAt,
	)

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.DeviceLabel,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", dberr.Wrap(err, "Session"))
	}

	return nil
}

/*
Consume flips the revoked flag with a single conditional UPDATE ... RETURNING.

Description: The WHERE clause only matches a row that is still active, so of two
concurrent refreshes presenting the same token exactly one receives the row.
*/
func (repository *PostgresStore) Consume(context context.Context, tokenHash string, now time.Time) (*Session, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = TRUE, %s = $2
		WHERE %s = $1 AND %s = FALSE AND %s > $2
		RETURNING %s`,
		schema.UserSession.Table,
		schema.UserSession.IsRevoked, schema.UserSession.RevokedAt,
		schema.UserSession.TokenHash, schema.UserSession.IsRevoked, schema.UserSession.ExpiresAt,
		sessionColumns,
	)

	session := &Session{}
	if err := pgxscan.Get(context, repository.pool, session, query, tokenHash, now); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_consume_failed: %w", dberr.Wrap(err, "Session"))
	}

	return session, nil
}

func (repository *PostgresStore) CountActive(context context.Context, userID string, now time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, schema.UserSession.Table, activeFilter)

	var count int
	if err := repository.pool.QueryRow(context, query, userID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres_session_repo_count_active_failed: %w", err)
	}

	return count, nil
}

func (repository *PostgresStore) OldestActive(context context.Context, userID string, now time.Time) (*Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY %s ASC, %s ASC
		LIMIT 1`,
		sessionColumns, schema.UserSession.Table, activeFilter,
		schema.UserSession.CreatedAt, schema.UserSession.ID,
	)

	session := &Session{}
	if err := pgxscan.Get(context, repository.pool, session, query, userID, now); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_oldest_active_failed: %w", err)
	}

	return session, nil
}

func (repository *PostgresStore) ListActive(context context.Context, userID string, now time.Time) ([]*Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY %s DESC, %s DESC`,
		sessionColumns, schema.UserSession.Table, activeFilter,
		schema.UserSession.CreatedAt, schema.UserSession.ID,
	)

	sessions := []*Session{}
	if err := pgxscan.Select(context, repository.pool, &sessions, query, userID, now); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_active_failed: %w", err)
	}

	return sessions, nil
}

func (repository *PostgresStore) RevokeByID(context context.Context, userID, sessionID string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = TRUE, %s = $2
		WHERE %s AND %s = $3`,
		schema.UserSession.Table,
		schema.UserSession.IsRevoked, schema.UserSession.RevokedAt,
		activeFilter, schema.UserSession.ID,
	)

	tag, err := repository.pool.Exec(context, query, userID, now, sessionID)
	if err != nil {
		return false, fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (repository *PostgresStore) RevokeAllExcept(context context.Context, userID, keepHash string, now time.Time) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = TRUE, %s = $2
		WHERE %s AND %s <> $3`,
		schema.UserSession.Table,
		schema.UserSession.IsRevoked, schema.UserSession.RevokedAt,
		activeFilter, schema.UserSession.TokenHash,
	)

	tag, err := repository.pool.Exec(context, query, userID, now, keepHash)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_revoke_others_failed: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (repository *PostgresStore) RevokeAll(context context.Context, userID string, now time.Time) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = TRUE, %s = $2
		WHERE %s`,
		schema.UserSession.Table,
		schema.UserSession.IsRevoked, schema.UserSession.RevokedAt,
		activeFilter,
	)

	tag, err := repository.pool.Exec(context, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (repository *PostgresStore) DeleteExpired(context context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s <= $1`, schema.UserSession.Table, schema.UserSession.ExpiresAt)

	tag, err := repository.pool.Exec(context, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
