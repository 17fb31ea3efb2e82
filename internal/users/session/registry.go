// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/metrics"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/pkg/uuid"
)

// Registry owns session bookkeeping and the per-account concurrency cap.
type Registry struct {
	store      Store
	maxPerUser int
	now        func() time.Time
}

// NewRegistry constructs a new [Registry].
func NewRegistry(store Store, policy config.SessionConfig) *Registry {
	return &Registry{
		store:      store,
		maxPerUser: policy.MaxPerUser,
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (registry *Registry) WithClock(now func() time.Time) *Registry {
	registry.now = now
	return registry
}

// MaxPerUser returns the configured cap.
func (registry *Registry) MaxPerUser() int {
	return registry.maxPerUser
}

/*
Create records a session for a freshly issued refresh token.

Parameters:
  - context: context.Context
  - userID: string
  - refreshToken: string (raw token; only its digest is stored)
  - expiresAt: time.Time
  - meta: Metadata

Returns:
  - *Session: The persisted session
  - error: Storage failures
*/
func (registry *Registry) Create(context context.Context, userID, refreshToken string, expiresAt time.Time, meta Metadata) (*Session, error) {
	session := &Session{
		ID:          uuid.New(),
		UserID:      userID,
		TokenHash:   sec.HashToken(refreshToken),
		DeviceLabel: DeviceLabel(meta.UserAgent),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		ExpiresAt:   expiresAt,
		CreatedAt:   registry.now(),
	}

	if err := registry.store.Create(context, session); err != nil {
		return nil, fmt.Errorf("session_create_failed: %w", err)
	}

	return session, nil
}

/*
EnforceLimit revokes the oldest active sessions until the account is within its cap.

Description: Called after a new session is persisted, so the newest session always
survives. The count is re-read after every eviction.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - int: Number of sessions evicted
  - error: Storage failures
*/
func (registry *Registry) EnforceLimit(context context.Context, userID string) (int, error) {
	evicted := 0

	for {
		now := registry.now()

		active, err := registry.store.CountActive(context, userID, now)
		if err != nil {
			return evicted, fmt.Errorf("session_count_active_failed: %w", err)
		}
		if active <= registry.maxPerUser {
			break
		}

		oldest, err := registry.store.OldestActive(context, userID, now)
		if err != nil {
			return evicted, fmt.Errorf("session_find_oldest_failed: %w", err)
		}

		revoked, err := registry.store.RevokeByID(context, userID, oldest.ID, now)
		if err != nil {
			return evicted, fmt.Errorf("session_evict_failed: %w", err)
		}
		if revoked {
			evicted++
			metrics.SessionsEvicted.Inc()
		}
	}

	if evicted > 0 {
		ctxutil.GetLogger(context).InfoContext(context, "session_limit_enforced",
			slog.String("user_id", userID),
			slog.Int("evicted", evicted),
			slog.Int("max_per_user", registry.maxPerUser),
		)
	}

	return evicted, nil
}

/*
ListActive returns the caller's active sessions, newest first.

Parameters:
  - context: context.Context
  - userID: string
  - currentToken: string (optional raw refresh token used to flag the caller's own session)

Returns:
  - []*Session
  - error: Storage failures
*/
func (registry *Registry) ListActive(context context.Context, userID, currentToken string) ([]*Session, error) {
	sessions, err := registry.store.ListActive(context, userID, registry.now())
	if err != nil {
		return nil, fmt.Errorf("session_list_active_failed: %w", err)
	}

	if currentToken != "" {
		currentHash := sec.HashToken(currentToken)
		for _, session := range sessions {
			session.Current = session.TokenHash == currentHash
		}
	}

	return sessions, nil
}

/*
Revoke revokes one session owned by the caller.

Description: Missing, foreign, already revoked and expired sessions are reported
identically as NOT_FOUND.

Parameters:
  - context: context.Context
  - userID: string
  - sessionID: string

Returns:
  - error: apperr.NotFound or storage failures
*/
func (registry *Registry) Revoke(context context.Context, userID, sessionID string) error {
	revoked, err := registry.store.RevokeByID(context, userID, sessionID, registry.now())
	if err != nil {
		return fmt.Errorf("session_revoke_failed: %w", err)
	}
	if !revoked {
		return apperr.NotFound("Session")
	}
	return nil
}

/*
RevokeAllExcept revokes every active session except the one holding currentToken.

Parameters:
  - context: context.Context
  - userID: string
  - currentToken: string (raw refresh token; empty revokes everything)

Returns:
  - int: Number of sessions revoked
  - error: Storage failures
*/
func (registry *Registry) RevokeAllExcept(context context.Context, userID, currentToken string) (int, error) {
	keepHash := ""
	if currentToken != "" {
		keepHash = sec.HashToken(currentToken)
	}

	count, err := registry.store.RevokeAllExcept(context, userID, keepHash, registry.now())
	if err != nil {
		return 0, fmt.Errorf("session_revoke_all_except_failed: %w", err)
	}
	return count, nil
}

// RevokeAll revokes every active session of the account.
func (registry *Registry) RevokeAll(context context.Context, userID string) (int, error) {
	count, err := registry.store.RevokeAll(context, userID, registry.now())
	if err != nil {
		return 0, fmt.Errorf("session_revoke_all_failed: %w", err)
	}
	return count, nil
}

/*
Consume exchanges a refresh token for its session, revoking it in the same step.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *Session: The consumed session
  - error: apperr.InvalidToken when no active session holds the token
*/
func (registry *Registry) Consume(context context.Context, refreshToken string) (*Session, error) {
	session, err := registry.store.Consume(context, sec.HashToken(refreshToken), registry.now())
	if err != nil {
		if appErr := apperr.As(err); appErr != nil && appErr.Code == apperr.CodeNotFound {
			return nil, apperr.InvalidToken()
		}
		return nil, fmt.Errorf("session_consume_failed: %w", err)
	}
	return session, nil
}

// PurgeExpired deletes sessions whose deadline has passed.
func (registry *Registry) PurgeExpired(context context.Context) (int64, error) {
	deleted, err := registry.store.DeleteExpired(context, registry.now())
	if err != nil {
		return 0, fmt.Errorf("session_purge_expired_failed: %w", err)
	}
	return deleted, nil
}

// RunJanitor purges expired sessions every interval until context is cancelled.
func (registry *Registry) RunJanitor(context context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-context.Done():
			return
		case <-ticker.C:
			deleted, err := registry.PurgeExpired(context)
			if err != nil {
				if !errors.Is(err, context.Err()) {
					logger.Error("session_janitor_failed", slog.Any("error", err))
				}
				continue
			}
			if deleted > 0 {
				logger.Info("session_janitor_purged", slog.Int64("deleted", deleted))
			}
		}
	}
}
