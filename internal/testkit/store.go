// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package testkit

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
	"github.com/taibuivan/gatekeeper/internal/users/session"
)

var (
	_ auth.UserRepository = (*UserRepository)(nil)
	_ lockout.Store       = (*LockoutStore)(nil)
	_ session.Store       = (*SessionStore)(nil)
)

// Store is an in-memory stand-in for the users schema.
//
// It exposes one view per repository contract: [Store.Users], [Store.Sessions]
// and [Store.Lockout]. Every view returns copies, so callers never share
// memory with the stored rows.
type Store struct {
	mu       sync.Mutex
	users    map[string]*auth.User
	sessions map[string]*session.Session

	// txMu serializes independent units of work the way a row lock would.
	txMu sync.Mutex
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*auth.User),
		sessions: make(map[string]*session.Session),
	}
}

// Users returns the account repository view.
func (store *Store) Users() *UserRepository {
	return &UserRepository{store: store}
}

// Sessions returns the session repository view.
func (store *Store) Sessions() *SessionStore {
	return &SessionStore{store: store}
}

// Lockout returns the lockout unit-of-work view.
func (store *Store) Lockout() *LockoutStore {
	return &LockoutStore{store: store}
}

// User returns a snapshot of an account for assertions.
func (store *Store) User(id string) (auth.User, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()

	user, ok := store.users[id]
	if !ok {
		return auth.User{}, false
	}
	return *cloneUser(user), true
}

// SessionsOf returns snapshots of every session owned by userID, oldest first.
func (store *Store) SessionsOf(userID string) []session.Session {
	store.mu.Lock()
	defer store.mu.Unlock()

	var owned []session.Session
	for _, stored := range store.sessions {
		if stored.UserID == userID {
			owned = append(owned, *stored)
		}
	}
	slices.SortFunc(owned, func(a, b session.Session) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return owned
}

func cloneUser(user *auth.User) *auth.User {
	clone := *user
	clone.Roles = slices.Clone(user.Roles)
	if user.PasswordHash != nil {
		hash := *user.PasswordHash
		clone.PasswordHash = &hash
	}
	if user.LockoutUntil != nil {
		until := *user.LockoutUntil
		clone.LockoutUntil = &until
	}
	return &clone
}

func cloneSession(stored *session.Session) *session.Session {
	clone := *stored
	if stored.RevokedAt != nil {
		revokedAt := *stored.RevokedAt
		clone.RevokedAt = &revokedAt
	}
	return &clone
}

// # Accounts

// UserRepository implements auth.UserRepository.
type UserRepository struct {
	store *Store
}

func (repository *UserRepository) FindByID(_ context.Context, id string) (*auth.User, error) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	user, ok := repository.store.users[id]
	if !ok {
		return nil, apperr.NotFound("Account")
	}
	return cloneUser(user), nil
}

func (repository *UserRepository) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	for _, user := range repository.store.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (repository *UserRepository) Create(_ context.Context, user *auth.User) error {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	for _, existing := range repository.store.users {
		if existing.Email == user.Email || existing.ID == user.ID {
			return apperr.Conflict("Account already exists")
		}
	}
	repository.store.users[user.ID] = cloneUser(user)
	return nil
}

func (repository *UserRepository) UpdatePassword(_ context.Context, userID, newHash string) error {
	return repository.update(userID, func(user *auth.User) {
		user.PasswordHash = &newHash
	})
}

func (repository *UserRepository) UpdateNickname(_ context.Context, userID, nickname string) error {
	return repository.update(userID, func(user *auth.User) {
		user.Nickname = nickname
	})
}

// Put stores an account as-is, bypassing uniqueness checks. Used to seed fixtures.
func (repository *UserRepository) Put(user *auth.User) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	repository.store.users[user.ID] = cloneUser(user)
}

func (repository *UserRepository) update(userID string, apply func(*auth.User)) error {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	user, ok := repository.store.users[userID]
	if !ok {
		return apperr.NotFound("Account")
	}
	apply(user)
	return nil
}

// # Lockout Units of Work

// LockoutStore implements lockout.Store with buffered, all-or-nothing writes.
type LockoutStore struct {
	store *Store
}

// Independent runs fn serialized against every other unit of work and
// applies its writes only when fn succeeds. A done context aborts the unit.
func (repository *LockoutStore) Independent(context context.Context, fn func(context.Context, lockout.AttemptTx) error) error {
	repository.store.txMu.Lock()
	defer repository.store.txMu.Unlock()

	if err := context.Err(); err != nil {
		return err
	}

	tx := &lockoutTx{store: repository.store, pending: make(map[string]lockout.State)}
	if err := fn(context, tx); err != nil {
		return err
	}

	if err := context.Err(); err != nil {
		return err
	}

	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	for userID, state := range tx.pending {
		user, ok := repository.store.users[userID]
		if !ok {
			return apperr.NotFound("Account")
		}
		user.FailedAttempts = state.FailedAttempts
		user.LockoutUntil = state.LockoutUntil
	}
	return nil
}

type lockoutTx struct {
	store   *Store
	pending map[string]lockout.State
}

func (tx *lockoutTx) LockState(_ context.Context, userID string) (lockout.State, error) {
	if state, ok := tx.pending[userID]; ok {
		return state, nil
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	user, ok := tx.store.users[userID]
	if !ok {
		return lockout.State{}, apperr.NotFound("Account")
	}
	return cloneUser(user).LockoutState(), nil
}

func (tx *lockoutTx) SaveState(_ context.Context, userID string, state lockout.State) error {
	if state.LockoutUntil != nil {
		until := *state.LockoutUntil
		state.LockoutUntil = &until
	}
	tx.pending[userID] = state
	return nil
}

// # Sessions

// SessionStore implements session.Store.
type SessionStore struct {
	store *Store
}

func (repository *SessionStore) Create(_ context.Context, created *session.Session) error {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	for _, existing := range repository.store.sessions {
		if existing.TokenHash == created.TokenHash {
			return apperr.Conflict("Session already exists")
		}
	}
	repository.store.sessions[created.ID] = cloneSession(created)
	return nil
}

func (repository *SessionStore) Consume(_ context.Context, tokenHash string, now time.Time) (*session.Session, error) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	for _, stored := range repository.store.sessions {
		if stored.TokenHash == tokenHash && stored.ActiveAt(now) {
			revoke(stored, now)
			return cloneSession(stored), nil
		}
	}
	return nil, apperr.NotFound("Session")
}

func (repository *SessionStore) CountActive(_ context.Context, userID string, now time.Time) (int, error) {
	return len(repository.active(userID, now)), nil
}

func (repository *SessionStore) OldestActive(_ context.Context, userID string, now time.Time) (*session.Session, error) {
	active := repository.active(userID, now)
	if len(active) == 0 {
		return nil, apperr.NotFound("Session")
	}
	return active[0], nil
}

func (repository *SessionStore) ListActive(_ context.Context, userID string, now time.Time) ([]*session.Session, error) {
	active := repository.active(userID, now)
	slices.Reverse(active)
	return active, nil
}

func (repository *SessionStore) RevokeByID(_ context.Context, userID, sessionID string, now time.Time) (bool, error) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	stored, ok := repository.store.sessions[sessionID]
	if !ok || stored.UserID != userID || !stored.ActiveAt(now) {
		return false, nil
	}
	revoke(stored, now)
	return true, nil
}

func (repository *SessionStore) RevokeAllExcept(_ context.Context, userID, keepHash string, now time.Time) (int, error) {
	return repository.revokeWhere(userID, now, func(stored *session.Session) bool {
		return stored.TokenHash != keepHash
	}), nil
}

func (repository *SessionStore) RevokeAll(_ context.Context, userID string, now time.Time) (int, error) {
	return repository.revokeWhere(userID, now, func(*session.Session) bool { return true }), nil
}

func (repository *SessionStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	var deleted int64
	for id, stored := range repository.store.sessions {
		if !stored.ExpiresAt.After(before) {
			delete(repository.store.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// active returns copies of the live sessions of userID, oldest first.
func (repository *SessionStore) active(userID string, now time.Time) []*session.Session {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	var active []*session.Session
	for _, stored := range repository.store.sessions {
		if stored.UserID == userID && stored.ActiveAt(now) {
			active = append(active, cloneSession(stored))
		}
	}
	slices.SortFunc(active, func(a, b *session.Session) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return active
}

func (repository *SessionStore) revokeWhere(userID string, now time.Time, match func(*session.Session) bool) int {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()

	count := 0
	for _, stored := range repository.store.sessions {
		if stored.UserID == userID && stored.ActiveAt(now) && match(stored) {
			revoke(stored, now)
			count++
		}
	}
	return count
}

func revoke(stored *session.Session, now time.Time) {
	revokedAt := now
	stored.IsRevoked = true
	stored.RevokedAt = &revokedAt
}
