// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/metrics"
	"github.com/taibuivan/gatekeeper/internal/platform/revocation"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/testkit"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
	"github.com/taibuivan/gatekeeper/internal/users/session"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	password   = "correct-horse-1"
)

var (
	desktop = session.Metadata{UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", IPAddress: "203.0.113.7"}
	phone   = session.Metadata{UserAgent: "curl/8.4.0", IPAddress: "198.51.100.9"}
)

type harness struct {
	store   *testkit.Store
	clock   *testkit.Clock
	codec   *sec.TokenCodec
	service *auth.Service
}

type options struct {
	lockout    config.LockoutConfig
	maxPerUser int
	revoked    revocation.Cache
}

func newHarness(t *testing.T, opts options) harness {
	t.Helper()

	if opts.lockout.MaxFailedAttempts == 0 {
		opts.lockout = config.LockoutConfig{Enabled: true, MaxFailedAttempts: 5, LockDurationMinutes: 15}
	}
	if opts.maxPerUser == 0 {
		opts.maxPerUser = 5
	}

	store := testkit.NewStore()
	clock := testkit.NewClock()

	codec, err := sec.NewTokenCodec(testSecret, "gatekeeper.test", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	codec.WithClock(clock.Now)

	if opts.revoked == nil {
		opts.revoked = revocation.NewMemoryCache(1000, time.Hour).WithClock(clock.Now)
	}

	registry := session.NewRegistry(store.Sessions(), config.SessionConfig{MaxPerUser: opts.maxPerUser}).WithClock(clock.Now)
	guard := lockout.NewGuard(store.Lockout(), nil, opts.lockout).WithClock(clock.Now)
	service := auth.NewService(store.Users(), registry, guard, codec, opts.revoked).WithClock(clock.Now)

	return harness{store: store, clock: clock, codec: codec, service: service}
}

func (h harness) signUp(t *testing.T, email string) *auth.TokenPair {
	t.Helper()
	pair, err := h.service.SignUp(context.Background(), auth.SignUpInput{
		Email:    email,
		Password: password,
		Nickname: "  Reader   One ",
		Meta:     desktop,
	})
	require.NoError(t, err)
	return pair
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	appErr := apperr.As(err)
	require.NotNil(t, appErr, "expected %s, got %v", code, err)
	assert.Equal(t, code, appErr.Code)
}

// # Registration

func TestService_SignUp(t *testing.T) {
	h := newHarness(t, options{})

	pair := h.signUp(t, "  User@Example.COM ")

	assert.Equal(t, "user@example.com", pair.User.Email)
	assert.Equal(t, "Reader One", pair.User.Nickname)
	assert.Equal(t, []sec.UserRole{sec.RoleUser}, pair.User.Roles)
	assert.Equal(t, auth.TokenTypeBearer, pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.True(t, h.clock.Now().Add(7*24*time.Hour).Equal(pair.RefreshExpiresAt))

	stored, ok := h.store.User(pair.User.ID)
	require.True(t, ok)
	require.NotNil(t, stored.PasswordHash)
	assert.NotEqual(t, password, *stored.PasswordHash)

	assert.True(t, h.codec.IsAccess(pair.AccessToken))
	assert.True(t, h.codec.IsRefresh(pair.RefreshToken))
	assert.Len(t, h.store.SessionsOf(pair.User.ID), 1)
}

func TestService_SignUp_Rejects(t *testing.T) {
	h := newHarness(t, options{})
	h.signUp(t, "user@example.com")

	tests := []struct {
		name  string
		input auth.SignUpInput
		code  string
	}{
		{"duplicate_email_any_case", auth.SignUpInput{Email: "USER@example.com", Password: password}, apperr.CodeConflict},
		{"invalid_email", auth.SignUpInput{Email: "not-an-email", Password: password}, apperr.CodeValidation},
		{"short_password", auth.SignUpInput{Email: "new@example.com", Password: "abc1"}, apperr.CodeValidation},
		{"password_without_digit", auth.SignUpInput{Email: "new@example.com", Password: "onlyletters"}, apperr.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.service.SignUp(context.Background(), tt.input)
			requireCode(t, err, tt.code)
		})
	}
}

// # Authentication

/*
TestService_SignIn_LockoutLifecycle walks an account through five failures,
a rejected correct password while locked, and recovery after the window.
*/
func TestService_SignIn_LockoutLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	userID := h.signUp(t, "user@example.com").User.ID

	lockoutsBefore := testutil.ToFloat64(metrics.Lockouts)

	for attempt := 1; attempt <= 5; attempt++ {
		_, err := h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: "wrong-password-9", Meta: desktop})
		requireCode(t, err, apperr.CodeInvalidCredentials)

		stored, _ := h.store.User(userID)
		assert.Equal(t, attempt, stored.FailedAttempts)
	}

	stored, _ := h.store.User(userID)
	require.NotNil(t, stored.LockoutUntil)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), *stored.LockoutUntil)
	assert.Equal(t, lockoutsBefore+1, testutil.ToFloat64(metrics.Lockouts))

	_, err := h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: password, Meta: desktop})
	requireCode(t, err, apperr.CodeAccountLocked)

	h.clock.Advance(15*time.Minute + time.Second)

	pair, err := h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: password, Meta: desktop})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	stored, _ = h.store.User(userID)
	assert.Zero(t, stored.FailedAttempts)
	assert.Nil(t, stored.LockoutUntil)
}

func TestService_SignIn_SuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	userID := h.signUp(t, "user@example.com").User.ID

	for range 3 {
		_, err := h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: "wrong-password-9"})
		requireCode(t, err, apperr.CodeInvalidCredentials)
	}

	_, err := h.service.SignIn(ctx, auth.SignInInput{Email: "User@Example.com", Password: password})
	require.NoError(t, err)

	stored, _ := h.store.User(userID)
	assert.Zero(t, stored.FailedAttempts)
}

/*
TestService_SignIn_IndistinguishableFailures verifies that unknown and
inactive accounts fail exactly like a wrong password.
*/
func TestService_SignIn_IndistinguishableFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	userID := h.signUp(t, "user@example.com").User.ID

	suspended, _ := h.store.User(userID)
	suspended.ID = "0194a3b2-0000-7000-8000-0000000000aa"
	suspended.Email = "suspended@example.com"
	suspended.Status = auth.StatusSuspended
	h.store.Users().Put(&suspended)

	for _, email := range []string{"nobody@example.com", "suspended@example.com"} {
		_, err := h.service.SignIn(ctx, auth.SignInInput{Email: email, Password: password})
		requireCode(t, err, apperr.CodeInvalidCredentials)
	}

	stored, _ := h.store.User(suspended.ID)
	assert.Zero(t, stored.FailedAttempts)
}

func TestService_SignIn_EnforcesSessionCap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{maxPerUser: 3})
	userID := h.signUp(t, "user@example.com").User.ID

	var latest *auth.TokenPair
	for range 4 {
		h.clock.Advance(time.Second)
		pair, err := h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: password, Meta: phone})
		require.NoError(t, err)
		latest = pair
	}

	active := 0
	for _, stored := range h.store.SessionsOf(userID) {
		if !stored.IsRevoked {
			active++
		}
	}
	assert.Equal(t, 3, active)

	_, err := h.service.Refresh(ctx, latest.RefreshToken, phone)
	assert.NoError(t, err)
}

// # Session Management

func TestService_Refresh_RotatesSingleUse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	first := h.signUp(t, "user@example.com")

	h.clock.Advance(time.Minute)
	second, err := h.service.Refresh(ctx, first.RefreshToken, phone)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	_, err = h.service.Refresh(ctx, first.RefreshToken, phone)
	requireCode(t, err, apperr.CodeInvalidToken)

	// An access token is never accepted as a refresh token
	_, err = h.service.Refresh(ctx, second.AccessToken, phone)
	requireCode(t, err, apperr.CodeInvalidToken)

	_, err = h.service.Refresh(ctx, second.RefreshToken, phone)
	assert.NoError(t, err)
}

/*
TestService_Refresh_ConcurrentReuse verifies that exactly one of many
simultaneous rotations with the same token succeeds.
*/
func TestService_Refresh_ConcurrentReuse(t *testing.T) {
	h := newHarness(t, options{maxPerUser: 20})
	pair := h.signUp(t, "user@example.com")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.service.Refresh(context.Background(), pair.RefreshToken, phone)
			if err == nil {
				successes.Add(1)
				return
			}
			if appErr := apperr.As(err); appErr != nil && appErr.Code == apperr.CodeInvalidToken {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(9), rejected.Load())
}

func TestService_Refresh_RejectsInactiveAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	pair := h.signUp(t, "user@example.com")

	stored, _ := h.store.User(pair.User.ID)
	stored.Status = auth.StatusInactive
	h.store.Users().Put(&stored)

	_, err := h.service.Refresh(ctx, pair.RefreshToken, desktop)
	requireCode(t, err, apperr.CodeInvalidToken)
}

/*
TestService_SignOut verifies that the presented access token stops working
while a token issued after sign-out is accepted.
*/
func TestService_SignOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	pair := h.signUp(t, "user@example.com")

	claims, err := h.service.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.User.ID, claims.UserID())

	require.NoError(t, h.service.SignOut(ctx, pair.User.ID, pair.AccessToken))

	_, err = h.service.VerifyAccess(ctx, pair.AccessToken)
	requireCode(t, err, apperr.CodeInvalidToken)

	_, err = h.service.Refresh(ctx, pair.RefreshToken, desktop)
	requireCode(t, err, apperr.CodeInvalidToken)

	fresh, err := h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: password})
	require.NoError(t, err)
	_, err = h.service.VerifyAccess(ctx, fresh.AccessToken)
	assert.NoError(t, err)
}

func TestService_SignOut_IgnoresForeignAccessToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	alice := h.signUp(t, "alice@example.com")
	bob := h.signUp(t, "bob@example.com")

	require.NoError(t, h.service.SignOut(ctx, alice.User.ID, bob.AccessToken))

	_, err := h.service.VerifyAccess(ctx, bob.AccessToken)
	assert.NoError(t, err)
}

type failingCache struct{}

func (failingCache) Add(context.Context, string, time.Time) error { return errors.New("cache down") }

func (failingCache) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("cache down")
}

func TestService_VerifyAccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	pair := h.signUp(t, "user@example.com")

	t.Run("refresh_token_rejected", func(t *testing.T) {
		_, err := h.service.VerifyAccess(ctx, pair.RefreshToken)
		requireCode(t, err, apperr.CodeInvalidToken)
	})

	t.Run("expired_rejected", func(t *testing.T) {
		local := newHarness(t, options{})
		localPair := local.signUp(t, "user@example.com")
		local.clock.Advance(15 * time.Minute)

		_, err := local.service.VerifyAccess(ctx, localPair.AccessToken)
		requireCode(t, err, apperr.CodeInvalidToken)
	})

	t.Run("cache_failure_fails_closed", func(t *testing.T) {
		local := newHarness(t, options{revoked: failingCache{}})
		localPair := local.signUp(t, "user@example.com")

		_, err := local.service.VerifyAccess(ctx, localPair.AccessToken)
		requireCode(t, err, apperr.CodeInvalidToken)
	})
}

// # Credential Management

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, options{})
	current := h.signUp(t, "user@example.com")

	for range 2 {
		_, err := h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: password, Meta: phone})
		require.NoError(t, err)
	}

	_, err := h.service.ChangePassword(ctx, current.User.ID, "wrong-password-9", "brand-new-pass-2", current.RefreshToken)
	requireCode(t, err, apperr.CodeInvalidCredentials)

	_, err = h.service.ChangePassword(ctx, current.User.ID, password, password, current.RefreshToken)
	requireCode(t, err, apperr.CodeValidation)

	revoked, err := h.service.ChangePassword(ctx, current.User.ID, password, "brand-new-pass-2", current.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	// The calling device keeps its session
	_, err = h.service.Refresh(ctx, current.RefreshToken, desktop)
	assert.NoError(t, err)

	_, err = h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: password})
	requireCode(t, err, apperr.CodeInvalidCredentials)

	_, err = h.service.SignIn(ctx, auth.SignInInput{Email: "user@example.com", Password: "brand-new-pass-2"})
	assert.NoError(t, err)
}
