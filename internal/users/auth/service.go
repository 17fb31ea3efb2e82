// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/metrics"
	"github.com/taibuivan/gatekeeper/internal/platform/revocation"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/platform/validate"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
	"github.com/taibuivan/gatekeeper/internal/users/session"
	"github.com/taibuivan/gatekeeper/pkg/normalize"
	"github.com/taibuivan/gatekeeper/pkg/uuid"
)

// # Contracts & Types

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, lockout
// ordering, or token rotation must be reviewed by the security team.
type Service struct {
	users    UserRepository
	sessions *session.Registry
	guard    *lockout.Guard
	codec    *sec.TokenCodec
	revoked  revocation.Cache
	now      func() time.Time
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	users UserRepository,
	sessions *session.Registry,
	guard *lockout.Guard,
	codec *sec.TokenCodec,
	revoked revocation.Cache,
) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		guard:    guard,
		codec:    codec,
		revoked:  revoked,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (service *Service) WithClock(now func() time.Time) *Service {
	service.now = now
	return service
}

// TokenPair is the credential bundle returned by every successful authentication.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             *User     `json:"user"`
}

// dummyHash is compared against when no real hash exists so unknown emails cost one bcrypt round too.
var dummyHash = sync.OnceValue(func() string {
	hash, err := sec.HashPassword("gatekeeper-timing-equalizer")
	if err != nil {
		return ""
	}
	return hash
})

// # Registration Flow

// SignUpInput holds the data required to enroll a new principal.
type SignUpInput struct {
	Email    string
	Password string
	Nickname string
	Meta     session.Metadata
}

/*
SignUp validates, hashes, and persists a brand new account, then signs it in.

Parameters:
  - context: context.Context
  - input: SignUpInput

Returns:
  - *TokenPair: Credentials for the new account
  - error: Validation, Conflict (email taken) or storage errors
*/
func (service *Service) SignUp(context context.Context, input SignUpInput) (*TokenPair, error) {
	email := normalize.Email(input.Email)
	nickname := normalize.Nickname(input.Nickname)

	validator := &validate.Validator{}
	validator.Required(FieldEmail, email).
		MaxLen(FieldEmail, email, EmailMaxLength).
		Email(FieldEmail, email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, PasswordMinLength).
		MaxLen(FieldPassword, input.Password, PasswordMaxLength).
		Custom(FieldPassword, len(input.Password) > PasswordMaxLength, "Must not exceed 72 bytes").
		Password(FieldPassword, input.Password).
		MaxLen(FieldNickname, nickname, NicknameMaxLength)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	// Pre-check for a friendly error; the unique index still catches the race.
	_, err := service.users.FindByEmail(context, email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("auth_service_signup_lookup_failed: %w", err)
	}

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	now := service.now()
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: &hashedPassword,
		Roles:        []sec.UserRole{sec.RoleUser},
		Status:       StatusActive,
		Nickname:     nickname,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := service.users.Create(context, user); err != nil {
		if appErr := apperr.As(err); appErr != nil && appErr.Code == apperr.CodeConflict {
			return nil, apperr.Conflict("Email is already registered")
		}
		return nil, fmt.Errorf("auth_service_signup_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_created", slog.String("user_id", user.ID))

	return service.issue(context, user, input.Meta)
}

// # Authentication Flow

// SignInInput defines credentials for an authentication attempt.
type SignInInput struct {
	Email    string
	Password string
	Meta     session.Metadata
}

/*
SignIn validates credentials under the lockout policy and issues tokens.

Description: Unknown emails, inactive accounts and accounts without a password
all fail exactly like a wrong password. A locked account is rejected before
the password is compared, so correct credentials do not bypass the lock.

Parameters:
  - context: context.Context
  - input: SignInInput

Returns:
  - *TokenPair: Transport-ready credentials
  - error: InvalidCredentials, Locked or internal failures
*/
func (service *Service) SignIn(context context.Context, input SignInInput) (*TokenPair, error) {
	email := normalize.Email(input.Email)

	user, err := service.users.FindByEmail(context, email)
	if err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("auth_service_signin_lookup_failed: %w", err)
		}
		sec.CheckPasswordHash(input.Password, dummyHash())
		return nil, service.rejectCredentials(context, "")
	}

	if !user.IsActive() || user.PasswordHash == nil {
		sec.CheckPasswordHash(input.Password, dummyHash())
		return nil, service.rejectCredentials(context, user.ID)
	}

	state := user.LockoutState()
	if err := service.guard.CheckLocked(context, user.ID, state); err != nil {
		if appErr := apperr.As(err); appErr != nil && appErr.Code == apperr.CodeAccountLocked {
			metrics.SignIns.WithLabelValues(metrics.OutcomeLocked).Inc()
		}
		return nil, err
	}

	if !sec.CheckPasswordHash(input.Password, *user.PasswordHash) {
		recorded, err := service.guard.RecordFailure(context, user.ID)
		if err != nil {
			return nil, err
		}
		ctxutil.GetLogger(context).InfoContext(context, "signin_failed_attempt_recorded",
			slog.String("user_id", user.ID),
			slog.Int("failed_attempts", recorded.FailedAttempts),
			slog.Int("remaining_attempts", service.guard.RemainingAttempts(recorded)),
		)
		return nil, service.rejectCredentials(context, user.ID)
	}

	if err := service.guard.RecordSuccess(context, user.ID); err != nil {
		return nil, err
	}
	user.FailedAttempts, user.LockoutUntil = 0, nil

	pair, err := service.issue(context, user, input.Meta)
	if err != nil {
		return nil, err
	}

	metrics.SignIns.WithLabelValues(metrics.OutcomeSuccess).Inc()
	ctxutil.GetLogger(context).InfoContext(context, "signin_succeeded", slog.String("user_id", user.ID))

	return pair, nil
}

// # Session Management

/*
Refresh implements single-use refresh token rotation.

Description: The presented session is revoked atomically before the replacement
pair is issued, so of two concurrent refreshes with one token only one wins.

Parameters:
  - context: context.Context
  - refreshToken: string
  - meta: session.Metadata (client of the new session)

Returns:
  - *TokenPair: New credentials
  - error: InvalidToken or storage failures
*/
func (service *Service) Refresh(context context.Context, refreshToken string, meta session.Metadata) (*TokenPair, error) {
	claims, err := service.codec.Claims(refreshToken)
	if err != nil || claims.Type != sec.TokenRefresh {
		return nil, service.rejectRefresh(context, "refresh_token_invalid")
	}

	consumed, err := service.sessions.Consume(context, refreshToken)
	if err != nil {
		if appErr := apperr.As(err); appErr != nil && appErr.Code == apperr.CodeInvalidToken {
			return nil, service.rejectRefresh(context, "refresh_session_not_active")
		}
		return nil, err
	}

	if consumed.UserID != claims.UserID() {
		return nil, service.rejectRefresh(context, "refresh_subject_mismatch")
	}

	user, err := service.users.FindByID(context, consumed.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, service.rejectRefresh(context, "refresh_account_missing")
		}
		return nil, fmt.Errorf("auth_service_refresh_lookup_failed: %w", err)
	}
	if !user.IsActive() {
		return nil, service.rejectRefresh(context, "refresh_account_inactive")
	}

	return service.issue(context, user, meta)
}

/*
SignOut revokes every session of the account and blocks the presented access token.

Description: The access token is only remembered when it is a valid access token
of the same account, and only until its own expiry.

Parameters:
  - context: context.Context
  - userID: string
  - accessToken: string (optional)

Returns:
  - error: Storage or revocation cache failures
*/
func (service *Service) SignOut(context context.Context, userID, accessToken string) error {
	revokedSessions, err := service.sessions.RevokeAll(context, userID)
	if err != nil {
		return err
	}

	logger := ctxutil.GetLogger(context)

	if accessToken != "" {
		claims, err := service.codec.Claims(accessToken)
		if err == nil && claims.Type == sec.TokenAccess && claims.UserID() == userID {
			if err := service.revoked.Add(context, sec.HashToken(accessToken), claims.ExpiresAt.Time); err != nil {
				return fmt.Errorf("auth_service_signout_revoke_failed: %w", err)
			}
			metrics.TokensRevoked.Inc()
		}
	}

	logger.InfoContext(context, "signout_completed",
		slog.String("user_id", userID),
		slog.Int("sessions_revoked", revokedSessions),
	)
	return nil
}

/*
VerifyAccess authenticates a bearer token for a protected request.

Description: A revocation lookup failure rejects the token rather than
letting a possibly revoked token through.

Parameters:
  - context: context.Context
  - accessToken: string

Returns:
  - *sec.Claims: Verified identity
  - error: InvalidToken
*/
func (service *Service) VerifyAccess(context context.Context, accessToken string) (*sec.Claims, error) {
	claims, err := service.codec.Claims(accessToken)
	if err != nil || claims.Type != sec.TokenAccess {
		return nil, apperr.InvalidToken()
	}

	revoked, err := service.revoked.IsRevoked(context, sec.HashToken(accessToken))
	if err != nil {
		ctxutil.GetLogger(context).ErrorContext(context, "revocation_lookup_failed", slog.Any("error", err))
		return nil, apperr.InvalidToken()
	}
	if revoked {
		return nil, apperr.InvalidToken()
	}

	return claims, nil
}

// # Credential Management

/*
ChangePassword verifies the current password, stores the new one and signs out other devices.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string
  - currentRefreshToken: string (session to keep; empty revokes every session)

Returns:
  - int: Number of sessions revoked
  - error: Validation, InvalidCredentials or storage failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword, currentRefreshToken string) (int, error) {
	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, currentPassword).
		Required(FieldNewPassword, newPassword).
		MinLen(FieldNewPassword, newPassword, PasswordMinLength).
		MaxLen(FieldNewPassword, newPassword, PasswordMaxLength).
		Custom(FieldNewPassword, len(newPassword) > PasswordMaxLength, "Must not exceed 72 bytes").
		Password(FieldNewPassword, newPassword).
		Custom(FieldNewPassword, newPassword != "" && newPassword == currentPassword, "Must differ from the current password")
	if err := validator.Err(); err != nil {
		return 0, err
	}

	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return 0, err
	}

	if user.PasswordHash == nil || !sec.CheckPasswordHash(currentPassword, *user.PasswordHash) {
		return 0, apperr.InvalidCredentials()
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return 0, fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.users.UpdatePassword(context, userID, hashedPassword); err != nil {
		return 0, fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	revoked, err := service.sessions.RevokeAllExcept(context, userID, currentRefreshToken)
	if err != nil {
		return 0, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_changed",
		slog.String("user_id", userID),
		slog.Int("sessions_revoked", revoked),
	)
	return revoked, nil
}

// # Internal Helpers

// issue mints a token pair, records its session, then trims the account to its session cap.
func (service *Service) issue(context context.Context, user *User, meta session.Metadata) (*TokenPair, error) {
	accessToken, err := service.codec.IssueAccess(user.ID, user.Email, user.RoleStrings())
	if err != nil {
		return nil, fmt.Errorf("auth_service_access_token_failed: %w", err)
	}

	refreshToken, err := service.codec.IssueRefresh(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	refreshExpiresAt, err := service.codec.ExpiresAt(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_expiry_failed: %w", err)
	}

	if _, err := service.sessions.Create(context, user.ID, refreshToken, refreshExpiresAt, meta); err != nil {
		return nil, err
	}

	if _, err := service.sessions.EnforceLimit(context, user.ID); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        TokenTypeBearer,
		ExpiresIn:        int64(service.codec.AccessTTL().Seconds()),
		RefreshExpiresAt: refreshExpiresAt,
		User:             user,
	}, nil
}

func (service *Service) rejectCredentials(context context.Context, userID string) error {
	metrics.SignIns.WithLabelValues(metrics.OutcomeInvalidCredentials).Inc()
	ctxutil.GetLogger(context).InfoContext(context, "signin_rejected_invalid_credentials", slog.String("user_id", userID))
	return apperr.InvalidCredentials()
}

func (service *Service) rejectRefresh(context context.Context, reason string) error {
	metrics.RefreshRejected.Inc()
	ctxutil.GetLogger(context).WarnContext(context, "refresh_rejected", slog.String("reason", reason))
	return apperr.InvalidToken()
}

func isNotFound(err error) bool {
	var appErr *apperr.AppError
	return errors.As(err, &appErr) && appErr.Code == apperr.CodeNotFound
}
