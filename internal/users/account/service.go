// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/validate"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
	"github.com/taibuivan/gatekeeper/internal/users/session"
	"github.com/taibuivan/gatekeeper/pkg/normalize"
)

// # Service Layer

// Service orchestrates profile updates and the caller's session inventory.
type Service struct {
	profiles ProfileRepository
	sessions *session.Registry
}

// NewService constructs a new [Service] with its dependencies.
func NewService(profiles ProfileRepository, sessions *session.Registry) *Service {
	return &Service{
		profiles: profiles,
		sessions: sessions,
	}
}

// # Profile Management

/*
GetProfile retrieves the private profile of a user.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *auth.User: The user profile
  - error: Not found or execution failures
*/
func (service *Service) GetProfile(context context.Context, userID string) (*auth.User, error) {
	user, err := service.profiles.FindByID(context, userID)
	if err != nil {
		return nil, fmt.Errorf("account_service_get_profile_failed: %w", err)
	}
	return user, nil
}

// UpdateProfileInput defines the mutable subset of user profile fields.
type UpdateProfileInput struct {
	Nickname *string
}

/*
UpdateProfile applies a partial set of changes to the caller's profile.

Parameters:
  - context: context.Context
  - userID: string
  - input: UpdateProfileInput

Returns:
  - *auth.User: The updated user profile
  - error: Validation or storage failures
*/
func (service *Service) UpdateProfile(context context.Context, userID string, input UpdateProfileInput) (*auth.User, error) {
	if input.Nickname != nil {
		nickname := normalize.Nickname(*input.Nickname)

		validator := &validate.Validator{}
		validator.Required(FieldNickname, nickname).
			MaxLen(FieldNickname, nickname, auth.NicknameMaxLength)
		if err := validator.Err(); err != nil {
			return nil, err
		}

		if err := service.profiles.UpdateNickname(context, userID, nickname); err != nil {
			return nil, fmt.Errorf("account_service_update_failed: %w", err)
		}

		ctxutil.GetLogger(context).InfoContext(context, "user_profile_updated", slog.String("user_id", userID))
	}

	return service.GetProfile(context, userID)
}

// # Session Security

/*
ListSessions lists the caller's active devices, newest first.

Parameters:
  - context: context.Context
  - userID: string
  - currentRefreshToken: string (optional, marks the calling device)

Returns:
  - []*session.Session: Active devices
  - error: Retrieval failures
*/
func (service *Service) ListSessions(context context.Context, userID, currentRefreshToken string) ([]*session.Session, error) {
	sessions, err := service.sessions.ListActive(context, userID, currentRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("account_service_list_sessions_failed: %w", err)
	}
	return sessions, nil
}

/*
RevokeSession signs out one of the caller's devices.

Parameters:
  - context: context.Context
  - userID: string
  - sessionID: string

Returns:
  - error: apperr.NotFound for sessions that are not the caller's or not active
*/
func (service *Service) RevokeSession(context context.Context, userID, sessionID string) error {
	validator := &validate.Validator{}
	if err := validator.UUID("id", sessionID).Err(); err != nil {
		return err
	}

	if err := service.sessions.Revoke(context, userID, sessionID); err != nil {
		return fmt.Errorf("account_service_revoke_session_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_session_revoked",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)
	return nil
}

/*
RevokeOtherSessions signs out every device except the calling one.

Parameters:
  - context: context.Context
  - userID: string
  - currentRefreshToken: string (empty revokes every session)

Returns:
  - int: Number of sessions revoked
  - error: Revocation failures
*/
func (service *Service) RevokeOtherSessions(context context.Context, userID, currentRefreshToken string) (int, error) {
	revoked, err := service.sessions.RevokeAllExcept(context, userID, currentRefreshToken)
	if err != nil {
		return 0, fmt.Errorf("account_service_revoke_others_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_other_sessions_revoked",
		slog.String("user_id", userID),
		slog.Int("sessions_revoked", revoked),
	)
	return revoked, nil
}
