// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	requestutil "github.com/taibuivan/gatekeeper/internal/platform/request"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
)

// Handler implements the HTTP layer for the caller's own account.
type Handler struct {
	accountService *Service
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{accountService: service}
}

// Routes returns a [chi.Router] configured with the account endpoints.
//
// # Endpoints
//   - GET    /me               : The caller's profile.
//   - PATCH  /me               : Partial profile update.
//   - GET    /me/sessions      : Active devices, newest first.
//   - DELETE /me/sessions      : Signs out every other device.
//   - DELETE /me/sessions/{id} : Signs out one device.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)

	// Account Management
	router.Get("/me", handler.getMe)
	router.Patch("/me", handler.updateMe)

	// Session Security
	router.Get("/me/sessions", handler.listSessions)
	router.Delete("/me/sessions", handler.revokeOtherSessions)
	router.Delete("/me/sessions/{id}", handler.revokeSession)

	return router
}

// # User Profile Endpoints

/*
GET /api/v1/me.

Response:
  - 200: User: The caller's profile
  - 401: UNAUTHORIZED: Authentication required
*/
func (handler *Handler) getMe(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.accountService.GetProfile(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

type updateMeRequest struct {
	Nickname *string `json:"nickname"`
}

/*
PATCH /api/v1/me.

Request:
  - body: updateMeRequest (Partial JSON)

Response:
  - 200: User: The updated profile
  - 400: VALIDATION_ERROR: Invalid input data
*/
func (handler *Handler) updateMe(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateMeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.accountService.UpdateProfile(request.Context(), userID, UpdateProfileInput{
		Nickname: input.Nickname,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// # Session Security Endpoints

/*
GET /api/v1/me/sessions.

Description: The session holding the request's refresh cookie is flagged as current.

Response:
  - 200: List of active device sessions
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessions, err := handler.accountService.ListSessions(request.Context(), userID, currentRefreshToken(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.List(writer, sessions, len(sessions))
}

/*
DELETE /api/v1/me/sessions/{id}.

Response:
  - 204: No Content: Session terminated
  - 404: NOT_FOUND: Unknown, foreign or already revoked session
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := requestutil.Param(request, "id")

	if err := handler.accountService.RevokeSession(request.Context(), userID, sessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

type revokeOthersResponse struct {
	SessionsRevoked int `json:"sessions_revoked"`
}

/*
DELETE /api/v1/me/sessions.

Description: Signs out every device except the one holding the request's
refresh cookie. Without the cookie every session is revoked.

Response:
  - 200: revokeOthersResponse: Number of sessions revoked
*/
func (handler *Handler) revokeOtherSessions(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	revoked, err := handler.accountService.RevokeOtherSessions(request.Context(), userID, currentRefreshToken(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, revokeOthersResponse{SessionsRevoked: revoked})
}

func currentRefreshToken(request *http.Request) string {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
