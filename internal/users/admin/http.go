// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	requestutil "github.com/taibuivan/gatekeeper/internal/platform/request"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/platform/validate"
)

// Handler implements the administrative HTTP endpoints.
type Handler struct {
	adminService *Service
}

// NewHandler constructs a new admin [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{adminService: service}
}

// Routes returns a [chi.Router] configured with the admin endpoints.
//
// # Endpoints
//   - GET  /accounts/{id}/lockout : Lockout state and remaining attempts.
//   - POST /accounts/{id}/unlock  : Clears the lockout immediately.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireRole(sec.RoleAdmin))

	router.Get("/accounts/{id}/lockout", handler.getLockout)
	router.Post("/accounts/{id}/unlock", handler.unlock)

	return router
}

/*
GET /admin/accounts/{id}/lockout.

Response:
  - 200: LockoutStatus
  - 403: FORBIDDEN or IP_FORBIDDEN
  - 404: NOT_FOUND: Unknown account
*/
func (handler *Handler) getLockout(writer http.ResponseWriter, request *http.Request) {
	userID, err := accountID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	status, err := handler.adminService.LockoutStatus(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, status)
}

/*
POST /admin/accounts/{id}/unlock.

Response:
  - 200: LockoutStatus: State after the unlock
  - 404: NOT_FOUND: Unknown account
*/
func (handler *Handler) unlock(writer http.ResponseWriter, request *http.Request) {
	userID, err := accountID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	actor, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	status, err := handler.adminService.Unlock(request.Context(), actor.UserID(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, status)
}

func accountID(request *http.Request) (string, error) {
	id := requestutil.Param(request, "id")
	validator := &validate.Validator{}
	return id, validator.UUID("id", id).Err()
}
