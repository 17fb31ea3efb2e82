// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	requestutil "github.com/taibuivan/gatekeeper/internal/platform/request"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
	"github.com/taibuivan/gatekeeper/internal/platform/validate"
	"github.com/taibuivan/gatekeeper/internal/users/session"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// The handler is a thin transport layer: it decodes payloads, moves the refresh
// token between cookie and body, and maps [Service] results to responses.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /signup   : Creates an account and signs it in.
//   - POST /signin   : Authenticates under the lockout policy.
//   - POST /refresh  : Rotates a refresh token.
//   - POST /signout  : Revokes every session and the presented access token.
//   - POST /password : Changes the password and signs out other devices.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/signup", handler.signUp)
	router.Post("/signin", handler.signIn)
	router.Post("/refresh", handler.refresh)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/signout", handler.signOut)
		r.Post("/password", handler.changePassword)
	})

	return router
}

// # Request Payloads

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	RefreshToken    string `json:"refresh_token"`
}

type changePasswordResponse struct {
	SessionsRevoked int `json:"sessions_revoked"`
}

/*
SignUp handles the creation of a new account.

POST /api/v1/auth/signup

Request:
  - Body: signUpRequest (Email, Password, Nickname)

Response:
  - 201: TokenPair: Credentials and the created profile
  - 400: VALIDATION_ERROR: Bad input
  - 409: CONFLICT: Email already registered
*/
func (handler *Handler) signUp(writer http.ResponseWriter, request *http.Request) {
	var input signUpRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	pair, err := handler.authService.SignUp(request.Context(), SignUpInput{
		Email:    input.Email,
		Password: input.Password,
		Nickname: input.Nickname,
		Meta:     clientMetadata(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, pair.RefreshToken, pair.RefreshExpiresAt)
	respond.Created(writer, pair)
}

/*
SignIn authenticates an account and establishes a session.

POST /api/v1/auth/signin

Request:
  - Body: signInRequest (Email, Password)

Response:
  - 200: TokenPair: Access and refresh tokens with the user profile
  - 401: INVALID_CREDENTIALS: Unknown email or wrong password
  - 423: ACCOUNT_LOCKED: Too many failed attempts
*/
func (handler *Handler) signIn(writer http.ResponseWriter, request *http.Request) {
	var input signInRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	pair, err := handler.authService.SignIn(request.Context(), SignInInput{
		Email:    input.Email,
		Password: input.Password,
		Meta:     clientMetadata(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, pair.RefreshToken, pair.RefreshExpiresAt)
	respond.OK(writer, pair)
}

/*
Refresh rotates a refresh token.

POST /api/v1/auth/refresh

Description: The token is read from the refresh cookie, or from the JSON body
for clients that do not keep cookies.

Response:
  - 200: TokenPair: Rotated credentials
  - 401: INVALID_TOKEN: Missing, reused, revoked or expired refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	refreshToken := refreshCookie(request)
	if refreshToken == "" {
		var input refreshRequest
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}
		refreshToken = input.RefreshToken
	}

	if refreshToken == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRefreshToken, "This field is required"))
		return
	}

	pair, err := handler.authService.Refresh(request.Context(), refreshToken, clientMetadata(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, pair.RefreshToken, pair.RefreshExpiresAt)
	respond.OK(writer, pair)
}

/*
SignOut terminates every session of the caller.

POST /api/v1/auth/signout

Description: Revokes all refresh sessions, blocks the presented access token
until it expires and clears the refresh cookie.

Response:
  - 204: No Content: Signed out
  - 401: Authentication required
*/
func (handler *Handler) signOut(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	accessToken := ctxutil.GetAccessToken(request.Context())
	if err := handler.authService.SignOut(request.Context(), userID, accessToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
ChangePassword updates the caller's password.

POST /api/v1/auth/password

Description: Verifies the current password, stores the new one and revokes
every session except the one holding the presented refresh token.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword, optional RefreshToken)

Response:
  - 200: changePasswordResponse: Number of sessions revoked
  - 400: VALIDATION_ERROR: Weak password
  - 401: INVALID_CREDENTIALS: Wrong current password
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	currentToken := refreshCookie(request)
	if currentToken == "" {
		currentToken = input.RefreshToken
	}

	revoked, err := handler.authService.ChangePassword(
		request.Context(),
		userID,
		input.CurrentPassword,
		input.NewPassword,
		currentToken,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, changePasswordResponse{SessionsRevoked: revoked})
}

// # Transport Helpers

// clientMetadata captures the device details recorded on a new session.
func clientMetadata(request *http.Request) session.Metadata {
	return session.Metadata{
		UserAgent: request.UserAgent(),
		IPAddress: middleware.ClientIP(request),
	}
}

// refreshCookie returns the refresh token cookie value, or an empty string.
func refreshCookie(request *http.Request) string {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setRefreshCookie(writer http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    token,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
