// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/middleware"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
)

type envelope struct {
	Data struct {
		AccessToken     string `json:"access_token"`
		RefreshToken    string `json:"refresh_token"`
		TokenType       string `json:"token_type"`
		SessionsRevoked int    `json:"sessions_revoked"`
		User            struct {
			Email string `json:"email"`
		} `json:"user"`
	} `json:"data"`
	Code string `json:"code"`
}

func newRouter(h harness) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Authenticate(h.service))
	router.Mount("/api/v1/auth", auth.NewHandler(h.service).Routes())
	return router
}

func call(t *testing.T, router http.Handler, method, path, body string, mutate func(*http.Request)) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(request)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	var decoded envelope
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	}
	return recorder, decoded
}

func refreshCookieOf(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == constants.RefreshTokenCookieName {
			return cookie
		}
	}
	t.Fatalf("response carries no %s cookie", constants.RefreshTokenCookieName)
	return nil
}

func TestHandler_SignUpAndSignIn(t *testing.T) {
	router := newRouter(newHarness(t, options{}))

	recorder, body := call(t, router, http.MethodPost, "/api/v1/auth/signup",
		`{"email":"User@Example.com","password":"correct-horse-1","nickname":"Reader"}`, nil)
	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, "user@example.com", body.Data.User.Email)
	assert.Equal(t, "Bearer", body.Data.TokenType)
	assert.NotContains(t, recorder.Body.String(), "password")

	cookie := refreshCookieOf(t, recorder)
	assert.Equal(t, body.Data.RefreshToken, cookie.Value)
	assert.Equal(t, constants.RefreshTokenCookiePath, cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	recorder, body = call(t, router, http.MethodPost, "/api/v1/auth/signin",
		`{"email":"user@example.com","password":"wrong-password-9"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", body.Code)

	recorder, body = call(t, router, http.MethodPost, "/api/v1/auth/signin", `{"email":"user@example.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)

	recorder, _ = call(t, router, http.MethodPost, "/api/v1/auth/signin", `{"email":`, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandler_SignIn_Locked(t *testing.T) {
	h := newHarness(t, options{})
	router := newRouter(h)
	h.signUp(t, "user@example.com")

	for range 5 {
		call(t, router, http.MethodPost, "/api/v1/auth/signin", `{"email":"user@example.com","password":"wrong-password-9"}`, nil)
	}

	recorder, body := call(t, router, http.MethodPost, "/api/v1/auth/signin",
		`{"email":"user@example.com","password":"correct-horse-1"}`, nil)
	assert.Equal(t, http.StatusLocked, recorder.Code)
	assert.Equal(t, "ACCOUNT_LOCKED", body.Code)
}

func TestHandler_Refresh(t *testing.T) {
	h := newHarness(t, options{})
	router := newRouter(h)
	pair := h.signUp(t, "user@example.com")

	withCookie := func(request *http.Request) {
		request.AddCookie(&http.Cookie{Name: constants.RefreshTokenCookieName, Value: pair.RefreshToken})
	}

	recorder, body := call(t, router, http.MethodPost, "/api/v1/auth/refresh", "", withCookie)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEqual(t, pair.RefreshToken, body.Data.RefreshToken)
	assert.Equal(t, body.Data.RefreshToken, refreshCookieOf(t, recorder).Value)

	recorder, body = call(t, router, http.MethodPost, "/api/v1/auth/refresh", "", withCookie)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Code)

	recorder, body = call(t, router, http.MethodPost, "/api/v1/auth/refresh", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

func TestHandler_SignOut(t *testing.T) {
	h := newHarness(t, options{})
	router := newRouter(h)
	pair := h.signUp(t, "user@example.com")

	bearer := func(request *http.Request) {
		request.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}

	recorder, _ := call(t, router, http.MethodPost, "/api/v1/auth/signout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder, _ = call(t, router, http.MethodPost, "/api/v1/auth/signout", "", bearer)
	require.Equal(t, http.StatusNoContent, recorder.Code)
	cleared := refreshCookieOf(t, recorder)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	// The same access token is now rejected by authentication itself
	recorder, body := call(t, router, http.MethodPost, "/api/v1/auth/signout", "", bearer)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Code)
}

func TestHandler_ChangePassword(t *testing.T) {
	h := newHarness(t, options{})
	router := newRouter(h)
	pair := h.signUp(t, "user@example.com")
	h.signUp(t, "other@example.com")

	bearer := func(request *http.Request) {
		request.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}

	recorder, body := call(t, router, http.MethodPost, "/api/v1/auth/password",
		`{"current_password":"wrong-password-9","new_password":"brand-new-pass-2"}`, bearer)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", body.Code)

	recorder, body = call(t, router, http.MethodPost, "/api/v1/auth/password",
		`{"current_password":"correct-horse-1","new_password":"brand-new-pass-2","refresh_token":"`+pair.RefreshToken+`"}`, bearer)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Zero(t, body.Data.SessionsRevoked)
}
