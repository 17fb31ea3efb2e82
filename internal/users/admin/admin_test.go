// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/testkit"
	"github.com/taibuivan/gatekeeper/internal/users/admin"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
)

const (
	operatorID = "0194a3b2-0000-7000-8000-0000000000ad"
	lockedID   = "0194a3b2-0000-7000-8000-00000000000c"
	missingID  = "0194a3b2-0000-7000-8000-0000000000ff"
)

func newService(t *testing.T) (*admin.Service, *testkit.Store, *testkit.Clock) {
	t.Helper()

	store := testkit.NewStore()
	clock := testkit.NewClock()

	until := clock.Now().Add(10 * time.Minute)
	store.Users().Put(&auth.User{
		ID:             lockedID,
		Email:          "locked@example.com",
		Status:         auth.StatusActive,
		FailedAttempts: 5,
		LockoutUntil:   &until,
	})

	policy := config.LockoutConfig{Enabled: true, MaxFailedAttempts: 5, LockDurationMinutes: 15}
	guard := lockout.NewGuard(store.Lockout(), nil, policy).WithClock(clock.Now)
	return admin.NewService(store.Users(), guard), store, clock
}

func asRole(role sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := &sec.Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: operatorID},
				Roles:            []string{string(role)},
				Type:             sec.TokenAccess,
			}
			next.ServeHTTP(writer, request.WithContext(ctxutil.WithAuthUser(request.Context(), claims)))
		})
	}
}

func serve(service *admin.Service, role sec.UserRole, method, path string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Use(asRole(role))
	router.Mount("/admin", admin.NewHandler(service).Routes())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, path, nil))
	return recorder
}

func TestService_LockoutStatusAndUnlock(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newService(t)

	status, err := service.LockoutStatus(ctx, lockedID)
	require.NoError(t, err)
	assert.True(t, status.Locked)
	assert.Equal(t, 5, status.FailedAttempts)
	assert.Zero(t, status.RemainingAttempts)

	status, err = service.UnlockByEmail(ctx, operatorID, "  LOCKED@example.com")
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Equal(t, 5, status.RemainingAttempts)
	assert.Nil(t, status.LockoutUntil)

	stored, _ := store.User(lockedID)
	assert.Zero(t, stored.FailedAttempts)

	_, err = service.UnlockByEmail(ctx, operatorID, "nobody@example.com")
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.CodeNotFound, appErr.Code)
}

func TestHandler_Admin(t *testing.T) {
	service, _, _ := newService(t)

	tests := []struct {
		name   string
		role   sec.UserRole
		method string
		path   string
		status int
	}{
		{"user_forbidden", sec.RoleUser, http.MethodGet, "/admin/accounts/" + lockedID + "/lockout", http.StatusForbidden},
		{"invalid_id", sec.RoleAdmin, http.MethodGet, "/admin/accounts/42/lockout", http.StatusBadRequest},
		{"unknown_account", sec.RoleAdmin, http.MethodPost, "/admin/accounts/" + missingID + "/unlock", http.StatusNotFound},
		{"status", sec.RoleAdmin, http.MethodGet, "/admin/accounts/" + lockedID + "/lockout", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := serve(service, tt.role, tt.method, tt.path)
			assert.Equal(t, tt.status, recorder.Code)
		})
	}

	recorder := serve(service, sec.RoleAdmin, http.MethodPost, "/admin/accounts/"+lockedID+"/unlock")
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Data admin.LockoutStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.False(t, body.Data.Locked)
	assert.Zero(t, body.Data.FailedAttempts)
}

/*
TestHandler_UnlockRecordsActor verifies that the authenticated operator is
named in the audit log entry.
*/
func TestHandler_UnlockRecordsActor(t *testing.T) {
	service, _, _ := newService(t)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			next.ServeHTTP(writer, request.WithContext(ctxutil.WithLogger(request.Context(), logger)))
		})
	})
	router.Use(asRole(sec.RoleAdmin))
	router.Mount("/admin", admin.NewHandler(service).Routes())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/admin/accounts/"+lockedID+"/unlock", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	assert.Contains(t, logs.String(), `"msg":"admin_account_unlocked"`)
	assert.Contains(t, logs.String(), `"actor_id":"`+operatorID+`"`)
}
