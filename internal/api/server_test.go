// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/gatekeeper/internal/api"
	"github.com/taibuivan/gatekeeper/internal/platform/cidr"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/ratelimit"
	"github.com/taibuivan/gatekeeper/internal/platform/revocation"
	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/internal/testkit"
	"github.com/taibuivan/gatekeeper/internal/users/account"
	"github.com/taibuivan/gatekeeper/internal/users/admin"
	"github.com/taibuivan/gatekeeper/internal/users/auth"
	"github.com/taibuivan/gatekeeper/internal/users/lockout"
	"github.com/taibuivan/gatekeeper/internal/users/session"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	password   = "correct-horse-1"
	adminID    = "0194a3b2-0000-7000-8000-0000000000ad"
)

type testServer struct {
	handler http.Handler
	auth    *auth.Service
	store   *testkit.Store
}

func newTestServer(t *testing.T, readiness api.HealthDependencies) testServer {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := testkit.NewStore()
	clock := testkit.NewClock()

	cfg := &config.Config{
		ServerPort:  "0",
		Environment: "test",
		Lockout:     config.LockoutConfig{Enabled: true, MaxFailedAttempts: 5, LockDurationMinutes: 15},
		Session:     config.SessionConfig{MaxPerUser: 5},
		AdminIP:     config.AdminIPConfig{Enabled: true, Allowed: []string{"10.0.0.0/8"}, PathPatterns: []string{"/admin/**"}},
	}

	codec, err := sec.NewTokenCodec(testSecret, "gatekeeper.test", 15*time.Minute, time.Hour)
	require.NoError(t, err)
	codec.WithClock(clock.Now)

	buckets, err := ratelimit.NewRegistry(ratelimit.Policy{Capacity: 10, RefillTokens: 10, RefillPeriod: time.Minute}, 100, 10*time.Minute, clock.Now)
	require.NoError(t, err)

	registry := session.NewRegistry(store.Sessions(), cfg.Session).WithClock(clock.Now)
	guard := lockout.NewGuard(store.Lockout(), nil, cfg.Lockout).WithClock(clock.Now)
	revoked := revocation.NewMemoryCache(100, time.Hour).WithClock(clock.Now)
	authService := auth.NewService(store.Users(), registry, guard, codec, revoked).WithClock(clock.Now)

	liveness, ready := api.NewHealthHandlers(readiness, logger)
	server := api.NewServer(context.Background(), cfg, logger, api.Guards{
		Verifier:      authService,
		Buckets:       buckets,
		AdminNetworks: cidr.NewMatcher(cfg.AdminIP.Allowed, logger),
	}, api.Handlers{
		Liveness:  liveness,
		Readiness: ready,
		Auth:      auth.NewHandler(authService),
		Account:   account.NewHandler(account.NewService(store.Users(), registry)),
		Admin:     admin.NewHandler(admin.NewService(store.Users(), guard)),
	})

	return testServer{handler: server.Handler(), auth: authService, store: store}
}

func (s testServer) do(method, path, body, clientIP, token string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Forwarded-For", clientIP)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func codeOf(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body.Code
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, api.HealthDependencies{
		CheckDatabase: func(context.Context) error { return nil },
		CheckCache:    func(context.Context) error { return errors.New("connection refused") },
	})

	recorder := s.do(http.MethodGet, "/health", "", "203.0.113.1", "")
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = s.do(http.MethodGet, "/ready", "", "203.0.113.1", "")
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"degraded"`)
	assert.Contains(t, recorder.Body.String(), "connection refused")

	recorder = s.do(http.MethodGet, "/metrics", "", "203.0.113.1", "")
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = s.do(http.MethodGet, "/nowhere", "", "203.0.113.1", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "NOT_FOUND", codeOf(t, recorder))
}

/*
TestServer_RateGate verifies that credential endpoints are throttled per client IP.
*/
func TestServer_RateGate(t *testing.T) {
	s := newTestServer(t, api.HealthDependencies{})
	body := `{"email":"nobody@example.com","password":"wrong-password-9"}`

	for range 10 {
		recorder := s.do(http.MethodPost, "/api/v1/auth/signin", body, "203.0.113.50", "")
		require.Equal(t, http.StatusUnauthorized, recorder.Code)
	}

	recorder := s.do(http.MethodPost, "/api/v1/auth/signin", body, "203.0.113.50", "")
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "RATE_LIMITED", codeOf(t, recorder))
	assert.NotEmpty(t, recorder.Header().Get("Retry-After"))
	assert.Equal(t, "0", recorder.Header().Get("X-RateLimit-Remaining"))

	// Other clients and ungated routes are unaffected
	recorder = s.do(http.MethodPost, "/api/v1/auth/signin", body, "203.0.113.51", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = s.do(http.MethodGet, "/api/v1/me", "", "203.0.113.50", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// Path spellings routed to the sign-in handler draw from the same bucket
	variants := []string{
		"/api/v1/auth//signin",
		"/api/v1/auth/signin/",
		"/api/v1/auth/./signin",
		"//api/v1/auth/signin",
		"/api/v1/me/../auth/signin",
	}
	for i := range 10 {
		recorder := s.do(http.MethodPost, variants[i%len(variants)], body, "203.0.113.52", "")
		require.Equal(t, http.StatusUnauthorized, recorder.Code, variants[i%len(variants)])
	}
	for _, variant := range variants {
		recorder := s.do(http.MethodPost, variant, body, "203.0.113.52", "")
		assert.Equal(t, http.StatusTooManyRequests, recorder.Code, variant)
	}
}

/*
TestServer_AdminGate verifies that the admin surface needs both an allowed network and the admin role.
*/
func TestServer_AdminGate(t *testing.T) {
	s := newTestServer(t, api.HealthDependencies{})

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)
	s.store.Users().Put(&auth.User{
		ID:           adminID,
		Email:        "ops@example.com",
		PasswordHash: &hash,
		Roles:        []sec.UserRole{sec.RoleAdmin},
		Status:       auth.StatusActive,
	})

	adminPair, err := s.auth.SignIn(context.Background(), auth.SignInInput{Email: "ops@example.com", Password: password})
	require.NoError(t, err)

	userPair, err := s.auth.SignUp(context.Background(), auth.SignUpInput{Email: "user@example.com", Password: password})
	require.NoError(t, err)

	path := "/admin/accounts/" + userPair.User.ID + "/lockout"

	tests := []struct {
		name     string
		path     string
		clientIP string
		token    string
		status   int
		code     string
	}{
		{"outside_network", path, "198.51.100.1", adminPair.AccessToken, http.StatusForbidden, "IP_FORBIDDEN"},
		{"outside_network_double_slash", "/" + path, "198.51.100.1", "", http.StatusForbidden, "IP_FORBIDDEN"},
		{"outside_network_dot_segment", "/." + path, "198.51.100.1", "", http.StatusForbidden, "IP_FORBIDDEN"},
		{"outside_network_parent_segment", "/api/.." + path, "198.51.100.1", "", http.StatusForbidden, "IP_FORBIDDEN"},
		{"anonymous_inside", path, "10.1.2.3", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"user_inside", path, "10.1.2.3", userPair.AccessToken, http.StatusForbidden, "FORBIDDEN"},
		{"admin_inside", path, "10.1.2.3", adminPair.AccessToken, http.StatusOK, ""},
		{"admin_inside_double_slash", "/" + path, "10.1.2.3", adminPair.AccessToken, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := s.do(http.MethodGet, tt.path, "", tt.clientIP, tt.token)
			assert.Equal(t, tt.status, recorder.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, codeOf(t, recorder))
			}
		})
	}

	recorder := s.do(http.MethodGet, "/admin", "", "198.51.100.1", adminPair.AccessToken)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}
