// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package metrics declares the Prometheus collectors for security outcomes.
// They are registered on the default registry and exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatekeeper"

var (
	// SignIns counts sign-in attempts by outcome (success, invalid_credentials, locked).
	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signin_attempts_total",
		Help:      "Sign-in attempts by outcome.",
	}, []string{"outcome"})

	// Lockouts counts accounts that entered a lockout window.
	Lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_lockouts_total",
		Help:      "Accounts locked after repeated failed sign-ins.",
	})

	// RateLimited counts requests rejected by the sensitive endpoint gate.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client token bucket.",
	}, []string{"path"})

	// IPDenied counts admin requests from addresses outside the allow-list.
	IPDenied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_ip_denied_total",
		Help:      "Admin requests rejected by the IP allow-list.",
	})

	// SessionsEvicted counts sessions revoked by the per-account cap.
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_evicted_total",
		Help:      "Sessions revoked to keep accounts under the session cap.",
	})

	// TokensRevoked counts access tokens added to the revocation cache.
	TokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_tokens_revoked_total",
		Help:      "Access tokens blacklisted at sign-out.",
	})

	// RefreshRejected counts refresh attempts with unusable tokens.
	RefreshRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_rejected_total",
		Help:      "Refresh attempts rejected as invalid, reused or expired.",
	})
)

// Sign-in outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
)
