// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/constants"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/metrics"
	"github.com/taibuivan/gatekeeper/internal/platform/ratelimit"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
)

/*
RateGate throttles the credential endpoints with one token bucket per client IP.

Description: Only the method and path pairs in [constants.RateLimitedEndpoints]
consume tokens; every other request passes through untouched. Gated responses
carry X-RateLimit-Limit and X-RateLimit-Remaining. An exhausted bucket yields
429 RATE_LIMITED with Retry-After and the request never reaches the handler.

Parameters:
  - buckets: *ratelimit.Registry

Returns:
  - func(http.Handler) http.Handler
*/
func RateGate(buckets *ratelimit.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if !isRateLimited(request) {
				next.ServeHTTP(writer, request)
				return
			}

			clientIP := ClientIP(request)
			allowed := buckets.TryConsume(clientIP)

			header := writer.Header()
			header.Set(constants.HeaderRateLimitLimit, strconv.FormatInt(buckets.Capacity(), 10))
			header.Set(constants.HeaderRateLimitRemaining, strconv.FormatInt(buckets.Available(clientIP), 10))

			if !allowed {
				retryAfter := max(1, int(math.Ceil(buckets.RetryAfter(clientIP).Seconds())))
				header.Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))

				metrics.RateLimited.WithLabelValues(canonicalPath(request)).Inc()
				ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "rate_limit_exceeded",
					slog.String("client_ip", clientIP),
					slog.Int("retry_after_seconds", retryAfter),
				)

				respond.Error(writer, request, apperr.RateLimited(retryAfter))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// isRateLimited matches on the canonical path, so "//signin" or "signin/" cannot slip past.
func isRateLimited(request *http.Request) bool {
	requestPath := canonicalPath(request)
	for _, endpoint := range constants.RateLimitedEndpoints {
		if endpoint.Method == request.Method && endpoint.Path == requestPath {
			return true
		}
	}
	return false
}
