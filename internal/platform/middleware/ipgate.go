// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/taibuivan/gatekeeper/internal/platform/apperr"
	"github.com/taibuivan/gatekeeper/internal/platform/cidr"
	"github.com/taibuivan/gatekeeper/internal/platform/config"
	"github.com/taibuivan/gatekeeper/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeeper/internal/platform/metrics"
	"github.com/taibuivan/gatekeeper/internal/platform/respond"
)

/*
IPGate restricts administrative paths to an allow-list of CIDR ranges.

Description: When the policy is disabled, or the path matches none of the
configured glob patterns, the request passes through. Otherwise the client IP
must fall inside at least one allowed range, or the request is rejected with
403 IP_FORBIDDEN. An empty allow-list denies every protected request.

Parameters:
  - policy: config.AdminIPConfig
  - allowed: *cidr.Matcher

Returns:
  - func(http.Handler) http.Handler
*/
func IPGate(policy config.AdminIPConfig, allowed *cidr.Matcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.Enabled {
			return next
		}

		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if !matchesAny(policy.PathPatterns, canonicalPath(request)) {
				next.ServeHTTP(writer, request)
				return
			}

			clientIP := ClientIP(request)
			if !allowed.Allows(clientIP) {
				metrics.IPDenied.Inc()
				ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "admin_ip_denied",
					slog.String("client_ip", clientIP),
				)
				respond.Error(writer, request, apperr.IPForbidden())
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// matchesAny reports whether path matches a glob pattern. A trailing "/**" also covers the bare prefix.
func matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
		if prefix, found := strings.CutSuffix(pattern, "/**"); found && path == prefix {
			return true
		}
	}
	return false
}
