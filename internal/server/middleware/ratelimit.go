package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// RateLimit returns middleware that budgets requests per caller using the
// provided domain.RateLimiter. Callers are identified by the proxy-injected
// X-User-ID when present, otherwise by client IP, so one noisy player cannot
// exhaust the budget of everyone behind the same NAT.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), limiterKey(r), limit, window)
			if err != nil {
				// Fail open on limiter errors rather than blocking the lobby.
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func limiterKey(r *http.Request) string {
	if uid := r.Header.Get("X-User-ID"); uid != "" {
		return "rl:user:" + uid
	}
	return "rl:ip:" + extractClientIP(r)
}

// extractClientIP resolves the originating client IP from the standard proxy
// headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
