package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// healthPath is exempt from gateway authentication so load balancers and
// uptime probes can reach it without the shared key.
const healthPath = "/api/health"

// GatewayAuth returns middleware that admits only requests carrying the
// shared gateway key. The lobby API sits behind a frontend proxy that
// injects the player identity headers (X-User-ID, X-Username); the key
// authenticates the proxy itself, not individual players. An empty key
// disables the check, which is the local development default.
func GatewayAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == healthPath {
				next.ServeHTTP(w, r)
				return
			}

			presented := gatewayKey(r)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"gateway key missing or invalid"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// gatewayKey reads the key from X-Gateway-Key, falling back to a Bearer
// token for clients that only speak Authorization.
func gatewayKey(r *http.Request) string {
	if key := r.Header.Get("X-Gateway-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok {
		if strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return ""
}
