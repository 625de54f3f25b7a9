package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestGatewayAuthDisabledWhenKeyEmpty(t *testing.T) {
	h := GatewayAuth("")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/challenges", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayAuthRejectsMissingOrWrongKey(t *testing.T) {
	h := GatewayAuth("s3cret")(okHandler())

	for name, set := range map[string]func(*http.Request){
		"missing": func(r *http.Request) {},
		"wrong":   func(r *http.Request) { r.Header.Set("X-Gateway-Key", "nope") },
		"basic":   func(r *http.Request) { r.Header.Set("Authorization", "Basic s3cret") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/challenges", nil)
		set(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.JSONEq(t, `{"error":"gateway key missing or invalid"}`, rec.Body.String(), name)
	}
}

func TestGatewayAuthAcceptsKeyHeaderAndBearer(t *testing.T) {
	h := GatewayAuth("s3cret")(okHandler())

	byHeader := httptest.NewRequest(http.MethodGet, "/api/challenges", nil)
	byHeader.Header.Set("X-Gateway-Key", "s3cret")

	byBearer := httptest.NewRequest(http.MethodGet, "/api/challenges", nil)
	byBearer.Header.Set("Authorization", "Bearer s3cret")

	for _, req := range []*http.Request{byHeader, byBearer} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestGatewayAuthExemptsHealth(t *testing.T) {
	h := GatewayAuth("s3cret")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggingRecordsStatusAndUser(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/challenges/xyz", nil)
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
	assert.Equal(t, "alice", line["user_id"])
	assert.Equal(t, "/api/challenges/xyz", line["path"])
	assert.NotZero(t, line["bytes"])
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://duel.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/challenges", nil)
	req.Header.Set("Origin", "https://duel.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://duel.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Gateway-Key")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}

func TestCORSDisallowedOrigin(t *testing.T) {
	h := CORS([]string{"https://duel.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/challenges", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type recordingLimiter struct {
	keys    []string
	allowed bool
}

func (l *recordingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allowed, nil
}

func TestRateLimitKeysByUserThenIP(t *testing.T) {
	limiter := &recordingLimiter{allowed: true}
	h := RateLimit(limiter, 10, time.Minute)(okHandler())

	withUser := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	withUser.Header.Set("X-User-ID", "bob")
	h.ServeHTTP(httptest.NewRecorder(), withUser)

	anon := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	anon.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), anon)

	require.Len(t, limiter.keys, 2)
	assert.Equal(t, "rl:user:bob", limiter.keys[0])
	assert.Equal(t, "rl:ip:203.0.113.7", limiter.keys[1])
}

func TestRateLimitBlocks(t *testing.T) {
	h := RateLimit(&recordingLimiter{allowed: false}, 10, time.Minute)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
