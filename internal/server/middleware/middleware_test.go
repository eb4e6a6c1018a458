package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("0123456789abcdef0123")

func sign(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserID(r.Context())
		io.WriteString(w, id)
	})
}

func TestAuth(t *testing.T) {
	valid := sign(t, secret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	expired := sign(t, secret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := sign(t, []byte("another-secret-value"), jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	noExp := sign(t, secret, jwt.MapClaims{"sub": "u1"})

	h := Auth(secret, "/api/health")(echoUser())

	cases := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"valid", "/api/x", "Bearer " + valid, http.StatusOK, "u1"},
		{"public path", "/api/health", "", http.StatusOK, ""},
		{"missing", "/api/x", "", http.StatusUnauthorized, ""},
		{"expired", "/api/x", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong key", "/api/x", "Bearer " + wrongKey, http.StatusUnauthorized, ""},
		{"no expiry", "/api/x", "Bearer " + noExp, http.StatusUnauthorized, ""},
		{"not bearer", "/api/x", "Basic " + valid, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			} else {
				assert.JSONEq(t, `{"statusCode":401,"message":"`+messageOf(tc.header)+`"}`, rec.Body.String())
			}
		})
	}
}

func messageOf(header string) string {
	if header == "" || header[:6] != "Bearer" {
		return "missing authentication token"
	}
	return "invalid authentication token"
}

func TestAuth_WebSocketQueryToken(t *testing.T) {
	valid := sign(t, secret, jwt.MapClaims{"sub": "u9", "exp": time.Now().Add(time.Hour).Unix()})
	h := Auth(secret)(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+valid, nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "u9", rec.Body.String())

	// The query parameter is ignored on plain requests.
	req = httptest.NewRequest(http.MethodGet, "/api/x?token="+valid, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(echoUser())

	req := httptest.NewRequest(http.MethodOptions, "/api/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deny := &stubLimiter{}
	h := RateLimit(deny, 10, 2*time.Second, logger)(echoUser())
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req = req.WithContext(WithUserID(req.Context(), "u1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"ratelimit:api:user:u1"}, deny.keys)

	broken := &stubLimiter{err: errors.New("redis down")}
	h = RateLimit(broken, 10, time.Second, logger)(echoUser())
	req = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ratelimit:api:ip:203.0.113.7"}, broken.keys)
}
