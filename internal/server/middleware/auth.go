package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id stored by Auth.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Auth returns middleware that validates an HS256 JWT carried as a Bearer
// token (or a "token" query parameter on WebSocket upgrades) and stores its
// "sub" claim as the user id. Paths in public skip authentication.
func Auth(secret []byte, public ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(public))
	for _, p := range public {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			raw := extractToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}
			userID, err := ParseToken(secret, raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// ParseToken verifies raw and returns its subject.
func ParseToken(secret []byte, raw string) (string, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("auth: subject: %w", err)
	}
	if sub == "" {
		return "", errors.New("auth: empty subject")
	}
	return sub, nil
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or, for WebSocket clients that cannot set headers, the token query parameter.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}
