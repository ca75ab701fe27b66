// Package httpapi implements the operator control surface (C12): a thin
// bearer-authenticated HTTP API for triggering manual crawls, resuming
// paused websites, and inspecting crawl/webhook history. It is not the
// external management API that owns website/product CRUD.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/obsrv/monitor/internal/config"
)

type contextKey string

const operatorKey contextKey = "operator_subject"

// OperatorAuth requires a bearer token matching cfg.OperatorToken verbatim,
// or a JWT signed with cfg.OperatorJWTSecret when that's configured. Either
// credential is sufficient; at least one must be set or every request is
// rejected.
func OperatorAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			subject, ok := authenticate(cfg, token)
			if !ok {
				http.Error(w, `{"error":"invalid operator token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(cfg *config.Config, token string) (string, bool) {
	if cfg.OperatorToken != "" && token == cfg.OperatorToken {
		return "operator-token", true
	}
	if cfg.OperatorJWTSecret != "" {
		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.OperatorJWTSecret), nil
		})
		if err == nil && parsed.Valid {
			if sub, ok := claims["sub"].(string); ok && sub != "" {
				return sub, true
			}
			return "operator-jwt", true
		}
	}
	return "", false
}

// rateLimitKey extracts the token itself as the httprate bucket key, so
// distinct operator credentials don't share a rate-limit window.
func rateLimitKey(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "anonymous", nil
	}
	return strings.TrimPrefix(authHeader, "Bearer "), nil
}
