// Package middleware provides HTTP middleware for the gateway.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/auth"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for user ID.
	UserIDKey ContextKey = "user_id"
)

// TokenQueryParam carries the bearer token for clients that cannot set
// headers, such as a browser EventSource.
const TokenQueryParam = "access_token"

// CredentialStore receives the bearer credential of each request.
type CredentialStore interface {
	SetToken(token string) error
	Subject() string
}

// Auth captures the request's bearer token into the credential store used
// for outbound calls to the remote services. Requests without a usable token
// are rejected with 401; a token for another principal than the one the
// session is bound to is rejected with 403.
func Auth(creds CredentialStore, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			if err := creds.SetToken(token); err != nil {
				status, msg := http.StatusUnauthorized, "invalid token"
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					msg = "token expired"
				case errors.Is(err, auth.ErrCredentialMismatch):
					status, msg = http.StatusForbidden, "session bound to another credential"
				}
				log.Debug("rejected bearer token", zap.Int("status", status), zap.Error(err))
				writeAuthError(w, status, msg)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, creds.Subject())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get(TokenQueryParam); token != "" {
			return token, nil
		}
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
