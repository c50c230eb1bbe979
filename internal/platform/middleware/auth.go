package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// SessionValidator defines the interface for validating session tokens.
type SessionValidator interface {
	ValidateToken(tokenString string) (*SessionClaims, error)
}

// SessionClaims represents the claims we expect from the session validator.
type SessionClaims struct {
	SessionID string
}

type contextKeySessionID struct{}

// GetSessionID retrieves the checkout session ID from the context.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeySessionID{}).(string); ok {
		return id
	}
	return ""
}

// WithSessionID injects a session ID into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID{}, sessionID)
}

// RequireSession rejects requests without a valid bearer session token and
// places the session ID in the request context.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				logger.WarnContext(r.Context(), "missing session token",
					"request_id", GetRequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid session token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
				return
			}

			ctx := WithSessionID(r.Context(), claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
