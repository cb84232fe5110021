package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

// ErrTokenRequired is returned when no token was presented
var ErrTokenRequired = errors.New("token required")

// TokenValidator resolves a bearer token to a user id
type TokenValidator interface {
	ValidateJWT(token string) (string, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the caller's user id in the request context
func AuthMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			userID, err := tokens.ValidateJWT(strings.TrimSpace(token))
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// ValidateWebSocketToken validates the JWT passed as a query parameter on
// WebSocket upgrades
func ValidateWebSocketToken(token string, tokens TokenValidator) (string, error) {
	if token == "" {
		return "", ErrTokenRequired
	}
	return tokens.ValidateJWT(token)
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
