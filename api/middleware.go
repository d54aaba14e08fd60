package api

import (
	"context"
	"net/http"
	"strings"

	"chat-relay/auth"
	"chat-relay/domain"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Authenticated wraps a handler with bearer-token validation and places
// the caller's user id in the request context.
func Authenticated(tokens *auth.TokenManager, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		claims, err := tokens.Validate(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, domain.UserID(claims.UserID))
		next(w, r.WithContext(ctx))
	}
}

// CallerID retrieves the authenticated user from the request context. Only
// valid behind the Authenticated middleware.
func CallerID(r *http.Request) domain.UserID {
	userID, _ := r.Context().Value(userIDKey).(domain.UserID)
	return userID
}
