package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const SessionIDKey contextKey = "session_id"

// SessionID lifts the session ID out of the route into the request
// context, so access logs and error reports can tag it.
func SessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chi.URLParam(r, "id"); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), SessionIDKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// GetSessionID returns the session ID from context.
func GetSessionID(ctx context.Context) string {
	sessionID, _ := ctx.Value(SessionIDKey).(string)
	return sessionID
}
