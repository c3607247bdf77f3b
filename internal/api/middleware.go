package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hertzfm/hertz/internal/ratelimit"
)

type ctxKey int

const userIDKey ctxKey = iota

// requireUser extracts the authenticated user from the X-User-ID header
// set by the auth gateway in front of this service. Requests without a
// valid UUID are rejected before reaching any handler.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-ID")
		if _, err := uuid.Parse(id); err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid user identity"})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the authenticated user ID placed by requireUser.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// throttle applies a per-user rate limit rule. The limiter fails open on
// Redis errors, so an outage degrades to unthrottled rather than down.
func throttle(limiter *ratelimit.Limiter, rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, _ := limiter.Allow(r.Context(), userID(r), rule)
			if remaining, err := limiter.Remaining(r.Context(), userID(r), rule); err == nil {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
			if !ok {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
