package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user id.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id stored by BearerAuth.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok && id != 0
}

// BearerAuth returns middleware that validates Bearer tokens and stores the
// resolved user id in the request context.
func BearerAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				challengeAuth(w, "missing Authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				challengeAuth(w, "invalid Authorization header format")
				return
			}

			userID, err := v.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				slog.Debug("token validation failed", "error", err)
				invalidToken(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

// challengeAuth sends a 401 with a Bearer challenge for unauthenticated requests.
func challengeAuth(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="crier"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

// invalidToken sends a 401 for requests with an invalid/expired Bearer token.
func invalidToken(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

// SecurityHeaders sets conservative response headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
