package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifierFunc func(string) (int64, error)

func (f verifierFunc) Verify(token string) (int64, error) { return f(token) }

var onlyGood = verifierFunc(func(token string) (int64, error) {
	if token == "good" {
		return 42, nil
	}
	return 0, errors.New("bad token")
})

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserID(r.Context())
		if !ok {
			http.Error(w, "no user", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(strconv.FormatInt(id, 10)))
	})
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()

	h := BearerAuth(onlyGood)(echoUser())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
		{"good token", "Bearer good", http.StatusOK, "42"},
		{"scheme case-insensitive", "bearer good", http.StatusOK, "42"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, tt.wantStatus, rec.Code, tt.name)
		if tt.wantStatus == http.StatusUnauthorized {
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"), tt.name)
		} else {
			assert.Equal(t, tt.wantBody, rec.Body.String(), tt.name)
		}
	}
}

func TestUserID_AbsentOrZero(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := UserID(req.Context())
	assert.False(t, ok)

	_, ok = UserID(WithUser(req.Context(), 0))
	assert.False(t, ok)
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
