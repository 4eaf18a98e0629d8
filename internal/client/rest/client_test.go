package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/crier/internal/auth"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Notifications(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/notifications", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]Notification{
			{ID: 2, UserID: 9, Message: "Task #1 assigned", TaskID: 1, Severity: "info"},
			{ID: 1, UserID: 9, Message: "hello", Read: true},
		})
	})

	c := New(srv.URL+"/", auth.NewStaticCredentials("tok"), nil)
	got, err := c.Notifications(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[0].TaskID)
	assert.True(t, got[1].Read)
}

func TestClient_MarkRead(t *testing.T) {
	t.Parallel()

	var paths []string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/notifications/read-all":
			_, _ = w.Write([]byte(`{"updated":3}`))
		case "/api/notifications/404/read":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	c := New(srv.URL, auth.NewStaticCredentials("tok"), nil)
	require.NoError(t, c.MarkRead(context.Background(), 5))
	require.NoError(t, c.MarkAllRead(context.Background()))
	assert.ErrorIs(t, c.MarkRead(context.Background(), 404), ErrNotFound)
	assert.Equal(t, []string{"/api/notifications/5/read", "/api/notifications/read-all", "/api/notifications/404/read"}, paths)
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer expired" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
	})

	_, err := New(srv.URL, auth.NewStaticCredentials(""), nil).Notifications(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = New(srv.URL, auth.NewStaticCredentials("expired"), nil).Notifications(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = New(srv.URL, auth.NewStaticCredentials("tok"), nil).Notifications(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal error")
}
