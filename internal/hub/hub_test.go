package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenAuth accepts tokens of the form "user-<id>" from a fixed table.
type tokenAuth map[string]int64

func (a tokenAuth) Verify(token string) (int64, error) {
	if id, ok := a[token]; ok {
		return id, nil
	}
	return 0, errors.New("unknown token")
}

var testAuth = tokenAuth{"alice": 1, "bob": 2}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(testAuth, nil, Options{SendBufferSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHub_ServeHTTP_RejectsMissingAndBadCredentials(t *testing.T) {
	t.Parallel()
	_, srv := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer mallory")
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_SendToUser_ReachesEveryConnectionOfThatUserOnly(t *testing.T) {
	t.Parallel()
	h, srv := startHub(t)

	first := dial(t, srv, "alice")
	second := dial(t, srv, "alice")
	other := dial(t, srv, "bob")

	require.Eventually(t, func() bool { return h.ClientCount() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, h.UserConnections(1))

	err := h.SendToUser(context.Background(), 1, Frame{
		Type:    TypeReceiveNotification,
		Payload: NotificationPayload{Message: "Task \"x\" was assigned to you", TaskID: 7},
	})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{first, second} {
		f := readFrame(t, conn)
		assert.Equal(t, TypeReceiveNotification, f.Type)
		payload, ok := f.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Task \"x\" was assigned to you", payload["message"])
		assert.InDelta(t, 7, payload["taskId"], 0)
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's frame")
}

func TestHub_ServeHTTP_AcceptsQueryToken(t *testing.T) {
	t.Parallel()
	h, srv := startHub(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?access_token=bob", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return h.UserConnections(2) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.SendToUser(context.Background(), 2, Frame{Type: TypeReceiveNotification, Payload: "plain text"}))
	f := readFrame(t, conn)
	assert.Equal(t, "plain text", f.Payload)
}

func TestHub_ClientClose_Unregisters(t *testing.T) {
	t.Parallel()
	h, srv := startHub(t)

	conn := dial(t, srv, "alice")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_SendToUser_NoConnectionsIsNotAnError(t *testing.T) {
	t.Parallel()
	h, _ := startHub(t)

	require.NoError(t, h.SendToUser(context.Background(), 99, Frame{Type: TypeReceiveNotification, Payload: "nobody home"}))
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/hub?access_token=q", nil)
	assert.Equal(t, "q", bearerToken(r))

	r.Header.Set("Authorization", "bearer h")
	assert.Equal(t, "h", bearerToken(r), "header wins over query")

	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(r))
}

func TestLocalBackplane_FullQueueReportsError(t *testing.T) {
	t.Parallel()

	b := NewLocalBackplane(1)
	require.NoError(t, b.Publish(context.Background(), Envelope{UserID: 1}))
	require.ErrorIs(t, b.Publish(context.Background(), Envelope{UserID: 1}), ErrBackplaneFull)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Envelope, 1)
	go func() { _ = b.Subscribe(ctx, func(e Envelope) { got <- e; cancel() }) }()

	select {
	case e := <-got:
		assert.Equal(t, int64(1), e.UserID)
	case <-time.After(time.Second):
		t.Fatal("envelope not delivered")
	}
}

func TestDialRedisBackplane_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := DialRedisBackplane(context.Background(), "not-a-redis-url", "crier:test")
	require.Error(t, err)
}
