package tunnel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNgrokTunnel_StartRequiresAuthToken(t *testing.T) {
	t.Parallel()

	tun := NewNgrok("", "crier.example.ngrok.app")

	_, err := tun.Start(context.Background(), "127.0.0.1:8430")
	assert.ErrorIs(t, err, ErrNoAuthToken)
	assert.Empty(t, tun.PublicURL())
	assert.Nil(t, tun.Listener())
}

func TestNgrokTunnel_CloseBeforeStart(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewNgrok("tok", "").Close())
}

func TestWebsocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base, path, want string
	}{
		{"https://crier.ngrok.app", "/hub/notifications", "wss://crier.ngrok.app/hub/notifications"},
		{"https://crier.ngrok.app/", "hub", "wss://crier.ngrok.app/hub"},
		{"http://127.0.0.1:8430", "/hub/notifications", "ws://127.0.0.1:8430/hub/notifications"},
		{"crier.internal", "/hub", "crier.internal/hub"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WebsocketURL(tt.base, tt.path), tt.base)
	}
}
