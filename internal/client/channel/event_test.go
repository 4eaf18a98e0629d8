package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		frame   string
		want    Notification
		raw     string
		wantErr bool
	}{
		{
			name:  "string payload",
			frame: `{"type":"ReceiveNotification","payload":"Task #4 finished"}`,
			want:  Notification{Message: "Task #4 finished"},
			raw:   "Task #4 finished",
		},
		{
			name:  "object payload",
			frame: `{"type":"ReceiveNotification","payload":{ "id": 12, "message": "Task #4 assigned", "taskId": 4, "severity": "info" }}`,
			want:  Notification{ServerID: 12, Message: "Task #4 assigned", TaskID: 4, Severity: "info"},
			raw:   `{"id":12,"message":"Task #4 assigned","taskId":4,"severity":"info"}`,
		},
		{
			name:  "pre-encoded object in a string",
			frame: `{"type":"ReceiveNotification","payload":"{\"message\":\"hi\",\"taskId\":2}"}`,
			want:  Notification{Message: "hi", TaskID: 2},
			raw:   `{"message":"hi","taskId":2}`,
		},
		{
			name:  "unknown fields and key order do not change raw",
			frame: `{"type":"ReceiveNotification","payload":{"taskId":4,"extra":true,"message":"Task #4 assigned","id":12}}`,
			want:  Notification{ServerID: 12, Message: "Task #4 assigned", TaskID: 4},
			raw:   `{"id":12,"message":"Task #4 assigned","taskId":4}`,
		},
		{name: "unknown type", frame: `{"type":"Other","payload":"x"}`, wantErr: true},
		{name: "null payload", frame: `{"type":"ReceiveNotification","payload":null}`, wantErr: true},
		{name: "object without message", frame: `{"type":"ReceiveNotification","payload":{"id":1}}`, wantErr: true},
		{name: "not json", frame: `hello`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev, err := decodeFrame([]byte(tt.frame))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KindReceiveNotification, ev.Kind)
			assert.Equal(t, tt.want, ev.Notification)
			assert.Equal(t, tt.raw, ev.Raw)
		})
	}
}

func TestDecodeFrame_ObjectAndEncodedStringShareRaw(t *testing.T) {
	t.Parallel()

	asObject, err := decodeFrame([]byte(`{"type":"ReceiveNotification","payload":{"id":3,"message":"Task #9 accepted","taskId":9}}`))
	require.NoError(t, err)
	asString, err := decodeFrame([]byte(`{"type":"ReceiveNotification","payload":"{ \"id\": 3, \"message\": \"Task #9 accepted\", \"taskId\": 9 }"}`))
	require.NoError(t, err)

	assert.Equal(t, asObject.Raw, asString.Raw)
	assert.Equal(t, asObject.Notification, asString.Notification)
}

func TestEventKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ReceiveNotification", KindReceiveNotification.String())
	assert.Equal(t, "EventKind(0)", EventKind(0).String())
}
