package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/btouchard/crier/internal/hub"
)

// FrameSender abstracts the websocket hub.
type FrameSender interface {
	SendToUser(ctx context.Context, userID int64, frame hub.Frame) error
}

// PushNotifier forwards events to the user's live connections as
// ReceiveNotification frames.
type PushNotifier struct {
	sender  FrameSender
	timeout time.Duration
}

// NewPushNotifier creates a PushNotifier.
func NewPushNotifier(sender FrameSender) *PushNotifier {
	return &PushNotifier{sender: sender, timeout: 5 * time.Second}
}

// Notify publishes the frame. Failures are logged; the notification row is
// already committed and is picked up on the client's next reconcile.
func (n *PushNotifier) Notify(event Event) {
	if event.UserID == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	frame := hub.Frame{
		Type: hub.TypeReceiveNotification,
		Payload: hub.NotificationPayload{
			ID:       event.NotificationID,
			Message:  event.Message,
			TaskID:   event.TaskID,
			Severity: event.Severity,
		},
	}
	if err := n.sender.SendToUser(ctx, event.UserID, frame); err != nil {
		slog.Warn("push delivery failed",
			"type", event.Type,
			"task_id", event.TaskID,
			"user_id", event.UserID,
			"error", err)
		return
	}
	slog.Debug("push delivered", "type", event.Type, "user_id", event.UserID)
}
