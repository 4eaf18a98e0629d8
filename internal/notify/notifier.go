package notify

import (
	"log/slog"
	"time"
)

// Event is a committed task transition addressed to one user.
type Event struct {
	Type           string // "task.assigned", "task.accepted", "task.rejected", "task.returned", ...
	TaskID         int64
	UserID         int64
	NotificationID int64
	Message        string
	Severity       string // "success", "error", "info"
	CreatedAt      time.Time
}

// Notifier delivers task lifecycle notifications.
type Notifier interface {
	Notify(event Event)
}

// Hub dispatches events to multiple notifiers.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Notify sends an event to all registered notifiers. It never blocks the
// caller; each notifier runs on its own goroutine.
func (h *Hub) Notify(event Event) {
	for _, n := range h.notifiers {
		go safeNotify(n, event)
	}
}

func safeNotify(n Notifier, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notifier panicked",
				"type", event.Type,
				"task_id", event.TaskID,
				"panic", r)
		}
	}()
	n.Notify(event)
}
