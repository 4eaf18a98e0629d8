package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/btouchard/crier/internal/store"
)

// Notification is the wire form consumed by the live client's reconcile.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	TaskID    int64     `json:"task_id,omitempty"`
	Severity  string    `json:"severity"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

const defaultNotificationLimit = 100

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = n
	}

	rows, err := h.notifications.ListNotifications(actor(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]Notification, 0, len(rows))
	for _, n := range rows {
		out = append(out, toNotification(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func toNotification(n store.Notification) Notification {
	return Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Message:   n.Message,
		TaskID:    n.TaskID,
		Severity:  n.Severity,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.notifications.MarkNotificationRead(actor(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllNotificationsRead(actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
