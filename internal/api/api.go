// Package api exposes the task transitions and the notification list over
// JSON HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/crier/internal/middleware"
	"github.com/btouchard/crier/internal/store"
	"github.com/btouchard/crier/internal/task"
)

// NotificationStore is the subset of the store the notification routes use.
type NotificationStore interface {
	ListNotifications(userID int64, limit int) ([]store.Notification, error)
	MarkNotificationRead(userID, id int64) error
	MarkAllNotificationsRead(userID int64) (int64, error)
}

// Handler serves the REST API. Every route expects middleware.BearerAuth
// to have run.
type Handler struct {
	tasks         *task.Service
	notifications NotificationStore
}

// New creates a Handler.
func New(tasks *task.Service, notifications NotificationStore) *Handler {
	return &Handler{tasks: tasks, notifications: notifications}
}

// Routes mounts the API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/", h.createTask)
		r.Get("/", h.listTasks)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getTask)
			r.Post("/assign", h.assignTask)
			r.Post("/accept", h.acceptTask)
			r.Post("/reject", h.rejectTask)
			r.Post("/finish", h.finishTask)
			r.Post("/return", h.returnTask)
			r.Post("/points", h.addPoints)
		})
	})
	r.Route("/api/notifications", func(r chi.Router) {
		r.Get("/", h.listNotifications)
		r.Post("/read-all", h.markAllRead)
		r.Post("/{id}/read", h.markRead)
	})
}

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, task.ErrInvalidTransition), errors.Is(err, task.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, task.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, task.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, task.ErrInvalidInput), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", errBadRequest)
	}
	return id, nil
}

func actor(r *http.Request) int64 {
	id, _ := middleware.UserID(r.Context())
	return id
}
