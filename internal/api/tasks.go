package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/btouchard/crier/internal/store"
	"github.com/btouchard/crier/internal/task"
)

type createTaskRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
	GroupID     int64     `json:"group_id"`
}

type assignRequest struct {
	UserID int64 `json:"user_id"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type pointsRequest struct {
	Points int    `json:"points"`
	Note   string `json:"note"`
}

type taskEvent struct {
	Type      string    `json:"type"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   int64     `json:"actor_id"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type taskDetail struct {
	*task.Task
	AllowedActions []task.Action `json:"allowed_actions"`
	History        []taskEvent   `json:"history"`
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.tasks.Create(actor(r), req.Title, req.Description, req.Deadline, req.GroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// listTasks returns the caller's tasks. scope=assigned (default) lists tasks
// assigned to the caller, scope=created those the caller created.
func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{Status: task.Status(q.Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, fmt.Errorf("%w: unknown status", errBadRequest))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
		f.Limit = n
	}

	switch q.Get("scope") {
	case "", "assigned":
		f.AssigneeID = actor(r)
	case "created":
		f.CreatorID = actor(r)
	default:
		writeError(w, fmt.Errorf("%w: scope must be assigned or created", errBadRequest))
		return
	}

	tasks, err := h.tasks.List(f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.tasks.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if me := actor(r); t.CreatorID != me && t.AssigneeID != me {
		// Hide existence from unrelated users.
		writeError(w, task.ErrNotFound)
		return
	}

	events, err := h.tasks.History(id, 50)
	if err != nil {
		writeError(w, err)
		return
	}
	detail := taskDetail{Task: t, AllowedActions: task.Allowed(t.Status), History: make([]taskEvent, 0, len(events))}
	for _, e := range events {
		detail.History = append(detail.History, toTaskEvent(e))
	}
	writeJSON(w, http.StatusOK, detail)
}

func toTaskEvent(e store.TaskEvent) taskEvent {
	return taskEvent{
		Type:      e.EventType,
		From:      e.FromStatus,
		To:        e.ToStatus,
		ActorID:   e.ActorID,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
	}
}

func (h *Handler) assignTask(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	h.transition(w, r, &req, func(id, me int64) (*task.Task, error) {
		return h.tasks.Assign(id, me, req.UserID)
	})
}

func (h *Handler) acceptTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, nil, h.tasks.Accept)
}

func (h *Handler) rejectTask(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	h.transition(w, r, &req, func(id, me int64) (*task.Task, error) {
		return h.tasks.Reject(id, me, req.Reason)
	})
}

func (h *Handler) finishTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, nil, h.tasks.Finish)
}

func (h *Handler) returnTask(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	h.transition(w, r, &req, func(id, me int64) (*task.Task, error) {
		return h.tasks.ReturnForRevision(id, me, req.Reason)
	})
}

// transition decodes body (when non-nil) and runs apply for the path task.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, body any, apply func(id, actorID int64) (*task.Task, error)) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if body != nil {
		if err := decodeBody(r, body); err != nil {
			writeError(w, err)
			return
		}
	}
	t, err := apply(id, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) addPoints(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req pointsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.tasks.AddPoints(id, actor(r), req.Points, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         p.ID,
		"task_id":    p.TaskID,
		"user_id":    p.UserID,
		"points":     p.Points,
		"note":       p.Note,
		"created_at": p.CreatedAt,
	})
}
