package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/btouchard/crier/internal/store"
)

var (
	// ErrInvalidTransition is returned when an action is not legal from the
	// task's current status. The task is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden is returned when the actor may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is returned for malformed requests (missing assignee, bad points).
	ErrInvalidInput = errors.New("invalid input")

	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

// IsTerminal reports whether no transition leaves this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Action is a requested transition.
type Action string

const (
	ActionAssign            Action = "assign"
	ActionAccept            Action = "accept"
	ActionReject            Action = "reject"
	ActionFinish            Action = "finish"
	ActionReturnForRevision Action = "return_for_revision"
	ActionExpire            Action = "expire"
)

// Role identifies who may trigger an action, and who hears about it.
type Role int

const (
	RoleNone Role = iota
	RoleCreator
	RoleAssignee
	RoleSystem
)

// EventType names the outbound event produced by a transition.
type EventType string

const (
	EventAssigned EventType = "task.assigned"
	EventAccepted EventType = "task.accepted"
	EventRejected EventType = "task.rejected"
	EventReturned EventType = "task.returned"
	EventFinished EventType = "task.completed"
	EventExpired  EventType = "task.expired"
)

// Rule describes one legal edge of the state machine.
type Rule struct {
	To     Status
	Actor  Role
	Event  EventType
	Notify Role // RoleNone = nothing is pushed
}

// transitions is the complete table. Anything absent is illegal.
var transitions = map[Status]map[Action]Rule{
	StatusPending: {
		ActionAssign: {To: StatusAssigned, Actor: RoleCreator, Event: EventAssigned, Notify: RoleAssignee},
		ActionExpire: {To: StatusExpired, Actor: RoleSystem, Event: EventExpired},
	},
	StatusAssigned: {
		ActionAccept: {To: StatusInProgress, Actor: RoleAssignee, Event: EventAccepted, Notify: RoleCreator},
		ActionReject: {To: StatusPending, Actor: RoleAssignee, Event: EventRejected, Notify: RoleCreator},
		ActionExpire: {To: StatusExpired, Actor: RoleSystem, Event: EventExpired},
	},
	StatusInProgress: {
		ActionReject:            {To: StatusPending, Actor: RoleAssignee, Event: EventRejected, Notify: RoleCreator},
		ActionFinish:            {To: StatusCompleted, Actor: RoleCreator, Event: EventFinished},
		ActionReturnForRevision: {To: StatusAssigned, Actor: RoleCreator, Event: EventReturned, Notify: RoleAssignee},
		ActionExpire:            {To: StatusExpired, Actor: RoleSystem, Event: EventExpired},
	},
}

// Lookup returns the rule for applying action in status from.
func Lookup(from Status, action Action) (Rule, error) {
	rule, ok := transitions[from][action]
	if !ok {
		return Rule{}, fmt.Errorf("cannot %s a task that is %s: %w", action, from, ErrInvalidTransition)
	}
	return rule, nil
}

// Next returns the status reached by applying action in status from.
func Next(from Status, action Action) (Status, error) {
	rule, err := Lookup(from, action)
	if err != nil {
		return from, err
	}
	return rule.To, nil
}

// Allowed lists the actions legal from the given status.
func Allowed(from Status) []Action {
	var out []Action
	for _, a := range []Action{ActionAssign, ActionAccept, ActionReject, ActionFinish, ActionReturnForRevision, ActionExpire} {
		if _, ok := transitions[from][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Task is the domain view of a persisted task.
type Task struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Status       Status    `json:"status"`
	CreatorID    int64     `json:"creator_id"`
	AssigneeID   int64     `json:"assignee_id,omitempty"`
	GroupID      int64     `json:"group_id,omitempty"`
	Deadline     time.Time `json:"deadline,omitzero"`
	RejectReason string    `json:"reject_reason,omitempty"`
	RevisionNote string    `json:"revision_note,omitempty"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
	CompletedAt  time.Time `json:"completed_at,omitzero"`
}

// Overdue reports whether the deadline has passed while the task is still open.
func (t *Task) Overdue(now time.Time) bool {
	return !t.Status.IsTerminal() && !t.Deadline.IsZero() && t.Deadline.Before(now)
}

// hasRole reports whether userID holds role r on this task. A creator who
// assigned the task to themselves holds both roles.
func (t *Task) hasRole(userID int64, r Role) bool {
	if userID == 0 {
		return false
	}
	switch r {
	case RoleCreator:
		return userID == t.CreatorID
	case RoleAssignee:
		return userID == t.AssigneeID
	}
	return false
}

func (t *Task) userFor(r Role) int64 {
	switch r {
	case RoleCreator:
		return t.CreatorID
	case RoleAssignee:
		return t.AssigneeID
	}
	return 0
}

func fromRecord(r *store.TaskRecord) *Task {
	return &Task{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Status:       Status(r.Status),
		CreatorID:    r.CreatorID,
		AssigneeID:   r.AssigneeID,
		GroupID:      r.GroupID,
		Deadline:     r.Deadline,
		RejectReason: r.RejectReason,
		RevisionNote: r.RevisionNote,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CompletedAt:  r.CompletedAt,
	}
}

func (t *Task) record() *store.TaskRecord {
	return &store.TaskRecord{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		CreatorID:    t.CreatorID,
		AssigneeID:   t.AssigneeID,
		GroupID:      t.GroupID,
		Deadline:     t.Deadline,
		RejectReason: t.RejectReason,
		RevisionNote: t.RevisionNote,
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		CompletedAt:  t.CompletedAt,
	}
}
