package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/btouchard/crier/internal/store"
)

// Event is emitted after a transition commits. Recipient is zero when the
// transition notifies nobody.
type Event struct {
	Type           EventType
	TaskID         int64
	From           Status
	To             Status
	ActorID        int64
	Recipient      int64
	Message        string
	Severity       string
	NotificationID int64
	CreatedAt      time.Time
}

// NotifyFunc is called when a task lifecycle event occurs.
type NotifyFunc func(Event)

// Filter specifies criteria for listing tasks.
type Filter struct {
	Status     Status
	CreatorID  int64
	AssigneeID int64
	Limit      int
}

// Service is the only writer of task status. Every transition goes through
// the table in task.go and commits as a single store transaction.
type Service struct {
	store    store.Store
	onNotify NotifyFunc
	now      func() time.Time
}

// NewService creates a task Service backed by st.
func NewService(st store.Store) *Service {
	return &Service{
		store: st,
		now:   time.Now,
	}
}

// SetNotifyFunc sets the callback for task lifecycle events.
func (s *Service) SetNotifyFunc(fn NotifyFunc) {
	s.onNotify = fn
}

// Create stores a new Pending, unassigned task.
func (s *Service) Create(creatorID int64, title, description string, deadline time.Time, groupID int64) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", ErrInvalidInput)
	}
	if creatorID == 0 {
		return nil, fmt.Errorf("creator is required: %w", ErrInvalidInput)
	}

	now := s.now()
	t := &Task{
		Title:       title,
		Description: description,
		Status:      StatusPending,
		CreatorID:   creatorID,
		GroupID:     groupID,
		Deadline:    deadline,
		CreatedAt:   now,
	}
	rec := t.record()
	if err := s.store.CreateTask(rec); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	slog.Info("task created",
		"task_id", rec.ID,
		"creator_id", creatorID)

	return fromRecord(rec), nil
}

// Get returns a task by ID.
func (s *Service) Get(id int64) (*Task, error) {
	rec, err := s.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec), nil
}

// List returns tasks matching the given filter, newest first.
func (s *Service) List(f Filter) ([]Task, error) {
	recs, err := s.store.ListTasks(store.TaskFilter{
		Status:     string(f.Status),
		CreatorID:  f.CreatorID,
		AssigneeID: f.AssigneeID,
		Limit:      f.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(recs))
	for i := range recs {
		out = append(out, *fromRecord(&recs[i]))
	}
	return out, nil
}

// History returns the audit trail of a task, newest first.
func (s *Service) History(id int64, limit int) ([]store.TaskEvent, error) {
	return s.store.GetEvents(id, limit)
}

// Assign hands a Pending task to assigneeID. Only the creator may assign.
func (s *Service) Assign(taskID, actorID, assigneeID int64) (*Task, error) {
	if assigneeID == 0 {
		return nil, fmt.Errorf("assignee is required: %w", ErrInvalidInput)
	}
	return s.apply(taskID, actorID, ActionAssign, func(t *Task) string {
		t.AssigneeID = assigneeID
		t.RejectReason = ""
		return fmt.Sprintf("Task %q was assigned to you", t.Title)
	})
}

// Accept moves an Assigned task into progress. Only the assignee may accept.
func (s *Service) Accept(taskID, actorID int64) (*Task, error) {
	return s.apply(taskID, actorID, ActionAccept, func(t *Task) string {
		return fmt.Sprintf("Task %q was accepted", t.Title)
	})
}

// Reject returns the task to Pending and clears the assignee.
func (s *Service) Reject(taskID, actorID int64, reason string) (*Task, error) {
	return s.apply(taskID, actorID, ActionReject, func(t *Task) string {
		t.AssigneeID = 0
		t.RejectReason = reason
		if reason == "" {
			return fmt.Sprintf("Task %q was rejected", t.Title)
		}
		return fmt.Sprintf("Task %q was rejected: %s", t.Title, reason)
	})
}

// Finish completes an in-progress task. Only the creator may finish.
func (s *Service) Finish(taskID, actorID int64) (*Task, error) {
	return s.apply(taskID, actorID, ActionFinish, func(t *Task) string {
		t.CompletedAt = s.now()
		return fmt.Sprintf("Task %q was completed", t.Title)
	})
}

// ReturnForRevision sends an in-progress task back to its assignee.
func (s *Service) ReturnForRevision(taskID, actorID int64, reason string) (*Task, error) {
	return s.apply(taskID, actorID, ActionReturnForRevision, func(t *Task) string {
		t.RevisionNote = reason
		if reason == "" {
			return fmt.Sprintf("Task %q was returned for revision", t.Title)
		}
		return fmt.Sprintf("Task %q was returned for revision: %s", t.Title, reason)
	})
}

// Expire moves a non-terminal task whose deadline passed to Expired. A task
// with no deadline, or one still in the future, is rejected.
func (s *Service) Expire(taskID int64) (*Task, error) {
	return s.apply(taskID, 0, ActionExpire, func(t *Task) string {
		return fmt.Sprintf("Task %q expired", t.Title)
	})
}

// AddPoints awards performance points to the assignee of a completed task.
// Only the creator may award points.
func (s *Service) AddPoints(taskID, actorID int64, points int, note string) (*store.PointsRecord, error) {
	if points <= 0 {
		return nil, fmt.Errorf("points must be positive: %w", ErrInvalidInput)
	}
	t, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}
	if !t.hasRole(actorID, RoleCreator) {
		return nil, fmt.Errorf("only the creator may award points on task %d: %w", taskID, ErrForbidden)
	}
	if t.Status != StatusCompleted {
		return nil, fmt.Errorf("points require a completed task, task %d is %s: %w", taskID, t.Status, ErrInvalidTransition)
	}

	p := &store.PointsRecord{
		TaskID:    taskID,
		UserID:    t.AssigneeID,
		AwardedBy: actorID,
		Points:    points,
		Note:      note,
		CreatedAt: s.now(),
	}
	if err := s.store.AddPoints(p); err != nil {
		return nil, err
	}
	slog.Info("points awarded", "task_id", taskID, "user_id", t.AssigneeID, "points", points)
	return p, nil
}

// apply runs one transition: table lookup, actor check, mutation, atomic
// commit, then (after commit) the notify callback.
func (s *Service) apply(taskID, actorID int64, action Action, mutate func(*Task) string) (*Task, error) {
	t, err := s.Get(taskID)
	if err != nil {
		return nil, err
	}

	rule, err := Lookup(t.Status, action)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", taskID, err)
	}
	if rule.Actor != RoleSystem && !t.hasRole(actorID, rule.Actor) {
		return nil, fmt.Errorf("user %d may not %s task %d: %w", actorID, action, taskID, ErrForbidden)
	}

	now := s.now()
	if action == ActionExpire && !t.Overdue(now) {
		return nil, fmt.Errorf("task %d has not passed its deadline: %w", taskID, ErrInvalidTransition)
	}

	from := t.Status
	expected := t.Version

	message := mutate(t)
	recipient := t.userFor(rule.Notify)
	t.Status = rule.To
	t.UpdatedAt = now

	ev := Event{
		Type:      rule.Event,
		TaskID:    t.ID,
		From:      from,
		To:        rule.To,
		ActorID:   actorID,
		Recipient: recipient,
		Message:   message,
		Severity:  severityFor(rule.Event),
		CreatedAt: now,
	}

	tr := &store.Transition{
		Task:            t.record(),
		ExpectedVersion: expected,
		Event: store.TaskEvent{
			EventType:  string(rule.Event),
			FromStatus: string(from),
			ToStatus:   string(rule.To),
			ActorID:    actorID,
			Message:    message,
			CreatedAt:  now,
		},
	}
	if recipient != 0 {
		tr.Notification = &store.Notification{
			UserID:    recipient,
			Message:   message,
			TaskID:    t.ID,
			Severity:  ev.Severity,
			CreatedAt: now,
		}
	}

	if err := s.store.ApplyTransition(tr); err != nil {
		return nil, fmt.Errorf("applying %s to task %d: %w", action, taskID, err)
	}
	t.Version = tr.Task.Version
	if tr.Notification != nil {
		ev.NotificationID = tr.Notification.ID
	}

	slog.Info("task transitioned",
		"task_id", t.ID,
		"action", string(action),
		"from", string(from),
		"to", string(rule.To),
		"actor_id", actorID)

	s.emit(ev)
	return t, nil
}

// emit hands the event to the notify callback. Delivery is best-effort and
// never affects the committed transition.
func (s *Service) emit(ev Event) {
	if s.onNotify == nil || ev.Recipient == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notify callback panicked", "task_id", ev.TaskID, "panic", r)
		}
	}()
	s.onNotify(ev)
}

func severityFor(t EventType) string {
	switch t {
	case EventAccepted, EventFinished:
		return "success"
	case EventRejected, EventExpired:
		return "error"
	default:
		return "info"
	}
}

// ExpireOverdue expires every open task whose deadline is before now and
// returns how many were expired. Tasks that changed concurrently are skipped.
func (s *Service) ExpireOverdue() (int, error) {
	overdue, err := s.store.ListOverdue(s.now())
	if err != nil {
		return 0, fmt.Errorf("listing overdue tasks: %w", err)
	}

	expired := 0
	for _, rec := range overdue {
		if _, err := s.Expire(rec.ID); err != nil {
			slog.Warn("task expiry skipped", "task_id", rec.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// RunExpiryLoop periodically expires overdue tasks until ctx is done.
func (s *Service) RunExpiryLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireOverdue()
			if err != nil {
				slog.Error("expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired overdue tasks", "count", n)
			}
		}
	}
}
