package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a task row changed between read and write.
	ErrConflict = errors.New("concurrent modification")
)

// Store is the persistence interface for crier.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Tasks
	CreateTask(t *TaskRecord) error
	GetTask(id int64) (*TaskRecord, error)
	ListTasks(f TaskFilter) ([]TaskRecord, error)
	ListOverdue(now time.Time) ([]TaskRecord, error)
	ApplyTransition(tr *Transition) error

	// Task events
	GetEvents(taskID int64, limit int) ([]TaskEvent, error)

	// Performance points
	AddPoints(p *PointsRecord) error
	GetPoints(taskID int64) ([]PointsRecord, error)

	// Notifications
	ListNotifications(userID int64, limit int) ([]Notification, error)
	MarkNotificationRead(userID, id int64) error
	MarkAllNotificationsRead(userID int64) (int64, error)

	// Maintenance
	Cleanup(retention time.Duration) error
	Close() error
}

// TaskRecord represents a persisted task.
type TaskRecord struct {
	ID           int64
	Title        string
	Description  string
	Status       string
	CreatorID    int64
	AssigneeID   int64 // 0 = unassigned
	GroupID      int64
	Deadline     time.Time
	RejectReason string
	RevisionNote string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  time.Time
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	Status     string
	CreatorID  int64
	AssigneeID int64
	Limit      int
}

// Transition is a status change committed as a single unit together with
// its audit event and, optionally, the notification row it produces.
type Transition struct {
	Task            *TaskRecord
	ExpectedVersion int64
	Event           TaskEvent
	Notification    *Notification
}

// TaskEvent represents a timestamped event for audit trail.
type TaskEvent struct {
	ID         int64
	TaskID     int64
	EventType  string
	FromStatus string
	ToStatus   string
	ActorID    int64
	Message    string
	CreatedAt  time.Time
}

// Notification is the durable, server-side notification row.
type Notification struct {
	ID        int64
	UserID    int64
	Message   string
	TaskID    int64 // 0 = none
	Severity  string
	Read      bool
	CreatedAt time.Time
}

// PointsRecord is a performance-point award attached to a completed task.
type PointsRecord struct {
	ID        int64
	TaskID    int64
	UserID    int64
	AwardedBy int64
	Points    int
	Note      string
	CreatedAt time.Time
}
