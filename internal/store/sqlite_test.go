package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTask(t *testing.T, s *SQLiteStore, status string) *TaskRecord {
	t.Helper()
	rec := &TaskRecord{
		Title:     "write report",
		Status:    status,
		CreatorID: 1,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateTask(rec))
	return rec
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_Migration_IsIdempotentOnReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crier.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	createTask(t, s, "pending")
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	tasks, err := s.ListTasks(TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestSQLiteStore_CreateAndGetTask(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	deadline := time.Now().Add(time.Hour).Truncate(time.Second)
	rec := &TaskRecord{
		Title:       "fix the bug",
		Description: "in the parser",
		Status:      "pending",
		CreatorID:   7,
		GroupID:     3,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateTask(rec))
	assert.NotZero(t, rec.ID)

	got, err := s.GetTask(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "fix the bug", got.Title)
	assert.Equal(t, "in the parser", got.Description)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, int64(7), got.CreatorID)
	assert.Equal(t, int64(3), got.GroupID)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, deadline.Equal(got.Deadline))
}

func TestSQLiteStore_GetTask_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.GetTask(999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListTasks_Filters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	require.NoError(t, s.CreateTask(&TaskRecord{Title: "a", Status: "pending", CreatorID: 1, CreatedAt: now}))
	require.NoError(t, s.CreateTask(&TaskRecord{Title: "b", Status: "assigned", CreatorID: 1, AssigneeID: 2, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.CreateTask(&TaskRecord{Title: "c", Status: "assigned", CreatorID: 5, AssigneeID: 2, CreatedAt: now.Add(2 * time.Second)}))

	assigned, err := s.ListTasks(TaskFilter{Status: "assigned"})
	require.NoError(t, err)
	assert.Len(t, assigned, 2)
	assert.Equal(t, "c", assigned[0].Title, "newest task should be first")

	byCreator, err := s.ListTasks(TaskFilter{CreatorID: 1})
	require.NoError(t, err)
	assert.Len(t, byCreator, 2)

	byAssignee, err := s.ListTasks(TaskFilter{AssigneeID: 2, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, byAssignee, 1)
}

func TestSQLiteStore_ApplyTransition_CommitsAllParts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	rec := createTask(t, s, "pending")

	rec.Status = "assigned"
	rec.AssigneeID = 42
	rec.UpdatedAt = time.Now()
	nt := &Notification{UserID: 42, Message: "task assigned", TaskID: rec.ID, Severity: "info", CreatedAt: time.Now()}

	err := s.ApplyTransition(&Transition{
		Task:            rec,
		ExpectedVersion: 1,
		Event:           TaskEvent{EventType: "task.assigned", FromStatus: "pending", ToStatus: "assigned", ActorID: 1, CreatedAt: time.Now()},
		Notification:    nt,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)
	assert.NotZero(t, nt.ID)

	got, err := s.GetTask(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "assigned", got.Status)
	assert.Equal(t, int64(42), got.AssigneeID)
	assert.Equal(t, int64(2), got.Version)

	events, err := s.GetEvents(rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "task.assigned", events[0].EventType)

	notes, err := s.ListNotifications(42, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "task assigned", notes[0].Message)
}

func TestSQLiteStore_ApplyTransition_StaleVersionConflicts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	rec := createTask(t, s, "pending")

	first := *rec
	first.Status = "assigned"
	first.AssigneeID = 2
	require.NoError(t, s.ApplyTransition(&Transition{Task: &first, ExpectedVersion: 1,
		Event: TaskEvent{EventType: "task.assigned", CreatedAt: time.Now()}}))

	second := *rec
	second.Status = "assigned"
	second.AssigneeID = 3
	err := s.ApplyTransition(&Transition{Task: &second, ExpectedVersion: 1,
		Event:        TaskEvent{EventType: "task.assigned", CreatedAt: time.Now()},
		Notification: &Notification{UserID: 3, Message: "lost", CreatedAt: time.Now()}})
	require.ErrorIs(t, err, ErrConflict)

	got, err := s.GetTask(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AssigneeID, "losing writer must not overwrite")

	events, err := s.GetEvents(rec.ID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "losing writer's event must be rolled back")

	notes, err := s.ListNotifications(3, 0)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestSQLiteStore_ApplyTransition_UnknownTask(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.ApplyTransition(&Transition{
		Task:            &TaskRecord{ID: 404, Status: "assigned"},
		ExpectedVersion: 1,
		Event:           TaskEvent{EventType: "task.assigned", CreatedAt: time.Now()},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListOverdue(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	require.NoError(t, s.CreateTask(&TaskRecord{Title: "late", Status: "assigned", CreatorID: 1, Deadline: now.Add(-time.Hour), CreatedAt: now}))
	require.NoError(t, s.CreateTask(&TaskRecord{Title: "future", Status: "assigned", CreatorID: 1, Deadline: now.Add(time.Hour), CreatedAt: now}))
	require.NoError(t, s.CreateTask(&TaskRecord{Title: "done", Status: "completed", CreatorID: 1, Deadline: now.Add(-time.Hour), CreatedAt: now}))
	require.NoError(t, s.CreateTask(&TaskRecord{Title: "open", Status: "pending", CreatorID: 1, CreatedAt: now}))

	overdue, err := s.ListOverdue(now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "late", overdue[0].Title)
}

func TestSQLiteStore_Notifications_MarkRead(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	rec := createTask(t, s, "pending")

	version := rec.Version
	for i := range 3 {
		rec.Status = "pending"
		require.NoError(t, s.ApplyTransition(&Transition{
			Task:            rec,
			ExpectedVersion: version,
			Event:           TaskEvent{EventType: "test", CreatedAt: time.Now()},
			Notification:    &Notification{UserID: 9, Message: fmt.Sprintf("n%d", i), Severity: "info", CreatedAt: time.Now()},
		}))
		version = rec.Version
	}

	notes, err := s.ListNotifications(9, 0)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "n2", notes[0].Message, "newest notification should be first")

	require.NoError(t, s.MarkNotificationRead(9, notes[0].ID))
	require.ErrorIs(t, s.MarkNotificationRead(10, notes[1].ID), ErrNotFound, "other users cannot flip the flag")

	n, err := s.MarkAllNotificationsRead(9)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	notes, err = s.ListNotifications(9, 2)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	for _, nt := range notes {
		assert.True(t, nt.Read)
	}
}

func TestSQLiteStore_AddAndGetPoints(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	rec := createTask(t, s, "completed")

	require.NoError(t, s.AddPoints(&PointsRecord{TaskID: rec.ID, UserID: 2, AwardedBy: 1, Points: 5, CreatedAt: time.Now()}))
	require.NoError(t, s.AddPoints(&PointsRecord{TaskID: rec.ID, UserID: 2, AwardedBy: 1, Points: 3, Note: "bonus", CreatedAt: time.Now()}))

	points, err := s.GetPoints(rec.ID)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 5, points[0].Points)
	assert.Equal(t, "bonus", points[1].Note)
}

func TestSQLiteStore_Cleanup_RemovesOldReadNotifications(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	rec := createTask(t, s, "pending")

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.ApplyTransition(&Transition{
		Task:            rec,
		ExpectedVersion: 1,
		Event:           TaskEvent{EventType: "test", CreatedAt: old},
		Notification:    &Notification{UserID: 4, Message: "old", Read: true, CreatedAt: old},
	}))

	require.NoError(t, s.Cleanup(24*time.Hour))

	notes, err := s.ListNotifications(4, 0)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
