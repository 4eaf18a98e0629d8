package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC layout so that lexical order matches time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
// The special path ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if err := prepareFile(path); err != nil {
			return nil, err
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func prepareFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	// Pre-create the file with restrictive permissions if it doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("creating database file: %w", err)
		}
		_ = f.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	// Ensure schema_version table exists
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Tasks ---

const taskColumns = `id, title, description, status, creator_id, assignee_id, group_id,
	deadline, reject_reason, revision_note, version, created_at, updated_at, completed_at`

func (s *SQLiteStore) CreateTask(t *TaskRecord) error {
	if t.Version == 0 {
		t.Version = 1
	}
	res, err := s.db.Exec(`INSERT INTO tasks (title, description, status, creator_id, assignee_id,
		group_id, deadline, reject_reason, revision_note, version, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, t.Status, t.CreatorID, t.AssigneeID,
		t.GroupID, formatTime(t.Deadline), t.RejectReason, t.RevisionNote, t.Version,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), formatTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading task id: %w", err)
	}
	t.ID = id
	return nil
}

func (s *SQLiteStore) GetTask(id int64) (*TaskRecord, error) {
	row := s.db.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return t, err
}

func (s *SQLiteStore) ListTasks(f TaskFilter) ([]TaskRecord, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	var args []any

	if f.Status != "" && f.Status != "all" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.CreatorID != 0 {
		query += " AND creator_id = ?"
		args = append(args, f.CreatorID)
	}
	if f.AssigneeID != 0 {
		query += " AND assignee_id = ?"
		args = append(args, f.AssigneeID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryTasks(query, args...)
}

// ListOverdue returns non-terminal tasks whose deadline is before now.
func (s *SQLiteStore) ListOverdue(now time.Time) ([]TaskRecord, error) {
	return s.queryTasks("SELECT "+taskColumns+` FROM tasks
		WHERE deadline != '' AND deadline < ? AND status NOT IN ('completed', 'expired')
		ORDER BY deadline`, formatTime(now))
}

func (s *SQLiteStore) queryTasks(query string, args ...any) ([]TaskRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// ApplyTransition commits a status change, its audit event and its
// notification in one transaction. The update only succeeds when the row
// still carries ExpectedVersion; otherwise ErrConflict is returned and
// nothing is written.
func (s *SQLiteStore) ApplyTransition(tr *Transition) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	t := tr.Task
	res, err := tx.Exec(`UPDATE tasks SET
		status = ?, assignee_id = ?, reject_reason = ?, revision_note = ?,
		version = version + 1, updated_at = ?, completed_at = ?
		WHERE id = ? AND version = ?`,
		t.Status, t.AssigneeID, t.RejectReason, t.RevisionNote,
		formatTime(t.UpdatedAt), formatTime(t.CompletedAt),
		t.ID, tr.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		var exists int
		if scanErr := tx.QueryRow("SELECT COUNT(*) FROM tasks WHERE id = ?", t.ID).Scan(&exists); scanErr != nil {
			return fmt.Errorf("checking task: %w", scanErr)
		}
		if exists == 0 {
			return fmt.Errorf("task %d: %w", t.ID, ErrNotFound)
		}
		return fmt.Errorf("task %d at version %d: %w", t.ID, tr.ExpectedVersion, ErrConflict)
	}

	e := &tr.Event
	e.TaskID = t.ID
	res, err = tx.Exec(`INSERT INTO task_events (task_id, event_type, from_status, to_status, actor_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.EventType, e.FromStatus, e.ToStatus, e.ActorID, e.Message, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("adding event: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading event id: %w", err)
	}

	if nt := tr.Notification; nt != nil {
		res, err = tx.Exec(`INSERT INTO notifications (user_id, message, task_id, severity, read, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			nt.UserID, nt.Message, nt.TaskID, nt.Severity, boolToInt(nt.Read), formatTime(nt.CreatedAt))
		if err != nil {
			return fmt.Errorf("adding notification: %w", err)
		}
		if nt.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading notification id: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transition: %w", err)
	}

	t.Version = tr.ExpectedVersion + 1
	return nil
}

// --- Task Events ---

func (s *SQLiteStore) GetEvents(taskID int64, limit int) ([]TaskEvent, error) {
	query := `SELECT id, task_id, event_type, from_status, to_status, actor_id, message, created_at
		FROM task_events WHERE task_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{taskID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []TaskEvent
	for rows.Next() {
		var e TaskEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.EventType, &e.FromStatus, &e.ToStatus,
			&e.ActorID, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Performance points ---

func (s *SQLiteStore) AddPoints(p *PointsRecord) error {
	res, err := s.db.Exec(`INSERT INTO performance_points (task_id, user_id, awarded_by, points, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.TaskID, p.UserID, p.AwardedBy, p.Points, p.Note, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("adding points: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetPoints(taskID int64) ([]PointsRecord, error) {
	rows, err := s.db.Query(`SELECT id, task_id, user_id, awarded_by, points, note, created_at
		FROM performance_points WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PointsRecord
	for rows.Next() {
		var p PointsRecord
		var createdAt string
		if err := rows.Scan(&p.ID, &p.TaskID, &p.UserID, &p.AwardedBy, &p.Points, &p.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning points: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Notifications ---

func (s *SQLiteStore) ListNotifications(userID int64, limit int) ([]Notification, error) {
	query := `SELECT id, user_id, message, task_id, severity, read, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Notification
	for rows.Next() {
		var n Notification
		var read int
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.TaskID, &n.Severity, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Read = read != 0
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flips the read flag on one of the user's notifications.
func (s *SQLiteStore) MarkNotificationRead(userID, id int64) error {
	res, err := s.db.Exec("UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead flips every unread notification of the user and
// returns how many rows changed.
func (s *SQLiteStore) MarkAllNotificationsRead(userID int64) (int64, error) {
	res, err := s.db.Exec("UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0", userID)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return res.RowsAffected()
}

// --- Maintenance ---

// Cleanup deletes read notifications and audit events older than retention.
func (s *SQLiteStore) Cleanup(retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	cutoff := formatTime(time.Now().Add(-retention))

	if _, err := s.db.Exec("DELETE FROM notifications WHERE read = 1 AND created_at < ?", cutoff); err != nil {
		return fmt.Errorf("cleaning notifications: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM task_events WHERE created_at < ? AND task_id IN
		(SELECT id FROM tasks WHERE status IN ('completed', 'expired'))`, cutoff); err != nil {
		return fmt.Errorf("cleaning events: %w", err)
	}

	return nil
}

// --- Helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*TaskRecord, error) {
	var t TaskRecord
	var deadline, createdAt, updatedAt, completedAt string

	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CreatorID, &t.AssigneeID,
		&t.GroupID, &deadline, &t.RejectReason, &t.RevisionNote, &t.Version,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	t.Deadline = parseTime(deadline)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.CompletedAt = parseTime(completedAt)

	return &t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
