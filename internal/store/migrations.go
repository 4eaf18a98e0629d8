package store

// migrations are applied in order; index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		creator_id INTEGER NOT NULL,
		assignee_id INTEGER NOT NULL DEFAULT 0,
		group_id INTEGER NOT NULL DEFAULT 0,
		deadline TEXT NOT NULL DEFAULT '',
		reject_reason TEXT NOT NULL DEFAULT '',
		revision_note TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT '',
		completed_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_tasks_status ON tasks(status);
	CREATE INDEX idx_tasks_assignee ON tasks(assignee_id);

	CREATE TABLE task_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES tasks(id),
		event_type TEXT NOT NULL,
		from_status TEXT NOT NULL DEFAULT '',
		to_status TEXT NOT NULL DEFAULT '',
		actor_id INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_task_events_task ON task_events(task_id);`,

	`CREATE TABLE notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		message TEXT NOT NULL,
		task_id INTEGER NOT NULL DEFAULT 0,
		severity TEXT NOT NULL DEFAULT 'info',
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_notifications_user ON notifications(user_id, created_at);`,

	`CREATE TABLE performance_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES tasks(id),
		user_id INTEGER NOT NULL,
		awarded_by INTEGER NOT NULL,
		points INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,
}
