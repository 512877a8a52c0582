package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS task_results (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		task TEXT NOT NULL,
		status INTEGER NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, task),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS file_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		pipeline TEXT NOT NULL,
		path TEXT NOT NULL,
		stage TEXT,
		error TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_file_failures_run_id ON file_failures(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
