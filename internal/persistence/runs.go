package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StartRun inserts a run, in the running state unless run.Status says
// otherwise. The caller assigns the ID.
func (s *SQLiteStore) StartRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	status := run.Status
	if status == "" {
		status = RunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, command, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Command, status, run.Error, millis(run.StartedAt), millis(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string, runErr error, finished time.Time) error {
	errorStr := ""
	if runErr != nil {
		errorStr = runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, errorStr, millis(finished), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a run with its task results and file failures.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	run := &Run{}
	var errorStr sql.NullString
	var started, finished sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, command, status, error, started_at, finished_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(&run.ID, &run.Command, &run.Status, &errorStr, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.Error = errorStr.String
	run.StartedAt = fromMillis(started.Int64)
	run.FinishedAt = fromMillis(finished.Int64)

	if run.Tasks, err = s.taskResults(ctx, runID); err != nil {
		return nil, err
	}
	if run.Failures, err = s.fileFailures(ctx, runID); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without task details. A
// non-positive limit returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var errorStr sql.NullString
		var started, finished sql.NullInt64
		if err := rows.Scan(&run.ID, &run.Command, &run.Status, &errorStr, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Error = errorStr.String
		run.StartedAt = fromMillis(started.Int64)
		run.FinishedAt = fromMillis(finished.Int64)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
