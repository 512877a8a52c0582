package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/frontbuild/internal/scheduler"
)

// TaskResult is how one task ended within a run.
type TaskResult struct {
	Task     string
	Status   scheduler.TaskStatus
	Error    string
	Duration time.Duration
}

// TaskResultsFrom converts the outcomes of a scheduler execution.
func TaskResultsFrom(tasks []*scheduler.Task) []TaskResult {
	results := make([]TaskResult, 0, len(tasks))
	for _, t := range tasks {
		r := TaskResult{Task: t.Name, Status: t.Status, Duration: t.Duration}
		if t.Error != nil {
			r.Error = t.Error.Error()
		}
		results = append(results, r)
	}
	return results
}

// SaveTaskResults stores task outcomes for a run. Saving the same task again
// replaces its previous outcome, so a sequence of executions can share one run.
func (s *SQLiteStore) SaveTaskResults(ctx context.Context, runID string, results []TaskResult) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM task_results WHERE run_id = ?
	`, runID).Scan(&next); err != nil {
		return fmt.Errorf("failed to read task positions: %w", err)
	}

	for i, r := range results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_results (run_id, position, task, status, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, task) DO UPDATE SET
				status = excluded.status,
				error = excluded.error,
				duration_ms = excluded.duration_ms
		`, runID, next+i, r.Task, int(r.Status), r.Error, r.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to save result for task %s: %w", r.Task, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) taskResults(ctx context.Context, runID string) ([]TaskResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task, status, error, duration_ms
		FROM task_results
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task results: %w", err)
	}
	defer rows.Close()

	var results []TaskResult
	for rows.Next() {
		var r TaskResult
		var status int
		var errorStr sql.NullString
		var ms int64
		if err := rows.Scan(&r.Task, &status, &errorStr, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		r.Status = scheduler.TaskStatus(status)
		r.Error = errorStr.String
		r.Duration = time.Duration(ms) * time.Millisecond
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task results: %w", err)
	}
	return results, nil
}
