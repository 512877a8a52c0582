package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FileFailure is one source file that failed inside a pipeline.
type FileFailure struct {
	Pipeline string
	Path     string
	Stage    string
	Error    string
}

// SaveFileFailures appends failures to a run.
func (s *SQLiteStore) SaveFileFailures(ctx context.Context, runID string, failures []FileFailure) error {
	if len(failures) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, f := range failures {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO file_failures (run_id, pipeline, path, stage, error)
			VALUES (?, ?, ?, ?, ?)
		`, runID, f.Pipeline, f.Path, f.Stage, f.Error)
		if err != nil {
			return fmt.Errorf("failed to save failure for %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) fileFailures(ctx context.Context, runID string) ([]FileFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pipeline, path, stage, error
		FROM file_failures
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file failures: %w", err)
	}
	defer rows.Close()

	var failures []FileFailure
	for rows.Next() {
		var f FileFailure
		var stage sql.NullString
		if err := rows.Scan(&f.Pipeline, &f.Path, &stage, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan file failure: %w", err)
		}
		f.Stage = stage.String
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file failures: %w", err)
	}
	return failures, nil
}
