package database

import (
	"context"
	"fmt"
)

// RunRepo records the audit trail of orchestrator invocations.
type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Create opens a run record at orchestrator start and returns its id.
func (r *RunRepo) Create(ctx context.Context, kind string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ingest_runs (kind, started_at)
		VALUES ($1, NOW())
		RETURNING id
	`, kind).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create run record: %w", err)
	}

	return id, nil
}

// Finish finalizes the run record. Run records are never deleted.
func (r *RunRepo) Finish(ctx context.Context, id string, ok bool, added, skipped int, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingest_runs
		SET finished_at = NOW(), ok = $2, added = $3, skipped = $4, message = $5
		WHERE id = $1
	`, id, ok, added, skipped, message)
	if err != nil {
		return fmt.Errorf("failed to finish run record: %w", err)
	}

	return nil
}
