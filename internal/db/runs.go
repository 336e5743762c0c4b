package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRepository handles sync_runs database operations.
type RunRepository struct {
	pool *pgxpool.Pool
}

const runColumns = `id, run_kind, triggered_by, status, started_at, completed_at, duration_seconds, summary, error_details`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(
		&run.ID,
		&run.Kind,
		&run.TriggeredBy,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationSeconds,
		&run.Summary,
		&run.ErrorDetails,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return &run, nil
}

// CreateRunning inserts a new run row in running status and returns it.
// The insert happens synchronously before any external call so a crash
// mid-run leaves visible evidence of an incomplete run.
func (r *RunRepository) CreateRunning(ctx context.Context, kind RunKind, trigger Trigger, summary map[string]any) (*Run, error) {
	query := `
		INSERT INTO sync_runs (id, run_kind, triggered_by, status, started_at, summary)
		VALUES ($1, $2, $3, $4, NOW(), $5)
		RETURNING ` + runColumns
	run, err := scanRun(r.pool.QueryRow(ctx, query, uuid.New(), kind, trigger, RunStatusRunning, summary))
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// Complete transitions a running run to completed.
func (r *RunRepository) Complete(ctx context.Context, id uuid.UUID, completedAt time.Time, durationSeconds int, summary map[string]any) (*Run, error) {
	query := `
		UPDATE sync_runs
		SET status = $2, completed_at = $3, duration_seconds = $4, summary = $5
		WHERE id = $1 AND status = $6
		RETURNING ` + runColumns
	run, err := scanRun(r.pool.QueryRow(ctx, query,
		id, RunStatusCompleted, completedAt, durationSeconds, summary, RunStatusRunning))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("completing run: %w", err)
	}
	return run, nil
}

// Fail transitions a running run to failed, recording the error detail.
func (r *RunRepository) Fail(ctx context.Context, id uuid.UUID, completedAt time.Time, errorDetails string, summary map[string]any) error {
	query := `
		UPDATE sync_runs
		SET status = $2, completed_at = $3, error_details = $4, summary = $5
		WHERE id = $1 AND status = $6
	`
	result, err := r.pool.Exec(ctx, query,
		id, RunStatusFailed, completedAt, errorDetails, summary, RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failing run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Latest returns the most recent run of the given kind regardless of status.
func (r *RunRepository) Latest(ctx context.Context, kind RunKind) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE run_kind = $1 ORDER BY started_at DESC LIMIT 1`
	return scanRun(r.pool.QueryRow(ctx, query, kind))
}

// LatestCompleted returns the most recent completed run of the given kind.
func (r *RunRepository) LatestCompleted(ctx context.Context, kind RunKind) (*Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM sync_runs
		WHERE run_kind = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1
	`
	return scanRun(r.pool.QueryRow(ctx, query, kind, RunStatusCompleted))
}

// HasRunning reports whether a run of the given kind is currently in the
// running state. This is an advisory check only; there is no transactional
// guarantee between the check and a subsequent insert.
func (r *RunRepository) HasRunning(ctx context.Context, kind RunKind) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sync_runs WHERE run_kind = $1 AND status = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, kind, RunStatusRunning).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking for running run: %w", err)
	}
	return exists, nil
}
