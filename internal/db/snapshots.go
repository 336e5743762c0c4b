package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository handles snapshots database operations.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// Insert stores a new snapshot payload for a service.
func (r *SnapshotRepository) Insert(ctx context.Context, service string, data []byte) (*Snapshot, error) {
	query := `
		INSERT INTO snapshots (id, service, snapshot_data, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, service, snapshot_data, created_at
	`
	var snapshot Snapshot
	err := r.pool.QueryRow(ctx, query, uuid.New(), service, data).Scan(
		&snapshot.ID,
		&snapshot.Service,
		&snapshot.Data,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot for %s: %w", service, err)
	}
	return &snapshot, nil
}

// Latest returns the most recent snapshot for a service.
func (r *SnapshotRepository) Latest(ctx context.Context, service string) (*Snapshot, error) {
	query := `
		SELECT id, service, snapshot_data, created_at
		FROM snapshots
		WHERE service = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var snapshot Snapshot
	err := r.pool.QueryRow(ctx, query, service).Scan(
		&snapshot.ID,
		&snapshot.Service,
		&snapshot.Data,
		&snapshot.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot for %s: %w", service, err)
	}
	return &snapshot, nil
}
