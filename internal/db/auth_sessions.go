package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthSessionRepository handles auth_sessions database operations.
// Each external service has at most one row, keyed by service name.
type AuthSessionRepository struct {
	pool *pgxpool.Pool
}

const authSessionColumns = `id, service, encrypted_data, is_valid, last_validated_at, invalidated_reason, created_at, updated_at`

func scanAuthSession(row pgx.Row) (*AuthSession, error) {
	var session AuthSession
	err := row.Scan(
		&session.ID,
		&session.Service,
		&session.EncryptedData,
		&session.IsValid,
		&session.LastValidatedAt,
		&session.InvalidatedReason,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning auth session: %w", err)
	}
	return &session, nil
}

// Get retrieves the stored credential row for a service.
func (r *AuthSessionRepository) Get(ctx context.Context, service string) (*AuthSession, error) {
	query := `SELECT ` + authSessionColumns + ` FROM auth_sessions WHERE service = $1`
	return scanAuthSession(r.pool.QueryRow(ctx, query, service))
}

// Upsert replaces the credential row for a service wholesale, marking it
// valid and stamping last_validated_at.
func (r *AuthSessionRepository) Upsert(ctx context.Context, service string, encryptedData []byte) (*AuthSession, error) {
	query := `
		INSERT INTO auth_sessions (id, service, encrypted_data, is_valid, invalidated_reason, last_validated_at, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, NULL, NOW(), NOW(), NOW())
		ON CONFLICT (service) DO UPDATE SET
			encrypted_data = EXCLUDED.encrypted_data,
			is_valid = TRUE,
			invalidated_reason = NULL,
			last_validated_at = NOW(),
			updated_at = NOW()
		RETURNING ` + authSessionColumns
	session, err := scanAuthSession(r.pool.QueryRow(ctx, query, uuid.New(), service, encryptedData))
	if err != nil {
		return nil, fmt.Errorf("upserting auth session for %s: %w", service, err)
	}
	return session, nil
}

// MarkInvalid flips the validity flag without touching the stored payload.
func (r *AuthSessionRepository) MarkInvalid(ctx context.Context, service, reason string) error {
	query := `
		UPDATE auth_sessions
		SET is_valid = FALSE, invalidated_reason = $2, last_validated_at = NOW(), updated_at = NOW()
		WHERE service = $1
	`
	result, err := r.pool.Exec(ctx, query, service, reason)
	if err != nil {
		return fmt.Errorf("invalidating auth session for %s: %w", service, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the credential row for a service.
func (r *AuthSessionRepository) Delete(ctx context.Context, service string) error {
	query := `DELETE FROM auth_sessions WHERE service = $1`
	_, err := r.pool.Exec(ctx, query, service)
	if err != nil {
		return fmt.Errorf("deleting auth session for %s: %w", service, err)
	}
	return nil
}
