package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaylistRegistryRepository handles playlist_registry database operations.
type PlaylistRegistryRepository struct {
	pool *pgxpool.Pool
}

// UpsertBatch inserts or updates registry rows keyed by spotify_id. The
// exclusion flag is preserved across upserts; only snapshot-derived fields
// are refreshed.
func (r *PlaylistRegistryRepository) UpsertBatch(ctx context.Context, entries []RegistryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO playlist_registry (spotify_id, name, song_count_spotify, last_known_fingerprint_spotify, created_at, updated_at)
		SELECT *, NOW(), NOW() FROM unnest($1::text[], $2::text[], $3::int[], $4::text[])
		ON CONFLICT (spotify_id) DO UPDATE SET
			name = EXCLUDED.name,
			song_count_spotify = EXCLUDED.song_count_spotify,
			last_known_fingerprint_spotify = EXCLUDED.last_known_fingerprint_spotify,
			updated_at = NOW()
	`

	ids := make([]string, len(entries))
	names := make([]string, len(entries))
	counts := make([]int, len(entries))
	fingerprints := make([]string, len(entries))

	for i, e := range entries {
		ids[i] = e.SpotifyID
		names[i] = e.Name
		counts[i] = e.SongCount
		fingerprints[i] = e.Fingerprint
	}

	_, err := r.pool.Exec(ctx, query, ids, names, counts, fingerprints)
	if err != nil {
		return fmt.Errorf("batch upserting playlist registry: %w", err)
	}
	return nil
}

// List returns registry entries in creation order. A non-positive limit
// returns all entries.
func (r *PlaylistRegistryRepository) List(ctx context.Context, limit int) ([]RegistryEntry, error) {
	query := `
		SELECT spotify_id, name, song_count_spotify, last_known_fingerprint_spotify, is_excluded, created_at, updated_at
		FROM playlist_registry
		ORDER BY created_at ASC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying playlist registry: %w", err)
	}
	defer rows.Close()

	var entries []RegistryEntry
	for rows.Next() {
		var e RegistryEntry
		if err := rows.Scan(
			&e.SpotifyID,
			&e.Name,
			&e.SongCount,
			&e.Fingerprint,
			&e.IsExcluded,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning registry entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetExcluded updates the exclusion flag for one playlist.
func (r *PlaylistRegistryRepository) SetExcluded(ctx context.Context, spotifyID string, excluded bool) error {
	query := `UPDATE playlist_registry SET is_excluded = $2, updated_at = NOW() WHERE spotify_id = $1`
	result, err := r.pool.Exec(ctx, query, spotifyID, excluded)
	if err != nil {
		return fmt.Errorf("updating playlist exclusion: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
