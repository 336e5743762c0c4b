// Package sync orchestrates snapshot-refresh runs end to end: token
// lifecycle, paginated library fetch, snapshot assembly, and the run record
// that makes every attempt auditable.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/musicsynk/musicsynk/internal/auth"
	"github.com/musicsynk/musicsynk/internal/config"
	"github.com/musicsynk/musicsynk/internal/db"
	"github.com/musicsynk/musicsynk/internal/snapshot"
	"github.com/musicsynk/musicsynk/internal/spotify"
	"github.com/musicsynk/musicsynk/internal/vault"
)

// Common errors.
var (
	// ErrNotConnected is returned when no Spotify credential is stored.
	ErrNotConnected = errors.New("spotify is not connected")

	// ErrRunInFlight is returned when a run of the same kind is already
	// in the running state. The check is advisory, not a lock.
	ErrRunInFlight = errors.New("a snapshot refresh is already running")
)

const (
	// defaultRunTimeout bounds one whole run across all of its page
	// walks.
	defaultRunTimeout = 10 * time.Minute

	// maxErrorDetailLen bounds the error string recorded on a failed
	// run; provider payloads can be arbitrarily large.
	maxErrorDetailLen = 500

	// fallbackErrorDetail is recorded when a failure carries no message.
	fallbackErrorDetail = "snapshot_refresh_failed"

	readOnlyNote = "read-only snapshot; no playlist writes performed"
)

// RunStore records run state transitions. Implemented by db.RunRepository.
type RunStore interface {
	CreateRunning(ctx context.Context, kind db.RunKind, trigger db.Trigger, summary map[string]any) (*db.Run, error)
	Complete(ctx context.Context, id uuid.UUID, completedAt time.Time, durationSeconds int, summary map[string]any) (*db.Run, error)
	Fail(ctx context.Context, id uuid.UUID, completedAt time.Time, errorDetails string, summary map[string]any) error
	HasRunning(ctx context.Context, kind db.RunKind) (bool, error)
}

// SnapshotStore persists assembled snapshots. Implemented by
// db.SnapshotRepository.
type SnapshotStore interface {
	Insert(ctx context.Context, service string, data []byte) (*db.Snapshot, error)
}

// RegistryStore maintains the playlist registry. Implemented by
// db.PlaylistRegistryRepository.
type RegistryStore interface {
	UpsertBatch(ctx context.Context, entries []db.RegistryEntry) error
	List(ctx context.Context, limit int) ([]db.RegistryEntry, error)
}

// TokenSource supplies a usable token set and persists profile metadata.
// Implemented by auth.Manager.
type TokenSource interface {
	ValidTokenSet(ctx context.Context) (*auth.TokenState, error)
	SaveProfile(ctx context.Context, state *auth.TokenState, profile spotify.Profile) error
}

// LibraryClient is the read-only API surface one run needs. Implemented by
// spotify.Client.
type LibraryClient interface {
	Profile(ctx context.Context) (*spotify.Profile, error)
	ListOwnedPlaylists(ctx context.Context, ownerID string) ([]spotify.Playlist, error)
	ListPlaylistTracks(ctx context.Context, playlistID string) ([]snapshot.Song, error)
}

// ClientFactory builds a LibraryClient bound to one access token.
type ClientFactory func(accessToken string) LibraryClient

// Runner executes snapshot-refresh runs.
type Runner struct {
	runs      RunStore
	snapshots SnapshotStore
	registry  RegistryStore
	tokens    TokenSource
	newClient ClientFactory

	mode         config.Mode
	writeEnabled bool
	timeout      time.Duration
	logger       *log.Logger
	now          func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout overrides the whole-run deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a snapshot-refresh runner.
func NewRunner(runs RunStore, snapshots SnapshotStore, registry RegistryStore, tokens TokenSource, newClient ClientFactory, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		runs:         runs,
		snapshots:    snapshots,
		registry:     registry,
		tokens:       tokens,
		newClient:    newClient,
		mode:         cfg.Mode,
		writeEnabled: cfg.WriteEnabled,
		timeout:      defaultRunTimeout,
		logger:       log.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunSnapshotRefresh executes one snapshot refresh and records it as a run.
// The run row is inserted in running status before any external call so a
// crash mid-fetch leaves visible evidence. Any failure marks the run failed
// with a bounded error detail and is returned to the caller; there are no
// internal retries.
func (r *Runner) RunSnapshotRefresh(ctx context.Context, trigger db.Trigger) (*db.Run, error) {
	if r.writeEnabled {
		return nil, config.ErrWritesEnabled
	}

	inFlight, err := r.runs.HasRunning(ctx, db.RunKindSnapshotRefresh)
	if err != nil {
		return nil, fmt.Errorf("checking for running refresh: %w", err)
	}
	if inFlight {
		return nil, ErrRunInFlight
	}

	baseSummary := map[string]any{
		"mode":   string(r.mode),
		"source": "spotify",
	}

	run, err := r.runs.CreateRunning(ctx, db.RunKindSnapshotRefresh, trigger, baseSummary)
	if err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	r.logger.Info("snapshot refresh started", "run_id", run.ID, "trigger", trigger)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	summary, runErr := r.refresh(runCtx, baseSummary)
	completedAt := r.now()
	duration := durationSeconds(run.StartedAt, completedAt)

	if runErr != nil {
		detail := errorDetail(runErr, runCtx)
		r.logger.Error("snapshot refresh failed", "run_id", run.ID, "error", runErr)
		if failErr := r.runs.Fail(context.WithoutCancel(ctx), run.ID, completedAt, detail, baseSummary); failErr != nil {
			r.logger.Error("recording run failure", "run_id", run.ID, "error", failErr)
		}
		return nil, runErr
	}

	completed, err := r.runs.Complete(ctx, run.ID, completedAt, duration, summary)
	if err != nil {
		// The row must still reach a terminal state even when the
		// completion write fails.
		err = fmt.Errorf("recording run completion: %w", err)
		if failErr := r.runs.Fail(context.WithoutCancel(ctx), run.ID, completedAt, bound(err.Error()), baseSummary); failErr != nil {
			r.logger.Error("recording run failure", "run_id", run.ID, "error", failErr)
		}
		return nil, err
	}

	r.logger.Info("snapshot refresh completed",
		"run_id", completed.ID,
		"playlists", summary["playlists_scanned"],
		"songs", summary["spotify_total_songs"],
		"duration_seconds", duration)
	return completed, nil
}

// refresh performs the fetch-assemble-persist chain and returns the
// completion summary. Playlists are walked strictly in the order the
// provider returned them; there is no parallel fan-out, by the provider's
// rate limits.
func (r *Runner) refresh(ctx context.Context, baseSummary map[string]any) (map[string]any, error) {
	state, err := r.tokens.ValidTokenSet(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrNotConnected
	}

	client := r.newClient(state.TokenSet.AccessToken)

	profile, err := client.Profile(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.tokens.SaveProfile(ctx, state, *profile); err != nil {
		r.logger.Warn("persisting profile metadata", "error", err)
	}

	playlists, err := client.ListOwnedPlaylists(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	excluded, err := r.excludedPlaylists(ctx)
	if err != nil {
		return nil, err
	}

	var built []snapshot.Playlist
	skipped := 0
	for _, pl := range playlists {
		if excluded[pl.ID] {
			skipped++
			continue
		}
		songs, err := client.ListPlaylistTracks(ctx, pl.ID)
		if err != nil {
			return nil, err
		}
		built = append(built, snapshot.BuildPlaylist(pl.ID, pl.Name, songs))
	}

	library := snapshot.Assemble(profile.ID, profile.Name(), built)

	data, err := json.Marshal(library)
	if err != nil {
		return nil, fmt.Errorf("serializing snapshot: %w", err)
	}
	if _, err := r.snapshots.Insert(ctx, vault.ServiceSpotify, data); err != nil {
		return nil, err
	}

	entries := make([]db.RegistryEntry, len(library.Playlists))
	for i, pl := range library.Playlists {
		entries[i] = db.RegistryEntry{
			SpotifyID:   pl.ID,
			Name:        pl.Name,
			SongCount:   pl.SongCount,
			Fingerprint: pl.Fingerprint,
		}
	}
	if err := r.registry.UpsertBatch(ctx, entries); err != nil {
		return nil, err
	}

	summary := map[string]any{
		"playlists_scanned":       library.PlaylistCount,
		"playlists_skipped":       skipped,
		"spotify_total_songs":     library.TotalSongs,
		"spotify_total_playlists": len(playlists),
		"spotify_profile_name":    library.ProfileName,
		"note":                    readOnlyNote,
	}
	for k, v := range baseSummary {
		summary[k] = v
	}
	return summary, nil
}

// excludedPlaylists returns the set of playlist ids flagged as excluded in
// the registry.
func (r *Runner) excludedPlaylists(ctx context.Context) (map[string]bool, error) {
	entries, err := r.registry.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("loading playlist registry: %w", err)
	}
	excluded := make(map[string]bool)
	for _, e := range entries {
		if e.IsExcluded {
			excluded[e.SpotifyID] = true
		}
	}
	return excluded, nil
}

// durationSeconds floors the run duration at one second; clock skew must
// never record a zero or negative duration.
func durationSeconds(start, end time.Time) int {
	seconds := int(end.Sub(start).Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}

// errorDetail extracts a bounded error string for the failed run row. A
// deadline expiry is recorded distinguishably from provider failures.
func errorDetail(err error, ctx context.Context) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "snapshot_refresh_timeout: " + bound(err.Error())
	}
	msg := err.Error()
	if msg == "" {
		return fallbackErrorDetail
	}
	return bound(msg)
}

func bound(msg string) string {
	if len(msg) > maxErrorDetailLen {
		return msg[:maxErrorDetailLen]
	}
	return msg
}
