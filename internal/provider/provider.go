// Package provider exposes the view surface the control-panel API serves:
// setup progress, app-shell health, and run history. Two variants exist, a
// canned in-memory one for UI development and the real read-only Spotify
// pipeline; the server binds to one at startup and never switches.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scan status values reported in the setup view.
const (
	ScanNotStarted = "not_started"
	ScanRunning    = "running"
	ScanCompleted  = "completed"
	ScanFailed     = "failed"
)

// Auth health values reported in the app-shell view.
const (
	AuthHealthy = "healthy"
	AuthInvalid = "invalid"
	AuthMissing = "missing"
)

// SetupStatus is the setup-wizard view: whether Spotify is connected and
// how far the initial scan has gotten. Setup stays complete once any scan
// has succeeded; a later failed refresh does not undo it.
type SetupStatus struct {
	SpotifyConnected   bool       `json:"spotify_connected"`
	SpotifyProfileName *string    `json:"spotify_profile_name"`
	InitialScanStatus  string     `json:"initial_scan_status"`
	InitialScanRunID   *uuid.UUID `json:"initial_scan_run_id"`
	InitialScanError   *string    `json:"initial_scan_error"`
	SetupComplete      bool       `json:"setup_complete"`
}

// AppShellStatus is the header-level health view shown on every page.
type AppShellStatus struct {
	Mode         string `json:"mode"`
	SpotifyAuth  string `json:"spotify_auth"`
	WriteEnabled bool   `json:"write_enabled"`
	ReadOnly     bool   `json:"read_only"`
}

// RunRow is one run-history row.
type RunRow struct {
	ID              uuid.UUID  `json:"id"`
	Kind            string     `json:"kind"`
	TriggeredBy     string     `json:"triggered_by"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	DurationSeconds *int       `json:"duration_seconds"`
	SummaryLine     string     `json:"summary_line"`
}

// RunDetail is one run with its full summary and error detail.
type RunDetail struct {
	RunRow
	Summary      map[string]any `json:"summary"`
	ErrorDetails *string        `json:"error_details"`
}

// PlaylistSetting is one registry row as shown on the settings surface.
type PlaylistSetting struct {
	SpotifyID   string `json:"spotify_id"`
	Name        string `json:"name"`
	SongCount   int    `json:"song_count"`
	Fingerprint string `json:"fingerprint"`
	IsExcluded  bool   `json:"is_excluded"`
}

// Provider is the view surface the web layer serves.
type Provider interface {
	SetupStatus(ctx context.Context) (*SetupStatus, error)
	AppShellStatus(ctx context.Context) (*AppShellStatus, error)
	StartInitialScan(ctx context.Context) (*RunDetail, error)
	TriggerManualSync(ctx context.Context) (*RunDetail, error)
	ListRuns(ctx context.Context, limit int) ([]RunRow, error)
	GetRun(ctx context.Context, id uuid.UUID) (*RunDetail, error)
	ListPlaylistSettings(ctx context.Context) ([]PlaylistSetting, error)
	UpdatePlaylistExclusion(ctx context.Context, spotifyID string, excluded bool) error
	DisconnectSpotify(ctx context.Context) error
}

// summaryLine renders the human one-liner shown in run history.
func summaryLine(status string, summary map[string]any, errorDetails *string) string {
	switch status {
	case "failed":
		if errorDetails != nil && *errorDetails != "" {
			return "snapshot refresh failed · " + *errorDetails
		}
		return "snapshot refresh failed"
	case "running":
		return "snapshot refresh · in progress"
	}
	playlists := summaryCount(summary, "playlists_scanned")
	songs := summaryCount(summary, "spotify_total_songs")
	return fmt.Sprintf("snapshot refresh · %d playlists · %d songs", playlists, songs)
}

// summaryCount reads a numeric summary value that may have round-tripped
// through JSON as float64.
func summaryCount(summary map[string]any, key string) int {
	switch v := summary[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
