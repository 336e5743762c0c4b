package provider

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/musicsynk/musicsynk/internal/db"
)

// Mock serves canned in-memory data so the UI can be developed without a
// Spotify app or a database. Triggered runs complete instantly.
type Mock struct {
	mu        sync.Mutex
	connected bool
	runs      []RunDetail
	playlists []PlaylistSetting
	now       func() time.Time
}

// NewMock creates a mock provider seeded with one completed run and a small
// playlist registry.
func NewMock() *Mock {
	m := &Mock{
		connected: true,
		now:       time.Now,
		playlists: []PlaylistSetting{
			{SpotifyID: "mock-gym", Name: "Gym", SongCount: 42, Fingerprint: "0c8a46900ab93fdc"},
			{SpotifyID: "mock-chill", Name: "Chill", SongCount: 31, Fingerprint: "5b3fca1d02e77a19"},
			{SpotifyID: "mock-road", Name: "Road Trip", SongCount: 55, Fingerprint: "e91d40bb6a2f03c7"},
		},
	}
	m.record(db.TriggerInitialSetup)
	return m
}

func (m *Mock) record(trigger db.Trigger) *RunDetail {
	started := m.now().Add(-3 * time.Second)
	completed := m.now()
	duration := 3
	summary := map[string]any{
		"mode":                    "mock",
		"source":                  "spotify",
		"playlists_scanned":       4,
		"playlists_skipped":       0,
		"spotify_total_songs":     128,
		"spotify_total_playlists": 4,
		"spotify_profile_name":    "Mock Listener",
		"note":                    "read-only snapshot; no playlist writes performed",
	}
	detail := RunDetail{
		RunRow: RunRow{
			ID:              uuid.New(),
			Kind:            string(db.RunKindSnapshotRefresh),
			TriggeredBy:     string(trigger),
			Status:          string(db.RunStatusCompleted),
			StartedAt:       started,
			CompletedAt:     &completed,
			DurationSeconds: &duration,
			SummaryLine:     summaryLine(string(db.RunStatusCompleted), summary, nil),
		},
		Summary: summary,
	}
	m.runs = append([]RunDetail{detail}, m.runs...)
	return &m.runs[0]
}

func (m *Mock) SetupStatus(ctx context.Context) (*SetupStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := "Mock Listener"
	status := &SetupStatus{
		SpotifyConnected:   m.connected,
		SpotifyProfileName: &name,
		InitialScanStatus:  ScanNotStarted,
	}
	if len(m.runs) > 0 {
		status.InitialScanStatus = ScanCompleted
		id := m.runs[len(m.runs)-1].ID
		status.InitialScanRunID = &id
	}
	status.SetupComplete = m.connected && status.InitialScanStatus == ScanCompleted
	return status, nil
}

func (m *Mock) AppShellStatus(ctx context.Context) (*AppShellStatus, error) {
	return &AppShellStatus{
		Mode:        "mock",
		SpotifyAuth: AuthHealthy,
		ReadOnly:    true,
	}, nil
}

func (m *Mock) StartInitialScan(ctx context.Context) (*RunDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(db.TriggerInitialSetup), nil
}

func (m *Mock) TriggerManualSync(ctx context.Context) (*RunDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(db.TriggerManual), nil
}

func (m *Mock) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	rows := make([]RunRow, limit)
	for i := range rows {
		rows[i] = m.runs[i].RunRow
	}
	return rows, nil
}

func (m *Mock) ListPlaylistSettings(ctx context.Context) ([]PlaylistSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := make([]PlaylistSetting, len(m.playlists))
	copy(settings, m.playlists)
	return settings, nil
}

func (m *Mock) UpdatePlaylistExclusion(ctx context.Context, spotifyID string, excluded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.playlists {
		if m.playlists[i].SpotifyID == spotifyID {
			m.playlists[i].IsExcluded = excluded
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *Mock) DisconnectSpotify(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	return nil
}

func (m *Mock) GetRun(ctx context.Context, id uuid.UUID) (*RunDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID == id {
			detail := m.runs[i]
			return &detail, nil
		}
	}
	return nil, db.ErrNotFound
}
