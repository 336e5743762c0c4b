package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/musicsynk/musicsynk/internal/config"
	"github.com/musicsynk/musicsynk/internal/db"
	"github.com/musicsynk/musicsynk/internal/vault"
)

// defaultRunListLimit caps history pages when the caller gives no limit.
const defaultRunListLimit = 20

// SnapshotRunner triggers one snapshot refresh. Implemented by sync.Runner.
type SnapshotRunner interface {
	RunSnapshotRefresh(ctx context.Context, trigger db.Trigger) (*db.Run, error)
}

// RunReader reads run history. Implemented by db.RunRepository.
type RunReader interface {
	List(ctx context.Context, limit int) ([]db.Run, error)
	Get(ctx context.Context, id uuid.UUID) (*db.Run, error)
	Latest(ctx context.Context, kind db.RunKind) (*db.Run, error)
	LatestCompleted(ctx context.Context, kind db.RunKind) (*db.Run, error)
}

// CredentialStore reads and removes the stored Spotify credential.
// Implemented by vault.Vault.
type CredentialStore interface {
	Get(ctx context.Context, service string) (*db.AuthSession, error)
	GetDecrypted(ctx context.Context, service string) (*vault.Decrypted, error)
	Delete(ctx context.Context, service string) error
}

// RegistrySettings is the registry surface the settings view uses.
// Implemented by db.PlaylistRegistryRepository.
type RegistrySettings interface {
	List(ctx context.Context, limit int) ([]db.RegistryEntry, error)
	SetExcluded(ctx context.Context, spotifyID string, excluded bool) error
}

// SpotifyReadonly is the real provider: views are derived from the vault
// and run history, never held as independent state.
type SpotifyReadonly struct {
	runs     RunReader
	vault    CredentialStore
	registry RegistrySettings
	runner   SnapshotRunner
	cfg      *config.Config
}

// NewSpotifyReadonly creates the real read-only provider.
func NewSpotifyReadonly(runs RunReader, v CredentialStore, registry RegistrySettings, runner SnapshotRunner, cfg *config.Config) *SpotifyReadonly {
	return &SpotifyReadonly{runs: runs, vault: v, registry: registry, runner: runner, cfg: cfg}
}

// SetupStatus derives the setup-wizard view from the vault and the most
// recent snapshot-refresh run.
func (p *SpotifyReadonly) SetupStatus(ctx context.Context) (*SetupStatus, error) {
	status := &SetupStatus{InitialScanStatus: ScanNotStarted}

	row, err := p.vault.Get(ctx, vault.ServiceSpotify)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("reading spotify credential: %w", err)
	}
	if row != nil && row.IsValid {
		status.SpotifyConnected = true
		status.SpotifyProfileName = p.profileName(ctx)
	}

	latest, err := p.runs.Latest(ctx, db.RunKindSnapshotRefresh)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("reading latest run: %w", err)
	}
	if latest != nil {
		status.InitialScanStatus = scanStatus(latest.Status)
		id := latest.ID
		status.InitialScanRunID = &id
		if latest.Status == db.RunStatusFailed {
			status.InitialScanError = latest.ErrorDetails
		}
	}

	// A later failed refresh must not un-complete setup; any completed
	// scan in history counts.
	completed, err := p.runs.LatestCompleted(ctx, db.RunKindSnapshotRefresh)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("reading latest completed run: %w", err)
	}

	status.SetupComplete = status.SpotifyConnected && completed != nil
	return status, nil
}

// profileName reads the profile display name persisted on the credential
// envelope. Any failure just drops the name; setup status must not break on
// a stale envelope.
func (p *SpotifyReadonly) profileName(ctx context.Context) *string {
	decrypted, err := p.vault.GetDecrypted(ctx, vault.ServiceSpotify)
	if err != nil {
		return nil
	}
	profile, ok := decrypted.Envelope.Meta["profile"].(map[string]any)
	if !ok {
		return nil
	}
	if name, ok := profile["display_name"].(string); ok && name != "" {
		return &name
	}
	if id, ok := profile["id"].(string); ok && id != "" {
		return &id
	}
	return nil
}

// AppShellStatus reports credential health and the read-only flags.
func (p *SpotifyReadonly) AppShellStatus(ctx context.Context) (*AppShellStatus, error) {
	status := &AppShellStatus{
		Mode:         string(p.cfg.Mode),
		SpotifyAuth:  AuthMissing,
		WriteEnabled: p.cfg.WriteEnabled,
		ReadOnly:     !p.cfg.WriteEnabled,
	}

	row, err := p.vault.Get(ctx, vault.ServiceSpotify)
	if errors.Is(err, db.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading spotify credential: %w", err)
	}
	if row.IsValid {
		status.SpotifyAuth = AuthHealthy
	} else {
		status.SpotifyAuth = AuthInvalid
	}
	return status, nil
}

// StartInitialScan runs one snapshot refresh tagged as the setup scan.
func (p *SpotifyReadonly) StartInitialScan(ctx context.Context) (*RunDetail, error) {
	run, err := p.runner.RunSnapshotRefresh(ctx, db.TriggerInitialSetup)
	if err != nil {
		return nil, err
	}
	return runDetail(run), nil
}

// TriggerManualSync runs one snapshot refresh tagged as manually triggered.
func (p *SpotifyReadonly) TriggerManualSync(ctx context.Context) (*RunDetail, error) {
	run, err := p.runner.RunSnapshotRefresh(ctx, db.TriggerManual)
	if err != nil {
		return nil, err
	}
	return runDetail(run), nil
}

// ListRuns returns run-history rows, newest first.
func (p *SpotifyReadonly) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	runs, err := p.runs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	rows := make([]RunRow, len(runs))
	for i, run := range runs {
		rows[i] = runRow(&run)
	}
	return rows, nil
}

// GetRun returns one run with its full summary. Returns db.ErrNotFound for
// an unknown id.
func (p *SpotifyReadonly) GetRun(ctx context.Context, id uuid.UUID) (*RunDetail, error) {
	run, err := p.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return runDetail(run), nil
}

// ListPlaylistSettings returns every registry row for the settings surface.
func (p *SpotifyReadonly) ListPlaylistSettings(ctx context.Context) ([]PlaylistSetting, error) {
	entries, err := p.registry.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing playlist registry: %w", err)
	}
	settings := make([]PlaylistSetting, len(entries))
	for i, e := range entries {
		settings[i] = PlaylistSetting{
			SpotifyID:   e.SpotifyID,
			Name:        e.Name,
			SongCount:   e.SongCount,
			Fingerprint: e.Fingerprint,
			IsExcluded:  e.IsExcluded,
		}
	}
	return settings, nil
}

// UpdatePlaylistExclusion flags one playlist in or out of future snapshot
// walks. Returns db.ErrNotFound for an unknown playlist id.
func (p *SpotifyReadonly) UpdatePlaylistExclusion(ctx context.Context, spotifyID string, excluded bool) error {
	return p.registry.SetExcluded(ctx, spotifyID, excluded)
}

// DisconnectSpotify removes the stored credential. Run history and
// snapshots are kept.
func (p *SpotifyReadonly) DisconnectSpotify(ctx context.Context) error {
	err := p.vault.Delete(ctx, vault.ServiceSpotify)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("removing spotify credential: %w", err)
	}
	return nil
}

func scanStatus(status db.RunStatus) string {
	switch status {
	case db.RunStatusRunning:
		return ScanRunning
	case db.RunStatusCompleted:
		return ScanCompleted
	default:
		return ScanFailed
	}
}

func runRow(run *db.Run) RunRow {
	return RunRow{
		ID:              run.ID,
		Kind:            string(run.Kind),
		TriggeredBy:     string(run.TriggeredBy),
		Status:          string(run.Status),
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		DurationSeconds: run.DurationSeconds,
		SummaryLine:     summaryLine(string(run.Status), run.Summary, run.ErrorDetails),
	}
}

func runDetail(run *db.Run) *RunDetail {
	return &RunDetail{
		RunRow:       runRow(run),
		Summary:      run.Summary,
		ErrorDetails: run.ErrorDetails,
	}
}
