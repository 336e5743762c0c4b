// Package auth manages the stored Spotify token lifecycle: deciding when a
// token needs refreshing and atomically replacing it in the vault.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/musicsynk/musicsynk/internal/db"
	"github.com/musicsynk/musicsynk/internal/spotify"
	"github.com/musicsynk/musicsynk/internal/vault"
)

// refreshBuffer is how close to expiry a token may get before it is
// refreshed. The snapshot walk issues many sequential calls; a token that
// expires mid-walk would abort cleanly but wastefully.
const refreshBuffer = 60 * time.Second

// Refresher performs the refresh-token grant. Implemented by spotify.OAuth.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*spotify.TokenSet, error)
}

// Manager is the single place token refresh happens; no other component
// writes token payloads.
type Manager struct {
	vault *vault.Vault
	oauth Refresher
	now   func() time.Time
}

// NewManager creates a token lifecycle manager over the vault.
func NewManager(v *vault.Vault, oauth Refresher) *Manager {
	return &Manager{vault: v, oauth: oauth, now: time.Now}
}

// TokenState is a usable token set plus the envelope metadata it was stored
// with.
type TokenState struct {
	TokenSet spotify.TokenSet
	Meta     map[string]any
}

// ValidTokenSet loads the stored Spotify token set, refreshing it first when
// it is expiring. Returns nil (no error) when no credential is stored —
// callers must treat that as "not connected".
//
// When the token is expiring but no refresh token is stored, the stale set
// is returned as-is; the caller will discover invalidity from the API
// response and is responsible for marking the credential invalid.
func (m *Manager) ValidTokenSet(ctx context.Context) (*TokenState, error) {
	decrypted, err := m.vault.GetDecrypted(ctx, vault.ServiceSpotify)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading spotify auth session: %w", err)
	}
	if decrypted.Envelope.Kind != vault.KindSpotifyTokenSet {
		return nil, nil
	}

	var set spotify.TokenSet
	if err := json.Unmarshal(decrypted.Envelope.Payload, &set); err != nil {
		return nil, fmt.Errorf("parsing spotify token payload: %w", err)
	}

	meta := decrypted.Envelope.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	// An unparsable/zero expiry counts as expiring: better a wasted
	// refresh than a walk aborted halfway.
	expiring := set.ExpiresAt.IsZero() || !set.ExpiresAt.After(m.now().Add(refreshBuffer))
	if !expiring || set.RefreshToken == "" {
		return &TokenState{TokenSet: set, Meta: meta}, nil
	}

	refreshed, err := m.oauth.Refresh(ctx, set.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refreshing spotify token: %w", err)
	}

	merged := mergeMeta(meta, map[string]any{
		"refreshed_at": m.now().UTC().Format(time.RFC3339),
	})
	if _, ok := merged["scopes"]; !ok && refreshed.Scope != "" {
		merged["scopes"] = refreshed.Scope
	}

	if err := m.saveTokenSet(ctx, refreshed, merged); err != nil {
		return nil, err
	}

	return &TokenState{TokenSet: *refreshed, Meta: merged}, nil
}

// SaveProfile records the fetched profile on the stored envelope so setup
// and dashboard views can show the account without a network call.
func (m *Manager) SaveProfile(ctx context.Context, state *TokenState, profile spotify.Profile) error {
	merged := mergeMeta(state.Meta, map[string]any{
		"profile":           profile,
		"profile_synced_at": m.now().UTC().Format(time.RFC3339),
	})
	if err := m.saveTokenSet(ctx, &state.TokenSet, merged); err != nil {
		return err
	}
	state.Meta = merged
	return nil
}

func (m *Manager) saveTokenSet(ctx context.Context, set *spotify.TokenSet, meta map[string]any) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("serializing spotify token payload: %w", err)
	}

	_, err = m.vault.Upsert(ctx, vault.ServiceSpotify, vault.Envelope{
		Kind:    vault.KindSpotifyTokenSet,
		Payload: payload,
		Meta:    meta,
	})
	if err != nil {
		return fmt.Errorf("storing spotify token set: %w", err)
	}
	return nil
}

// mergeMeta copies base and applies updates on top. Prior keys are never
// dropped; a refresh must not lose profile or scope metadata.
func mergeMeta(base, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}
