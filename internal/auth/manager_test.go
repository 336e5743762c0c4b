package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/musicsynk/musicsynk/internal/db"
	"github.com/musicsynk/musicsynk/internal/spotify"
	"github.com/musicsynk/musicsynk/internal/vault"
)

type fakeStore struct {
	rows map[string]*db.AuthSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*db.AuthSession)}
}

func (s *fakeStore) Get(ctx context.Context, service string) (*db.AuthSession, error) {
	row, ok := s.rows[service]
	if !ok {
		return nil, db.ErrNotFound
	}
	return row, nil
}

func (s *fakeStore) Upsert(ctx context.Context, service string, encryptedData []byte) (*db.AuthSession, error) {
	row := &db.AuthSession{Service: service, EncryptedData: encryptedData, IsValid: true}
	s.rows[service] = row
	return row, nil
}

func (s *fakeStore) MarkInvalid(ctx context.Context, service, reason string) error {
	row, ok := s.rows[service]
	if !ok {
		return db.ErrNotFound
	}
	row.IsValid = false
	row.InvalidatedReason = &reason
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, service string) error {
	if _, ok := s.rows[service]; !ok {
		return db.ErrNotFound
	}
	delete(s.rows, service)
	return nil
}

type fakeRefresher struct {
	result *spotify.TokenSet
	err    error
	calls  int
	got    string
}

func (r *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*spotify.TokenSet, error) {
	r.calls++
	r.got = refreshToken
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

const testSecret = "manager-test-secret"

func storeTokenSet(t *testing.T, v *vault.Vault, set spotify.TokenSet, meta map[string]any) {
	t.Helper()
	payload, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshaling token set: %v", err)
	}
	_, err = v.Upsert(context.Background(), vault.ServiceSpotify, vault.Envelope{
		Kind:    vault.KindSpotifyTokenSet,
		Payload: payload,
		Meta:    meta,
	})
	if err != nil {
		t.Fatalf("storing token set: %v", err)
	}
}

func newTestManager(refresher *fakeRefresher, now time.Time) (*Manager, *vault.Vault) {
	v := vault.New(newFakeStore(), testSecret)
	m := NewManager(v, refresher)
	m.now = func() time.Time { return now }
	return m, v
}

func TestValidTokenSetFreshToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher := &fakeRefresher{}
	m, v := newTestManager(refresher, now)

	storeTokenSet(t, v, spotify.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(120 * time.Second),
	}, map[string]any{"scopes": "user-library-read"})

	state, err := m.ValidTokenSet(context.Background())
	if err != nil {
		t.Fatalf("ValidTokenSet() = %v", err)
	}
	if refresher.calls != 0 {
		t.Errorf("refresher called %d times, want 0", refresher.calls)
	}
	if state.TokenSet.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q", state.TokenSet.AccessToken)
	}
	if state.Meta["scopes"] != "user-library-read" {
		t.Errorf("Meta = %v", state.Meta)
	}
}

func TestValidTokenSetRefreshesInsideBuffer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher := &fakeRefresher{result: &spotify.TokenSet{
		AccessToken:  "access-2",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(time.Hour),
		Scope:        "user-library-read",
	}}
	m, v := newTestManager(refresher, now)

	storeTokenSet(t, v, spotify.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(30 * time.Second),
	}, map[string]any{"profile": map[string]any{"id": "user_42"}})

	state, err := m.ValidTokenSet(context.Background())
	if err != nil {
		t.Fatalf("ValidTokenSet() = %v", err)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresher called %d times, want 1", refresher.calls)
	}
	if refresher.got != "refresh-1" {
		t.Errorf("refresher got %q", refresher.got)
	}
	if state.TokenSet.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want refreshed access-2", state.TokenSet.AccessToken)
	}

	// Prior meta survives the refresh and refreshed_at is stamped.
	if _, ok := state.Meta["profile"]; !ok {
		t.Errorf("profile meta dropped on refresh: %v", state.Meta)
	}
	if state.Meta["refreshed_at"] != now.Format(time.RFC3339) {
		t.Errorf("refreshed_at = %v", state.Meta["refreshed_at"])
	}

	// The refreshed set is persisted, not just returned.
	decrypted, err := v.GetDecrypted(context.Background(), vault.ServiceSpotify)
	if err != nil {
		t.Fatalf("GetDecrypted() = %v", err)
	}
	var stored spotify.TokenSet
	if err := json.Unmarshal(decrypted.Envelope.Payload, &stored); err != nil {
		t.Fatalf("parsing stored payload: %v", err)
	}
	if stored.AccessToken != "access-2" {
		t.Errorf("stored AccessToken = %q, want access-2", stored.AccessToken)
	}
	if stored.RefreshToken != "refresh-1" {
		t.Errorf("stored RefreshToken = %q, want refresh-1", stored.RefreshToken)
	}
}

func TestValidTokenSetZeroExpiryRefreshes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher := &fakeRefresher{result: &spotify.TokenSet{
		AccessToken:  "access-2",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(time.Hour),
	}}
	m, v := newTestManager(refresher, now)

	storeTokenSet(t, v, spotify.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}, nil)

	if _, err := m.ValidTokenSet(context.Background()); err != nil {
		t.Fatalf("ValidTokenSet() = %v", err)
	}
	if refresher.calls != 1 {
		t.Errorf("refresher called %d times, want 1", refresher.calls)
	}
}

func TestValidTokenSetNoRefreshTokenReturnsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refresher := &fakeRefresher{}
	m, v := newTestManager(refresher, now)

	storeTokenSet(t, v, spotify.TokenSet{
		AccessToken: "access-1",
		ExpiresAt:   now.Add(-time.Minute),
	}, nil)

	state, err := m.ValidTokenSet(context.Background())
	if err != nil {
		t.Fatalf("ValidTokenSet() = %v", err)
	}
	if refresher.calls != 0 {
		t.Errorf("refresher called %d times, want 0", refresher.calls)
	}
	if state == nil || state.TokenSet.AccessToken != "access-1" {
		t.Errorf("state = %+v, want stale set returned as-is", state)
	}
}

func TestValidTokenSetNotConnected(t *testing.T) {
	m, _ := newTestManager(&fakeRefresher{}, time.Now())

	state, err := m.ValidTokenSet(context.Background())
	if err != nil {
		t.Fatalf("ValidTokenSet() = %v", err)
	}
	if state != nil {
		t.Errorf("state = %+v, want nil for missing credential", state)
	}
}

func TestValidTokenSetRefreshFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refreshErr := &spotify.OAuthError{Op: "refresh", Code: "invalid_grant"}
	refresher := &fakeRefresher{err: refreshErr}
	m, v := newTestManager(refresher, now)

	storeTokenSet(t, v, spotify.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(-time.Minute),
	}, nil)

	_, err := m.ValidTokenSet(context.Background())
	var oauthErr *spotify.OAuthError
	if !errors.As(err, &oauthErr) {
		t.Fatalf("ValidTokenSet() = %v, want wrapped *OAuthError", err)
	}
}

func TestSaveProfile(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, v := newTestManager(&fakeRefresher{}, now)

	storeTokenSet(t, v, spotify.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    now.Add(time.Hour),
	}, map[string]any{"scopes": "user-library-read"})

	state, err := m.ValidTokenSet(context.Background())
	if err != nil {
		t.Fatalf("ValidTokenSet() = %v", err)
	}

	name := "Sam"
	profile := spotify.Profile{ID: "user_42", DisplayName: &name, Product: "premium"}
	if err := m.SaveProfile(context.Background(), state, profile); err != nil {
		t.Fatalf("SaveProfile() = %v", err)
	}

	if _, ok := state.Meta["profile"]; !ok {
		t.Errorf("profile missing from state meta: %v", state.Meta)
	}
	if state.Meta["scopes"] != "user-library-read" {
		t.Errorf("scopes dropped: %v", state.Meta)
	}
	if state.Meta["profile_synced_at"] != now.Format(time.RFC3339) {
		t.Errorf("profile_synced_at = %v", state.Meta["profile_synced_at"])
	}

	decrypted, err := v.GetDecrypted(context.Background(), vault.ServiceSpotify)
	if err != nil {
		t.Fatalf("GetDecrypted() = %v", err)
	}
	stored, ok := decrypted.Envelope.Meta["profile"].(map[string]any)
	if !ok {
		t.Fatalf("stored profile meta = %v", decrypted.Envelope.Meta["profile"])
	}
	if stored["id"] != "user_42" {
		t.Errorf("stored profile id = %v", stored["id"])
	}
}
