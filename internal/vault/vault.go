// Package vault provides encrypted-at-rest storage for OAuth credential
// envelopes, one per external service.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/musicsynk/musicsynk/internal/db"
)

// Service keys.
const (
	ServiceSpotify    = "spotify"
	ServiceAppleMusic = "apple_music"
)

// Envelope kinds.
const (
	KindSpotifyTokenSet   = "spotify_token_set"
	KindAppleMusicSession = "apple_music_session"
)

// ErrDecrypt is returned when a stored envelope cannot be decrypted: the
// ciphertext/tag/iv triple is malformed, the version is unsupported, or the
// authentication tag fails to verify.
var ErrDecrypt = errors.New("decryption failed")

// Envelope is one service's credential material: an opaque payload plus
// auxiliary metadata carried through refreshes.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	Meta    map[string]any  `json:"meta,omitempty"`
}

// Store is the persistence backend for encrypted envelopes. Implemented by
// db.AuthSessionRepository.
type Store interface {
	Get(ctx context.Context, service string) (*db.AuthSession, error)
	Upsert(ctx context.Context, service string, encryptedData []byte) (*db.AuthSession, error)
	MarkInvalid(ctx context.Context, service, reason string) error
	Delete(ctx context.Context, service string) error
}

// Vault encrypts and decrypts credential envelopes against a Store.
type Vault struct {
	store  Store
	secret string
}

// New creates a Vault using the configured symmetric-encryption secret.
func New(store Store, secret string) *Vault {
	return &Vault{store: store, secret: secret}
}

// Get returns the raw stored row without decrypting the payload, for cheap
// health checks. Returns db.ErrNotFound when no credential is stored.
func (v *Vault) Get(ctx context.Context, service string) (*db.AuthSession, error) {
	return v.store.Get(ctx, service)
}

// Decrypted pairs the stored row with its decrypted envelope.
type Decrypted struct {
	Row      *db.AuthSession
	Envelope Envelope
}

// GetDecrypted returns the stored envelope with payload and meta decrypted.
// Returns db.ErrNotFound when no credential is stored and ErrDecrypt when
// the stored ciphertext fails authentication.
func (v *Vault) GetDecrypted(ctx context.Context, service string) (*Decrypted, error) {
	row, err := v.store.Get(ctx, service)
	if err != nil {
		return nil, err
	}

	plaintext, err := decrypt(v.secret, row.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("decrypting auth session for %s: %w", service, err)
	}

	var envelope Envelope
	if err := json.Unmarshal(plaintext, &envelope); err != nil {
		return nil, fmt.Errorf("parsing decrypted envelope for %s: %w", service, err)
	}

	return &Decrypted{Row: row, Envelope: envelope}, nil
}

// Upsert encrypts the full envelope and writes it as the single row for the
// service, marking it valid. The prior envelope is overwritten wholesale;
// callers must merge meta themselves before calling.
func (v *Vault) Upsert(ctx context.Context, service string, envelope Envelope) (*db.AuthSession, error) {
	plaintext, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("serializing envelope for %s: %w", service, err)
	}

	encrypted, err := encrypt(v.secret, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting envelope for %s: %w", service, err)
	}

	return v.store.Upsert(ctx, service, encrypted)
}

// MarkInvalid flags the stored credential as unusable without touching the
// payload. Used when a downstream call proves the credential is dead.
func (v *Vault) MarkInvalid(ctx context.Context, service, reason string) error {
	return v.store.MarkInvalid(ctx, service, reason)
}

// Delete removes the stored credential entirely. Used on disconnect.
func (v *Vault) Delete(ctx context.Context, service string) error {
	return v.store.Delete(ctx, service)
}
