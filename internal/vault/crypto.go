package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	envelopeVersion = 1
	envelopeAlg     = "aes-256-gcm"
)

// encryptionEnvelope is the at-rest representation of an encrypted payload.
// The version and algorithm tags let a future scheme change be detected and
// rejected instead of silently mis-decrypted.
type encryptionEnvelope struct {
	Version    int    `json:"version"`
	Alg        string `json:"alg"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ciphertext"`
}

// deriveKey produces the 256-bit AES key from the configured secret.
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// encrypt seals plaintext with AES-256-GCM under a fresh random nonce and
// returns the serialized encryption envelope.
func encrypt(secret string, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()

	envelope := encryptionEnvelope{
		Version:    envelopeVersion,
		Alg:        envelopeAlg,
		IV:         base64.RawURLEncoding.EncodeToString(iv),
		Tag:        base64.RawURLEncoding.EncodeToString(sealed[tagStart:]),
		Ciphertext: base64.RawURLEncoding.EncodeToString(sealed[:tagStart]),
	}
	return json.Marshal(envelope)
}

// decrypt opens a serialized encryption envelope. Any malformed field,
// unsupported version, or authentication-tag mismatch returns ErrDecrypt;
// plaintext is never returned on a failed tag check.
func decrypt(secret string, data []byte) ([]byte, error) {
	var envelope encryptionEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %v", ErrDecrypt, err)
	}
	if envelope.Version != envelopeVersion || envelope.Alg != envelopeAlg {
		return nil, fmt.Errorf("%w: unsupported envelope version %d alg %q", ErrDecrypt, envelope.Version, envelope.Alg)
	}

	iv, err := base64.RawURLEncoding.DecodeString(envelope.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid iv: %v", ErrDecrypt, err)
	}
	tag, err := base64.RawURLEncoding.DecodeString(envelope.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tag: %v", ErrDecrypt, err)
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext: %v", ErrDecrypt, err)
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrDecrypt, len(iv))
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecrypt)
	}
	return plaintext, nil
}
