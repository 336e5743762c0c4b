// Package config reads the musicSynk server configuration from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Mode selects which provider backend serves the control panel.
type Mode string

const (
	// ModeMock serves canned in-memory data for UI development.
	ModeMock Mode = "mock"

	// ModeSpotifyReadonly runs the real read-only snapshot pipeline.
	ModeSpotifyReadonly Mode = "spotify_readonly"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:8080"

// ErrWritesEnabled is returned when SYNC_WRITE_ENABLED is set while running
// in spotify_readonly mode. The snapshot pipeline never writes to Spotify
// and refuses to start if configured otherwise.
var ErrWritesEnabled = errors.New("SYNC_WRITE_ENABLED must remain false in spotify_readonly mode")

// MissingEnvError reports a required environment variable that is not set.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required environment variable: %s", e.Name)
}

// Config holds the full server configuration.
type Config struct {
	Mode             Mode
	Addr             string
	BaseURL          string
	WriteEnabled     bool
	DatabaseURL      string
	EncryptionKey    string
	SpotifyClientID  string
	SpotifySecret    string
	SpotifyRedirect  string
}

// Load reads configuration from the environment. Values are not validated
// beyond parsing; call Validate before starting the server.
func Load() *Config {
	return &Config{
		Mode:            readMode(os.Getenv("MUSICSYNK_APP_MODE")),
		Addr:            readDefault("MUSICSYNK_ADDR", DefaultAddr),
		BaseURL:         os.Getenv("MUSICSYNK_BASE_URL"),
		WriteEnabled:    readBool(os.Getenv("SYNC_WRITE_ENABLED"), false),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		EncryptionKey:   os.Getenv("ENCRYPTION_KEY"),
		SpotifyClientID: os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifySecret:   os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirect: os.Getenv("SPOTIFY_REDIRECT_URI"),
	}
}

// Validate checks that every variable required by the selected mode is set.
// It fails before any I/O happens so a misconfigured deployment surfaces
// immediately at startup.
func (c *Config) Validate() error {
	if c.Mode == ModeMock {
		return nil
	}

	if c.WriteEnabled {
		return ErrWritesEnabled
	}

	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", c.DatabaseURL},
		{"ENCRYPTION_KEY", c.EncryptionKey},
		{"SPOTIFY_CLIENT_ID", c.SpotifyClientID},
		{"SPOTIFY_CLIENT_SECRET", c.SpotifySecret},
		{"SPOTIFY_REDIRECT_URI", c.SpotifyRedirect},
	}
	for _, r := range required {
		if r.value == "" {
			return &MissingEnvError{Name: r.name}
		}
	}
	return nil
}

func readMode(value string) Mode {
	if value == string(ModeSpotifyReadonly) {
		return ModeSpotifyReadonly
	}
	return ModeMock
}

func readDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// readBool parses the usual truthy/falsy spellings. Unrecognized values fall
// back to the default rather than erroring, matching how the rest of the
// deployment tooling treats these flags.
func readBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
