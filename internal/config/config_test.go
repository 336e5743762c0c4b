package config

import (
	"errors"
	"testing"
)

func TestReadBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback bool
		want     bool
	}{
		{"empty uses fallback", "", true, true},
		{"one", "1", false, true},
		{"true", "true", false, true},
		{"yes uppercase", "YES", false, true},
		{"on", "on", false, true},
		{"zero", "0", true, false},
		{"false", "false", true, false},
		{"no", "no", true, false},
		{"off uppercase", "OFF", true, false},
		{"garbage uses fallback", "maybe", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readBool(tt.value, tt.fallback); got != tt.want {
				t.Errorf("readBool(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestReadMode(t *testing.T) {
	if got := readMode("spotify_readonly"); got != ModeSpotifyReadonly {
		t.Errorf("readMode(spotify_readonly) = %q", got)
	}
	if got := readMode(""); got != ModeMock {
		t.Errorf("readMode(empty) = %q, want mock", got)
	}
	if got := readMode("something_else"); got != ModeMock {
		t.Errorf("readMode(unknown) = %q, want mock", got)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Mode:            ModeSpotifyReadonly,
			DatabaseURL:     "postgres://localhost/musicsynk",
			EncryptionKey:   "secret",
			SpotifyClientID: "client",
			SpotifySecret:   "shh",
			SpotifyRedirect: "http://127.0.0.1:8080/auth/spotify/callback",
		}
	}

	t.Run("valid readonly config", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Fatalf("Validate() = %v, want nil", err)
		}
	})

	t.Run("mock mode needs nothing", func(t *testing.T) {
		cfg := &Config{Mode: ModeMock}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() = %v, want nil", err)
		}
	})

	t.Run("writes enabled refused", func(t *testing.T) {
		cfg := base()
		cfg.WriteEnabled = true
		if err := cfg.Validate(); !errors.Is(err, ErrWritesEnabled) {
			t.Fatalf("Validate() = %v, want ErrWritesEnabled", err)
		}
	})

	t.Run("missing encryption key", func(t *testing.T) {
		cfg := base()
		cfg.EncryptionKey = ""
		err := cfg.Validate()
		var missing *MissingEnvError
		if !errors.As(err, &missing) {
			t.Fatalf("Validate() = %v, want MissingEnvError", err)
		}
		if missing.Name != "ENCRYPTION_KEY" {
			t.Errorf("missing.Name = %q, want ENCRYPTION_KEY", missing.Name)
		}
	})
}
