package snapshot

import (
	"strings"
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint([]string{"t-3", "t-1", "t-2"})
	b := Fingerprint([]string{"t-2", "t-3", "t-1"})
	if a != b {
		t.Errorf("order changed fingerprint: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("len = %d, want 16", len(a))
	}
	if a != strings.ToLower(a) {
		t.Errorf("fingerprint %q not lowercase hex", a)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint([]string{"t-1", "t-2"})

	tests := []struct {
		name string
		ids  []string
	}{
		{"added id", []string{"t-1", "t-2", "t-3"}},
		{"removed id", []string{"t-1"}},
		{"replaced id", []string{"t-1", "t-9"}},
		{"duplicated id", []string{"t-1", "t-2", "t-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.ids); got == base {
				t.Errorf("Fingerprint(%v) = %q, want different from base", tt.ids, base)
			}
		})
	}
}

func TestFingerprintEmpty(t *testing.T) {
	a := Fingerprint(nil)
	b := Fingerprint([]string{})
	if a != b {
		t.Errorf("nil vs empty differ: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("len = %d, want 16", len(a))
	}
}

func TestFingerprintDoesNotMutateInput(t *testing.T) {
	ids := []string{"t-3", "t-1", "t-2"}
	Fingerprint(ids)
	if ids[0] != "t-3" || ids[1] != "t-1" || ids[2] != "t-2" {
		t.Errorf("input mutated: %v", ids)
	}
}

func TestBuildPlaylist(t *testing.T) {
	songs := []Song{
		{ID: "t-2", Title: "B", Artist: "X"},
		{ID: "t-1", Title: "A", Artist: "Y"},
	}
	pl := BuildPlaylist("pl-1", "Gym", songs)

	if pl.ID != "pl-1" || pl.Name != "Gym" {
		t.Errorf("playlist = %+v", pl)
	}
	if pl.SongCount != 2 {
		t.Errorf("SongCount = %d, want 2", pl.SongCount)
	}
	if pl.Fingerprint != Fingerprint([]string{"t-1", "t-2"}) {
		t.Errorf("Fingerprint = %q", pl.Fingerprint)
	}
	// Song order is preserved; only the fingerprint sorts.
	if pl.Songs[0].ID != "t-2" {
		t.Errorf("Songs[0].ID = %q, want t-2", pl.Songs[0].ID)
	}
}

func TestBuildPlaylistEmpty(t *testing.T) {
	pl := BuildPlaylist("pl-1", "Chill", nil)
	if pl.SongCount != 0 {
		t.Errorf("SongCount = %d, want 0", pl.SongCount)
	}
	if pl.Songs == nil {
		t.Error("Songs is nil, want empty slice")
	}
}

func TestAssemble(t *testing.T) {
	lib := Assemble("user_42", "Sam", []Playlist{
		{ID: "pl-1", SongCount: 3},
		{ID: "pl-2", SongCount: 0},
		{ID: "pl-3", SongCount: 7},
	})
	if lib.ProfileID != "user_42" || lib.ProfileName != "Sam" {
		t.Errorf("profile = %q/%q", lib.ProfileID, lib.ProfileName)
	}
	if lib.PlaylistCount != 3 {
		t.Errorf("PlaylistCount = %d, want 3", lib.PlaylistCount)
	}
	if lib.TotalSongs != 10 {
		t.Errorf("TotalSongs = %d, want 10", lib.TotalSongs)
	}
	if lib.Playlists[0].ID != "pl-1" || lib.Playlists[2].ID != "pl-3" {
		t.Errorf("playlist order changed: %+v", lib.Playlists)
	}
}

func TestAssembleEmpty(t *testing.T) {
	lib := Assemble("user_42", "Sam", nil)
	if lib.PlaylistCount != 0 || lib.TotalSongs != 0 {
		t.Errorf("totals = %d/%d, want zero", lib.PlaylistCount, lib.TotalSongs)
	}
	if lib.Playlists == nil {
		t.Error("Playlists is nil, want empty slice")
	}
}
