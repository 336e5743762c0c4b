// Package snapshot assembles point-in-time library snapshots with stable
// content fingerprints. Everything here is pure: no I/O, no mutation of
// inputs.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 16

// Song is one normalized, playable track. Local files and non-track items
// are dropped before a Song is ever constructed.
type Song struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      *string `json:"album"`
	ISRC       *string `json:"isrc"`
	IsExplicit *bool   `json:"is_explicit"`
	DurationMS *int    `json:"duration_ms"`
}

// Playlist is one playlist's point-in-time contents.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SongCount   int    `json:"song_count"`
	Fingerprint string `json:"fingerprint"`
	Songs       []Song `json:"songs"`
}

// Library is the full snapshot payload persisted per run: the profile it
// was fetched for, aggregate totals, and every playlist's contents.
type Library struct {
	ProfileID     string     `json:"profile_id"`
	ProfileName   string     `json:"profile_name"`
	PlaylistCount int        `json:"playlist_count"`
	TotalSongs    int        `json:"total_songs"`
	Playlists     []Playlist `json:"playlists"`
}

// Assemble builds the full snapshot from per-playlist records, deriving the
// aggregate totals. Playlist order is preserved.
func Assemble(profileID, profileName string, playlists []Playlist) Library {
	if playlists == nil {
		playlists = []Playlist{}
	}
	totalSongs := 0
	for _, p := range playlists {
		totalSongs += p.SongCount
	}
	return Library{
		ProfileID:     profileID,
		ProfileName:   profileName,
		PlaylistCount: len(playlists),
		TotalSongs:    totalSongs,
		Playlists:     playlists,
	}
}

// Fingerprint computes a short deterministic hash over a set of song ids.
// The ids are sorted before hashing so the result is independent of the
// order the provider returned them in; external pagination order is not
// stable across calls.
func Fingerprint(songIDs []string) string {
	sorted := make([]string, len(songIDs))
	copy(sorted, songIDs)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// BuildPlaylist assembles one playlist snapshot record from its fetched
// songs, deriving the count and fingerprint.
func BuildPlaylist(id, name string, songs []Song) Playlist {
	if songs == nil {
		songs = []Song{}
	}
	ids := make([]string, len(songs))
	for i, s := range songs {
		ids[i] = s.ID
	}
	return Playlist{
		ID:          id,
		Name:        name,
		SongCount:   len(songs),
		Fingerprint: Fingerprint(ids),
		Songs:       songs,
	}
}
