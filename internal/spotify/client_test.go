package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListOwnedPlaylistsPagination(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	page := func(items []map[string]any, next string) map[string]any {
		body := map[string]any{"items": items, "next": nil}
		if next != "" {
			body["next"] = server.URL + next
		}
		return body
	}
	playlist := func(id, name, owner string, total int) map[string]any {
		return map[string]any{
			"id":     id,
			"name":   name,
			"owner":  map[string]any{"id": owner},
			"tracks": map[string]any{"total": total},
		}
	}

	mux.HandleFunc("/v1/me/playlists", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]any
		switch r.URL.Query().Get("offset") {
		case "", "0":
			body = page([]map[string]any{
				playlist("pl-1", "Gym", "user_42", 2),
				playlist("pl-2", "Not Mine", "someone_else", 9),
			}, "/v1/me/playlists?offset=2&limit=2")
		case "2":
			body = page([]map[string]any{
				playlist("pl-3", "Chill", "user_42", 0),
			}, "/v1/me/playlists?offset=4&limit=2")
		case "4":
			body = page([]map[string]any{
				playlist("pl-4", "Road Trip", "user_42", 1),
			}, "")
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
		_ = json.NewEncoder(w).Encode(body)
	})

	client := NewClient("token-1", WithBaseURL(server.URL))
	playlists, err := client.ListOwnedPlaylists(context.Background(), "user_42")
	if err != nil {
		t.Fatalf("ListOwnedPlaylists() = %v", err)
	}

	if gotAuth != "Bearer token-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(playlists) != 3 {
		t.Fatalf("got %d playlists, want 3", len(playlists))
	}
	wantIDs := []string{"pl-1", "pl-3", "pl-4"}
	for i, want := range wantIDs {
		if playlists[i].ID != want {
			t.Errorf("playlists[%d].ID = %q, want %q", i, playlists[i].ID, want)
		}
	}
	if playlists[0].Name != "Gym" || playlists[0].TrackTotal != 2 {
		t.Errorf("playlists[0] = %+v", playlists[0])
	}
}

func TestListPlaylistTracksFiltering(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/playlists/pl-1/tracks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"is_local": false,
					"track": map[string]any{
						"type":        "track",
						"id":          "t-1",
						"name":        "Run It",
						"explicit":    true,
						"duration_ms": 201000,
						"external_ids": map[string]any{
							"isrc": "USX11111111",
						},
						"album": map[string]any{"name": "Singles"},
						"artists": []map[string]any{
							{"name": "Artist A"},
							{"name": "Artist B"},
						},
					},
				},
				// Local file: skipped.
				{
					"is_local": true,
					"track": map[string]any{
						"type": "track", "id": "t-local", "name": "Ripped MP3",
					},
				},
				// Episode: skipped.
				{
					"is_local": false,
					"track": map[string]any{
						"type": "episode", "id": "ep-1", "name": "Some Podcast",
					},
				},
				// Removed from catalog: no embedded track.
				{"is_local": false, "track": nil},
				// Missing id: skipped.
				{
					"is_local": false,
					"track": map[string]any{
						"type": "track", "id": "", "name": "Ghost",
					},
				},
				// No artists at all.
				{
					"is_local": false,
					"track": map[string]any{
						"type": "track", "id": "t-2", "name": "Anon",
						"artists": []map[string]any{},
					},
				},
			},
			"next": nil,
		})
	})

	client := NewClient("token-1", WithBaseURL(server.URL))
	songs, err := client.ListPlaylistTracks(context.Background(), "pl-1")
	if err != nil {
		t.Fatalf("ListPlaylistTracks() = %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("got %d songs, want 2: %+v", len(songs), songs)
	}

	first := songs[0]
	if first.ID != "t-1" || first.Title != "Run It" {
		t.Errorf("songs[0] = %+v", first)
	}
	if first.Artist != "Artist A, Artist B" {
		t.Errorf("Artist = %q", first.Artist)
	}
	if first.Album == nil || *first.Album != "Singles" {
		t.Errorf("Album = %v", first.Album)
	}
	if first.ISRC == nil || *first.ISRC != "USX11111111" {
		t.Errorf("ISRC = %v", first.ISRC)
	}
	if first.IsExplicit == nil || !*first.IsExplicit {
		t.Errorf("IsExplicit = %v", first.IsExplicit)
	}
	if first.DurationMS == nil || *first.DurationMS != 201000 {
		t.Errorf("DurationMS = %v", first.DurationMS)
	}

	if songs[1].Artist != unknownArtist {
		t.Errorf("songs[1].Artist = %q, want %q", songs[1].Artist, unknownArtist)
	}
	if songs[1].Album != nil || songs[1].ISRC != nil {
		t.Errorf("songs[1] optional fields = %+v, want nil", songs[1])
	}
}

func TestListPlaylistTracksEmptyPlaylist(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/playlists/pl-empty/tracks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{}, "next": nil})
	})

	client := NewClient("token-1", WithBaseURL(server.URL))
	songs, err := client.ListPlaylistTracks(context.Background(), "pl-empty")
	if err != nil {
		t.Fatalf("ListPlaylistTracks() = %v", err)
	}
	if songs == nil {
		t.Fatal("songs is nil, want empty slice")
	}
	if len(songs) != 0 {
		t.Fatalf("got %d songs, want 0", len(songs))
	}
}

func TestPageErrorAbortsFetch(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/me/playlists", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{},
				"next":  server.URL + "/v1/me/playlists?offset=50&limit=50",
			})
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"status": 429, "message": "rate limited"},
		})
	})

	client := NewClient("token-1", WithBaseURL(server.URL))
	_, err := client.ListOwnedPlaylists(context.Background(), "user_42")

	var pageErr *PageError
	if !errors.As(err, &pageErr) {
		t.Fatalf("ListOwnedPlaylists() = %v, want *PageError", err)
	}
	if pageErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", pageErr.Status)
	}
	if pageErr.Message != "rate limited" {
		t.Errorf("Message = %q", pageErr.Message)
	}
}

func TestMaxPagesGuard(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	var pages int
	mux.HandleFunc("/v1/me/playlists", func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Always advertise another page.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{},
			"next":  fmt.Sprintf("%s/v1/me/playlists?offset=%d&limit=50", server.URL, pages*50),
		})
	})

	client := NewClient("token-1", WithBaseURL(server.URL), WithMaxPages(3), WithRateLimit(1000))
	_, err := client.ListOwnedPlaylists(context.Background(), "user_42")

	var pageErr *PageError
	if !errors.As(err, &pageErr) {
		t.Fatalf("ListOwnedPlaylists() = %v, want *PageError", err)
	}
	if pages != 3 {
		t.Errorf("server saw %d pages, want 3", pages)
	}
}

func TestProfile(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           "user_42",
			"display_name": "Sam",
			"product":      "premium",
		})
	})

	client := NewClient("token-1", WithBaseURL(server.URL))
	profile, err := client.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() = %v", err)
	}
	if profile.ID != "user_42" {
		t.Errorf("ID = %q", profile.ID)
	}
	if profile.Name() != "Sam" {
		t.Errorf("Name() = %q", profile.Name())
	}
	if profile.Product != "premium" {
		t.Errorf("Product = %q", profile.Product)
	}
}

func TestProfileRejectedToken(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"status": 401, "message": "The access token expired"},
		})
	})

	client := NewClient("bad-token", WithBaseURL(server.URL))
	_, err := client.Profile(context.Background())

	var profileErr *ProfileError
	if !errors.As(err, &profileErr) {
		t.Fatalf("Profile() = %v, want *ProfileError", err)
	}
	if profileErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", profileErr.Status)
	}
}

func TestProfileNameFallback(t *testing.T) {
	p := &Profile{ID: "user_42"}
	if got := p.Name(); got != "user_42" {
		t.Errorf("Name() = %q, want id fallback", got)
	}
}
