package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/musicsynk/musicsynk/internal/snapshot"
)

const (
	defaultAPIBaseURL = "https://api.spotify.com"

	// unknownArtist labels tracks whose artist data is missing entirely.
	unknownArtist = "Unknown Artist"

	// defaultMaxPages bounds every pagination walk as a safety valve
	// against a provider bug that never returns a null cursor.
	defaultMaxPages = 200

	// defaultRequestsPerSecond paces page requests under Spotify's
	// per-app rate limit; snapshot walks issue many sequential calls.
	defaultRequestsPerSecond = 10
)

// PageError reports a failed paginated API request. It aborts the whole
// fetch; partial page data is never returned.
type PageError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *PageError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("spotify API error on %s: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("spotify API error on %s: status %d", e.Endpoint, e.Status)
}

// ProfileError reports a rejected profile fetch: the token was refused or
// the response omitted the user id.
type ProfileError struct {
	Status  int
	Message string
}

func (e *ProfileError) Error() string {
	if e.Message != "" {
		return "spotify profile fetch failed: " + e.Message
	}
	return fmt.Sprintf("spotify profile fetch failed: status %d", e.Status)
}

// Client is a read-only Spotify Web API client bound to one access token.
type Client struct {
	accessToken string
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	maxPages    int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL, for tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMaxPages overrides the pagination safety valve.
func WithMaxPages(maxPages int) ClientOption {
	return func(c *Client) {
		c.maxPages = maxPages
	}
}

// WithRateLimit overrides the request pacing in requests per second.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a read-only API client for the given access token.
func NewClient(accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		baseURL:     defaultAPIBaseURL,
		limiter:     rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		maxPages:    defaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// get performs one authenticated GET against the API and decodes the JSON
// response into result.
func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &PageError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  apiErr.Error.Message,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

// nextEndpoint re-derives the next request target from the provider's next
// URL, keeping only path and query. The provider controls the cursor; a
// fixed page-size increment is never assumed.
func nextEndpoint(next *string) (string, error) {
	if next == nil || *next == "" {
		return "", nil
	}
	parsed, err := url.Parse(*next)
	if err != nil {
		return "", fmt.Errorf("parsing next cursor %q: %w", *next, err)
	}
	endpoint := parsed.Path
	if parsed.RawQuery != "" {
		endpoint += "?" + parsed.RawQuery
	}
	return endpoint, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/me", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting profile: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Profile
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("decoding profile response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || body.ID == "" {
		return nil, &ProfileError{Status: resp.StatusCode, Message: body.Error.Message}
	}

	return &body.Profile, nil
}

// Playlist is a playlist as returned by the list endpoint, before snapshot
// assembly.
type Playlist struct {
	ID         string
	Name       string
	OwnerID    string
	TrackTotal int
}

type playlistPage struct {
	Items []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Owner struct {
			ID string `json:"id"`
		} `json:"owner"`
		Tracks struct {
			Total int `json:"total"`
		} `json:"tracks"`
	} `json:"items"`
	Next *string `json:"next"`
}

// ListOwnedPlaylists walks every page of the user's playlists and returns
// those owned by ownerID. Collaborative and followed playlists are excluded;
// ownership is determined by comparing owner id to the profile id.
func (c *Client) ListOwnedPlaylists(ctx context.Context, ownerID string) ([]Playlist, error) {
	var owned []Playlist
	endpoint := "/v1/me/playlists?limit=50"

	for page := 0; endpoint != ""; page++ {
		if page >= c.maxPages {
			return nil, &PageError{Endpoint: endpoint, Message: fmt.Sprintf("page limit %d exceeded", c.maxPages)}
		}

		var body playlistPage
		if err := c.get(ctx, endpoint, &body); err != nil {
			return nil, err
		}

		for _, item := range body.Items {
			if item.ID == "" || item.Owner.ID != ownerID {
				continue
			}
			owned = append(owned, Playlist{
				ID:         item.ID,
				Name:       item.Name,
				OwnerID:    item.Owner.ID,
				TrackTotal: item.Tracks.Total,
			})
		}

		next, err := nextEndpoint(body.Next)
		if err != nil {
			return nil, err
		}
		endpoint = next
	}

	return owned, nil
}

type trackPage struct {
	Items []struct {
		IsLocal bool `json:"is_local"`
		Track   *struct {
			Type        string `json:"type"`
			ID          string `json:"id"`
			Name        string `json:"name"`
			Explicit    *bool  `json:"explicit"`
			DurationMS  *int   `json:"duration_ms"`
			ExternalIDs struct {
				ISRC string `json:"isrc"`
			} `json:"external_ids"`
			Album struct {
				Name string `json:"name"`
			} `json:"album"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"track"`
	} `json:"items"`
	Next *string `json:"next"`
}

// ListPlaylistTracks walks every page of a playlist's tracks and returns
// normalized songs. Local files and entries whose embedded track is missing,
// not of track type, or lacking an id or name are skipped.
func (c *Client) ListPlaylistTracks(ctx context.Context, playlistID string) ([]snapshot.Song, error) {
	songs := []snapshot.Song{}
	endpoint := "/v1/playlists/" + url.PathEscape(playlistID) + "/tracks?limit=100"

	for page := 0; endpoint != ""; page++ {
		if page >= c.maxPages {
			return nil, &PageError{Endpoint: endpoint, Message: fmt.Sprintf("page limit %d exceeded", c.maxPages)}
		}

		var body trackPage
		if err := c.get(ctx, endpoint, &body); err != nil {
			return nil, err
		}

		for _, item := range body.Items {
			if item.IsLocal {
				continue
			}
			track := item.Track
			if track == nil || track.Type != "track" || track.ID == "" || track.Name == "" {
				continue
			}
			songs = append(songs, snapshot.Song{
				ID:         track.ID,
				Title:      track.Name,
				Artist:     joinArtists(track.Artists),
				Album:      optional(track.Album.Name),
				ISRC:       optional(track.ExternalIDs.ISRC),
				IsExplicit: track.Explicit,
				DurationMS: track.DurationMS,
			})
		}

		next, err := nextEndpoint(body.Next)
		if err != nil {
			return nil, err
		}
		endpoint = next
	}

	return songs, nil
}

func joinArtists(artists []struct {
	Name string `json:"name"`
}) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) == 0 {
		return unknownArtist
	}
	return strings.Join(names, ", ")
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
