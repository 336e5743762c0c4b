package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/musicsynk/musicsynk/internal/config"
	"github.com/musicsynk/musicsynk/internal/db"
	"github.com/musicsynk/musicsynk/internal/provider"
	"github.com/musicsynk/musicsynk/internal/spotify"
	syncpkg "github.com/musicsynk/musicsynk/internal/sync"
	"github.com/musicsynk/musicsynk/internal/vault"
)

const (
	stateCookieName = "spotify_oauth_state"

	// stateCookieMaxAge bounds how long a pending connect flow stays
	// valid.
	stateCookieMaxAge = 10 * time.Minute

	// maxCallbackErrLen bounds error text carried in a redirect URL.
	maxCallbackErrLen = 180

	setupPath = "/setup"
)

// ProfileFetcher fetches the profile for a freshly exchanged token.
type ProfileFetcher func(ctx context.Context, accessToken string) (*spotify.Profile, error)

// Handlers contains the HTTP handlers.
type Handlers struct {
	provider     provider.Provider
	oauth        *spotify.OAuth
	credentials  *vault.Vault
	fetchProfile ProfileFetcher
	logger       *log.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(p provider.Provider, oauth *spotify.OAuth, credentials *vault.Vault, logger *log.Logger) *Handlers {
	return &Handlers{
		provider:    p,
		oauth:       oauth,
		credentials: credentials,
		fetchProfile: func(ctx context.Context, accessToken string) (*spotify.Profile, error) {
			return spotify.NewClient(accessToken).Profile(ctx)
		},
		logger: logger,
	}
}

// SpotifyConnect starts the OAuth flow (GET /auth/spotify).
func (h *Handlers) SpotifyConnect(w http.ResponseWriter, r *http.Request) {
	state, err := spotify.NewState()
	if err != nil {
		h.redirectSetupError(w, r, "state_generation_failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateCookieMaxAge.Seconds()),
	})

	http.Redirect(w, r, h.oauth.AuthorizeURL(state), http.StatusFound)
}

// SpotifyCallback completes the OAuth flow (GET /auth/spotify/callback).
// Every failure redirects back to the setup page with a bounded error code;
// nothing here raises a raw error to the browser.
func (h *Handlers) SpotifyCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		h.redirectSetupError(w, r, "missing_state")
		return
	}
	clearCookie(w, stateCookieName)

	if state := query.Get("state"); state == "" || state != stateCookie.Value {
		h.redirectSetupError(w, r, "state_mismatch")
		return
	}

	if errCode := query.Get("error"); errCode != "" {
		h.redirectSetupError(w, r, errCode)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectSetupError(w, r, "missing_code")
		return
	}

	set, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("spotify code exchange failed", "error", err)
		h.redirectSetupError(w, r, exchangeErrorCode(err))
		return
	}

	profile, err := h.fetchProfile(r.Context(), set.AccessToken)
	if err != nil {
		h.logger.Error("spotify profile fetch failed", "error", err)
		h.redirectSetupError(w, r, "profile_fetch_failed")
		return
	}

	payload, err := json.Marshal(set)
	if err != nil {
		h.redirectSetupError(w, r, "token_store_failed")
		return
	}
	_, err = h.credentials.Upsert(r.Context(), vault.ServiceSpotify, vault.Envelope{
		Kind:    vault.KindSpotifyTokenSet,
		Payload: payload,
		Meta: map[string]any{
			"profile":      profile,
			"scopes":       set.Scope,
			"connected_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		h.logger.Error("storing spotify credential failed", "error", err)
		h.redirectSetupError(w, r, "token_store_failed")
		return
	}

	h.logger.Info("spotify connected", "profile", profile.Name())
	http.Redirect(w, r, setupPath+"?spotify=connected", http.StatusFound)
}

// SetupStatus serves the setup-wizard view (GET /api/setup/status).
func (h *Handlers) SetupStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.provider.SetupStatus(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// InitialScan runs the first snapshot refresh (POST /api/setup/initial-scan).
func (h *Handlers) InitialScan(w http.ResponseWriter, r *http.Request) {
	detail, err := h.provider.StartInitialScan(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// TriggerSync runs a manual snapshot refresh (POST /api/sync/trigger).
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	detail, err := h.provider.TriggerManualSync(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// ListRuns serves run history (GET /api/runs).
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondJSON(w, http.StatusBadRequest, errorBody("invalid_limit"))
			return
		}
		limit = parsed
	}

	rows, err := h.provider.ListRuns(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": rows})
}

// GetRun serves one run's detail (GET /api/runs/{id}).
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody("invalid_run_id"))
		return
	}

	detail, err := h.provider.GetRun(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// ListSettings serves the playlist registry view (GET /api/settings).
func (h *Handlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.provider.ListPlaylistSettings(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"playlists": settings})
}

type settingsUpdate struct {
	Playlists []struct {
		SpotifyID  string `json:"spotify_id"`
		IsExcluded bool   `json:"is_excluded"`
	} `json:"playlists"`
}

// UpdateSettings writes exclusion flags (PUT /api/settings). An unknown
// playlist id fails the whole request.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody("invalid_body"))
		return
	}
	if len(body.Playlists) == 0 {
		respondJSON(w, http.StatusBadRequest, errorBody("empty_update"))
		return
	}

	for _, p := range body.Playlists {
		if p.SpotifyID == "" {
			respondJSON(w, http.StatusBadRequest, errorBody("missing_spotify_id"))
			return
		}
		if err := h.provider.UpdatePlaylistExclusion(r.Context(), p.SpotifyID, p.IsExcluded); err != nil {
			h.respondError(w, err)
			return
		}
	}

	settings, err := h.provider.ListPlaylistSettings(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"playlists": settings})
}

// SpotifyLogout drops the stored credential (POST /api/auth/spotify/logout).
func (h *Handlers) SpotifyLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.DisconnectSpotify(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("spotify disconnected")
	respondJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// AppShell serves the header-level health view (GET /api/app-shell).
func (h *Handlers) AppShell(w http.ResponseWriter, r *http.Request) {
	status, err := h.provider.AppShellStatus(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// respondError maps domain errors to HTTP statuses.
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody("not_found"))
	case errors.Is(err, syncpkg.ErrRunInFlight):
		respondJSON(w, http.StatusConflict, errorBody("run_in_flight"))
	case errors.Is(err, syncpkg.ErrNotConnected):
		respondJSON(w, http.StatusConflict, errorBody("spotify_not_connected"))
	case errors.Is(err, config.ErrWritesEnabled):
		respondJSON(w, http.StatusInternalServerError, errorBody("writes_enabled"))
	default:
		h.logger.Error("request failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody("internal_error"))
	}
}

func (h *Handlers) redirectSetupError(w http.ResponseWriter, r *http.Request, code string) {
	if len(code) > maxCallbackErrLen {
		code = code[:maxCallbackErrLen]
	}
	http.Redirect(w, r, setupPath+"?error="+url.QueryEscape(code), http.StatusFound)
}

// exchangeErrorCode extracts a short provider code from an exchange failure.
func exchangeErrorCode(err error) string {
	var oauthErr *spotify.OAuthError
	if errors.As(err, &oauthErr) && oauthErr.Code != "" {
		return oauthErr.Code
	}
	return "exchange_failed"
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(code string) map[string]string {
	return map[string]string{"error": code}
}
