// Package spotify speaks the Spotify Web API: the OAuth authorization-code
// and refresh-token flows, and read-only paginated library access.
package spotify

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	authorizeURL    = "https://accounts.spotify.com/authorize"
	defaultTokenURL = "https://accounts.spotify.com/api/token"
)

// ReadonlyScopes is the fixed read-only scope set this application requests.
// No write scope is ever requested.
var ReadonlyScopes = []string{
	"playlist-read-private",
	"playlist-read-collaborative",
	"user-library-read",
}

// TokenSet is the stored OAuth credential payload. ExpiresAt is always an
// absolute instant computed at fetch time from the provider's expires_in;
// bare relative seconds are never stored.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Profile is the authenticated user's Spotify profile.
type Profile struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"display_name"`
	Product     string  `json:"product,omitempty"`
}

// Name returns the profile's display name, falling back to the id.
func (p Profile) Name() string {
	if p.DisplayName != nil && *p.DisplayName != "" {
		return *p.DisplayName
	}
	return p.ID
}

// OAuthError reports a rejected token exchange or refresh, carrying the
// provider's error code and description when available.
type OAuthError struct {
	Op          string // "exchange" or "refresh"
	Status      int
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	msg := "spotify token " + e.Op + " failed"
	if e.Code != "" {
		msg += ": " + e.Code
	} else if e.Status != 0 {
		msg += ": status " + strconv.Itoa(e.Status)
	}
	if e.Description != "" {
		msg += " " + e.Description
	}
	return msg
}

// OAuth performs the authorization-code and refresh-token flows. It holds no
// persistent state of its own.
type OAuth struct {
	config *oauth2.Config
}

// OAuthOption configures an OAuth client.
type OAuthOption func(*OAuth)

// WithTokenURL overrides the token endpoint, for tests.
func WithTokenURL(tokenURL string) OAuthOption {
	return func(o *OAuth) {
		o.config.Endpoint.TokenURL = tokenURL
	}
}

// NewOAuth creates an OAuth client for the configured Spotify application.
func NewOAuth(clientID, clientSecret, redirectURI string, opts ...OAuthOption) *OAuth {
	o := &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       ReadonlyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authorizeURL,
				TokenURL:  defaultTokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewState creates a cryptographically random, URL-safe anti-CSRF state
// token with 128 bits of entropy.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthorizeURL builds the authorization URL for the given state. The consent
// dialog is always forced so a stale browser session can't silently bind the
// wrong account.
func (o *OAuth) AuthorizeURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// Exchange trades an authorization code for a token set. A provider
// rejection or a response missing required fields returns an *OAuthError.
func (o *OAuth) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, wrapOAuthError("exchange", err)
	}
	return tokenSetFrom("exchange", token)
}

// Refresh trades a refresh token for a fresh token set. When the provider
// omits a new refresh token the previous one is retained; rotation is
// optional, not guaranteed.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	source := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, wrapOAuthError("refresh", err)
	}

	set, err := tokenSetFrom("refresh", token)
	if err != nil {
		return nil, err
	}
	if set.RefreshToken == "" {
		set.RefreshToken = refreshToken
	}
	return set, nil
}

func wrapOAuthError(op string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		oauthErr := &OAuthError{
			Op:          op,
			Code:        retrieve.ErrorCode,
			Description: retrieve.ErrorDescription,
		}
		if retrieve.Response != nil {
			oauthErr.Status = retrieve.Response.StatusCode
		}
		return oauthErr
	}
	return fmt.Errorf("spotify token %s: %w", op, err)
}

func tokenSetFrom(op string, token *oauth2.Token) (*TokenSet, error) {
	if token.AccessToken == "" || token.TokenType == "" || token.Expiry.IsZero() {
		return nil, &OAuthError{Op: op, Code: "incomplete_response", Description: "missing access_token, token_type, or expires_in"}
	}

	scope, _ := token.Extra("scope").(string)
	return &TokenSet{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		Scope:        scope,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}
