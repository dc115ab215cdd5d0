package hass

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// clientID is the OAuth client identifier Home Assistant expects from local
// API consumers.
const clientID = "http://localhost"

// AuthManager mints and caches access tokens for the Home Assistant API.
//
// Two modes exist: refresh-token exchange against /auth/token, and a static
// long-lived token published by the container at startup. Refresh mode
// matters under time manipulation, where a large forward jump expires every
// outstanding access token.
type AuthManager struct {
	mu     sync.Mutex
	cfg    *oauth2.Config
	token  *oauth2.Token
	source oauth2.TokenSource
	static string
}

// NewAuthManager creates an auth manager that exchanges a long-lived refresh
// token for access tokens.
func NewAuthManager(baseURL, refreshToken string) *AuthManager {
	cfg := &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  baseURL + "/auth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return &AuthManager{
		cfg:   cfg,
		token: &oauth2.Token{RefreshToken: refreshToken},
	}
}

// NewStaticAuthManager creates an auth manager around a fixed long-lived
// access token. Regenerate is a no-op in this mode.
func NewStaticAuthManager(token string) *AuthManager {
	return &AuthManager{static: token}
}

// AccessToken returns a valid access token, minting one if none is cached.
func (a *AuthManager) AccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.static != "" {
		return a.static, nil
	}
	if a.source == nil {
		a.source = a.cfg.TokenSource(ctx, a.token)
	}
	tok, err := a.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token from %s: %w", a.cfg.Endpoint.TokenURL, err)
	}
	return tok.AccessToken, nil
}

// Regenerate discards any cached access token and mints a fresh one.
func (a *AuthManager) Regenerate(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.static != "" {
		a.mu.Unlock()
		return a.static, nil
	}
	// Dropping the source forces a fresh refresh-token exchange; the cached
	// access token may claim to be valid long after a time jump expired it.
	a.source = a.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: a.token.RefreshToken})
	source := a.source
	a.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to regenerate access token from %s: %w", a.cfg.Endpoint.TokenURL, err)
	}
	return tok.AccessToken, nil
}
