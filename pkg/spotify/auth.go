package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Scopes requested by the authorization code flow.
var Scopes = []string{
	"user-read-recently-played",
	"user-read-playback-state",
	"user-read-currently-playing",
}

// tokenExpiryDelta refreshes tokens slightly before they actually expire.
const tokenExpiryDelta = 30 * time.Second

// AuthService implements the OAuth authorization code flow.
type AuthService struct {
	client *Client
}

// AuthorizeURL returns the URL the user must visit to grant access.
// state is echoed back to the redirect URI and should be verified by the caller.
func (s *AuthService) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", s.client.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", s.client.redirectURI)
	q.Set("scope", strings.Join(Scopes, " "))
	q.Set("state", state)
	return s.client.accountsURL + "/authorize?" + q.Encode()
}

// Exchange trades an authorization code for a token, stores it and makes it
// the client's active token.
func (s *AuthService) Exchange(ctx context.Context, code string) (*Token, error) {
	if code == "" {
		return nil, fmt.Errorf("spotify: empty authorization code")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.client.redirectURI)

	var resp tokenResponse
	if err := s.client.postForm(ctx, "/api/token", form, &resp); err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	token := resp.toToken(nil)
	if err := s.client.saveToken(token); err != nil {
		return nil, err
	}
	return token, nil
}

// Refresh obtains a new access token using the stored refresh token.
func (s *AuthService) Refresh(ctx context.Context) (*Token, error) {
	s.client.tokenMu.Lock()
	defer s.client.tokenMu.Unlock()

	current, err := s.client.loadTokenLocked()
	if err != nil {
		return nil, err
	}
	return s.client.refreshLocked(ctx, current)
}

// HasValidAuth reports whether a token with a refresh token is available.
// An expired access token still counts: it is refreshed on first use.
func (s *AuthService) HasValidAuth() bool {
	s.client.tokenMu.Lock()
	defer s.client.tokenMu.Unlock()

	token, err := s.client.loadTokenLocked()
	if err != nil {
		return false
	}
	return token.Valid() || token.RefreshToken != ""
}

func (r tokenResponse) toToken(previous *Token) *Token {
	t := &Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		Scope:        r.Scope,
		RefreshToken: r.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(r.ExpiresIn) * time.Second),
	}
	// Spotify may omit the refresh token on refresh; keep the old one.
	if t.RefreshToken == "" && previous != nil {
		t.RefreshToken = previous.RefreshToken
	}
	return t
}

// accessToken returns a usable token, refreshing it when expired.
func (c *Client) accessToken(ctx context.Context) (*Token, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	token, err := c.loadTokenLocked()
	if err != nil {
		return nil, err
	}
	if token.Valid() {
		return token, nil
	}
	return c.refreshLocked(ctx, token)
}

// loadTokenLocked returns the in-memory token, falling back to the store.
// Must be called with tokenMu held.
func (c *Client) loadTokenLocked() (*Token, error) {
	if c.token != nil {
		return c.token, nil
	}
	if c.store == nil {
		return nil, ErrNoToken
	}
	token, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	c.token = token
	return token, nil
}

// refreshLocked must be called with tokenMu held.
func (c *Client) refreshLocked(ctx context.Context, current *Token) (*Token, error) {
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)

	var resp tokenResponse
	if err := c.postForm(ctx, "/api/token", form, &resp); err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	token := resp.toToken(current)
	c.token = token
	if c.store != nil {
		if err := c.store.Save(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
	}
	c.logDebugf("spotify: access token refreshed, expires %s", token.Expiry.Format(time.RFC3339))
	return token, nil
}

func (c *Client) saveToken(token *Token) error {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	c.token = token
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}
