package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const trackItemJSON = `{
	"id": "trk1",
	"name": "Yesterday",
	"duration_ms": 125000,
	"external_ids": {"isrc": "GBAYE0601477"},
	"album": {"id": "alb1", "name": "Help!", "images": [{"url": "https://img/1", "height": 640, "width": 640}]},
	"artists": [{"id": "art1", "name": "The Beatles"}]
}`

// newTestClient returns a client pointed at srv with a valid token and no
// meaningful rate limit or backoff.
func newTestClient(t *testing.T, srv *httptest.Server, store TokenStore) *Client {
	t.Helper()

	c, err := NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:8888/callback",
		TokenStore:   store,
		BaseURL:      srv.URL + "/v1",
		AccountsURL:  srv.URL,
		HTTPClient:   srv.Client(),
		RateLimit:    rate.Inf,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	if store == nil {
		c.SetToken(&Token{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(time.Hour),
		})
	}
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{ClientSecret: "s"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(Config{ClientID: "i"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPlayer_CurrentlyPlaying(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantNil    bool
		wantType   ItemType
		wantTrack  string
		wantOffset time.Duration
	}{
		{
			name:       "track",
			status:     http.StatusOK,
			body:       `{"timestamp": 1700000000000, "progress_ms": 42000, "is_playing": true, "currently_playing_type": "track", "item": ` + trackItemJSON + `}`,
			wantType:   ItemTypeTrack,
			wantTrack:  "Yesterday",
			wantOffset: 42 * time.Second,
		},
		{
			name:     "episode",
			status:   http.StatusOK,
			body:     `{"timestamp": 1700000000000, "progress_ms": 1000, "is_playing": true, "currently_playing_type": "episode", "item": {"id": "ep1", "name": "Pod", "duration_ms": 3600000}}`,
			wantType: ItemTypeEpisode,
		},
		{
			name:     "ad without item",
			status:   http.StatusOK,
			body:     `{"timestamp": 1700000000000, "is_playing": true, "currently_playing_type": "ad", "item": null}`,
			wantType: ItemTypeAd,
		},
		{
			name:     "track type with null item",
			status:   http.StatusOK,
			body:     `{"timestamp": 1700000000000, "is_playing": true, "currently_playing_type": "track", "item": null}`,
			wantType: ItemTypeUnknown,
		},
		{
			name:    "nothing playing",
			status:  http.StatusNoContent,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/me/player/currently-playing", r.URL.Path)
				assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cp, err := newTestClient(t, srv, nil).Player().CurrentlyPlaying(context.Background())
			require.NoError(t, err)

			if tt.wantNil {
				assert.Nil(t, cp)
				return
			}
			require.NotNil(t, cp)
			assert.Equal(t, tt.wantType, cp.Item.Type)
			assert.Equal(t, time.UnixMilli(1700000000000).UTC(), cp.Timestamp)
			if tt.wantTrack != "" {
				require.NotNil(t, cp.Item.Track)
				assert.Equal(t, tt.wantTrack, cp.Item.Track.Name)
				assert.Equal(t, 125*time.Second, cp.Item.Track.Duration())
				assert.Equal(t, "GBAYE0601477", cp.Item.Track.ExternalIDs.ISRC)
				assert.Equal(t, tt.wantOffset, cp.Progress)
			}
		})
	}
}

func TestPlayer_RecentlyPlayed(t *testing.T) {
	after := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/me/player/recently-played", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "1767323045000", r.URL.Query().Get("after"))
		_, _ = w.Write([]byte(`{"items": [
			{"played_at": "2026-01-02T03:10:00.000Z", "track": ` + trackItemJSON + `},
			{"played_at": "2026-01-02T03:06:00.000Z", "track": ` + trackItemJSON + `}
		]}`))
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv, nil).Player().RecentlyPlayed(context.Background(), after, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 10, 0, 0, time.UTC), items[0].PlayedAt.UTC())
	assert.Equal(t, "trk1", items[1].Track.ID)
}

func TestArtists_GetSeveralBatches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		assert.LessOrEqual(t, len(ids), maxArtistsPerRequest)

		var b strings.Builder
		b.WriteString(`{"artists": [`)
		for i, id := range ids {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`{"id": "` + id + `", "name": "n", "genres": ["rock"]}`)
		}
		b.WriteString(`, null]}`)
		_, _ = w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	ids := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		ids = append(ids, "a"+string(rune('A'+i%26)))
	}

	artists, err := newTestClient(t, srv, nil).Artists().GetSeveral(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, artists, 60)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransport_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cp, err := newTestClient(t, srv, nil).Player().CurrentlyPlaying(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"status": 503, "message": "Service unavailable"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil).Player().CurrentlyPlaying(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "Service unavailable", apiErr.Message)
	assert.Equal(t, int32(maxRetries), calls.Load())
}

func TestTransport_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"status": 403, "message": "Insufficient client scope"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, nil).Player().CurrentlyPlaying(context.Background())
	assert.ErrorIs(t, err, &Error{Status: http.StatusForbidden})
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransport_RefreshesOnUnauthorized(t *testing.T) {
	var apiCalls, tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/token":
			tokenCalls.Add(1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "refresh", r.PostForm.Get("refresh_token"))
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "id", user)
			assert.Equal(t, "secret", pass)
			_, _ = w.Write([]byte(`{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600}`))
		default:
			apiCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error": {"status": 401, "message": "The access token expired"}}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	store := &memTokenStore{token: &Token{AccessToken: "stale", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}}
	c := newTestClient(t, srv, store)

	_, err := c.Player().CurrentlyPlaying(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), apiCalls.Load())
	assert.Equal(t, int32(1), tokenCalls.Load())

	require.NotNil(t, store.saved)
	assert.Equal(t, "fresh", store.saved.AccessToken)
	assert.Equal(t, "refresh", store.saved.RefreshToken, "refresh token should carry over")
}

func TestTransport_NoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a token")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &memTokenStore{})
	_, err := c.Player().CurrentlyPlaying(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, c.Auth().HasValidAuth())
}

func TestParseAPIError_RetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")

	e := parseAPIError(resp, []byte(`{"error": {"status": 429, "message": "API rate limit exceeded"}}`))
	assert.Equal(t, 7*time.Second, e.RetryAfter)
	assert.True(t, e.Temporary())
	assert.Equal(t, "spotify: error 429: API rate limit exceeded", e.Error())
}

func TestParseAPIError_AccountsFormat(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusBadRequest, Header: http.Header{}}

	e := parseAPIError(resp, []byte(`{"error": "invalid_grant", "error_description": "Invalid authorization code"}`))
	assert.Equal(t, "invalid_grant: Invalid authorization code", e.Message)
	assert.False(t, e.Temporary())
}

func TestAuth_AuthorizeURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	u := newTestClient(t, srv, nil).Auth().AuthorizeURL("xyz")
	assert.True(t, strings.HasPrefix(u, srv.URL+"/authorize?"))
	assert.Contains(t, u, "client_id=id")
	assert.Contains(t, u, "state=xyz")
	assert.Contains(t, u, "user-read-recently-played")
	assert.Contains(t, u, "redirect_uri=http%3A%2F%2F127.0.0.1%3A8888%2Fcallback")
}

func TestAuth_ExchangeSavesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		_, _ = w.Write([]byte(`{"access_token": "a", "refresh_token": "r", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer srv.Close()

	store := FileTokenStore{Path: filepath.Join(t.TempDir(), "nested", "token.json")}
	c := newTestClient(t, srv, store)

	token, err := c.Auth().Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.True(t, token.Valid())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.AccessToken)
	assert.Equal(t, "r", loaded.RefreshToken)
	assert.True(t, c.Auth().HasValidAuth())
}

func TestFileTokenStore_Missing(t *testing.T) {
	_, err := FileTokenStore{Path: filepath.Join(t.TempDir(), "none.json")}.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

type memTokenStore struct {
	token *Token
	saved *Token
}

func (m *memTokenStore) Load() (*Token, error) {
	if m.token == nil {
		return nil, ErrNoToken
	}
	return m.token, nil
}

func (m *memTokenStore) Save(t *Token) error {
	m.saved = t
	m.token = t
	return nil
}
