package music

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jfmyers9/scrobblify/pkg/spotify"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const testTrackJSON = `{
	"id": "trk1",
	"name": "Yesterday",
	"duration_ms": 180000,
	"external_ids": {"isrc": "GBAYE0601477"},
	"album": {"id": "alb1", "name": "Help!", "images": [{"url": "https://img/1"}]},
	"artists": [{"id": "art1", "name": "The Beatles"}, {"id": "art2", "name": "George Martin"}]
}`

func newTestSource(t *testing.T, handler http.HandlerFunc) *SpotifySource {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := spotify.NewClient(spotify.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
		AccountsURL:  srv.URL,
		HTTPClient:   srv.Client(),
		RateLimit:    rate.Inf,
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.SetToken(&spotify.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)})

	return NewSpotifySource(client, BreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, zerolog.New(io.Discard))
}

func TestSpotifySource_CurrentlyPlaying(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		body           string
		wantNil        bool
		wantResolution bool
	}{
		{
			name:   "playing track",
			status: http.StatusOK,
			body:   `{"timestamp": 1700000000000, "progress_ms": 5000, "is_playing": true, "currently_playing_type": "track", "item": ` + testTrackJSON + `}`,
		},
		{
			name:    "paused track",
			status:  http.StatusOK,
			body:    `{"timestamp": 1700000000000, "progress_ms": 5000, "is_playing": false, "currently_playing_type": "track", "item": ` + testTrackJSON + `}`,
			wantNil: true,
		},
		{
			name:    "nothing playing",
			status:  http.StatusNoContent,
			wantNil: true,
		},
		{
			name:           "episode",
			status:         http.StatusOK,
			body:           `{"timestamp": 1700000000000, "is_playing": true, "currently_playing_type": "episode", "item": {"id": "ep", "name": "Pod"}}`,
			wantResolution: true,
		},
		{
			name:           "track without isrc",
			status:         http.StatusOK,
			body:           `{"timestamp": 1700000000000, "is_playing": true, "currently_playing_type": "track", "item": {"id": "t", "name": "x", "duration_ms": 1000, "album": {"id": "a"}, "artists": []}}`,
			wantResolution: true,
		},
		{
			name:           "ad",
			status:         http.StatusOK,
			body:           `{"timestamp": 1700000000000, "is_playing": true, "currently_playing_type": "ad"}`,
			wantResolution: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			snap, err := src.CurrentlyPlaying(context.Background())

			if tt.wantResolution {
				if !errors.Is(err, ErrTrackResolution) {
					t.Fatalf("expected ErrTrackResolution, got %v", err)
				}
				var fetchErr *SourceFetchError
				if errors.As(err, &fetchErr) {
					t.Error("resolution failure must not be reported as a fetch error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CurrentlyPlaying: %v", err)
			}
			if tt.wantNil {
				if snap != nil {
					t.Errorf("expected nil snapshot, got %+v", snap)
				}
				return
			}

			if snap == nil || snap.Track == nil {
				t.Fatal("expected a snapshot with a track")
			}
			if snap.Scrobbled {
				t.Error("fresh snapshot must not be marked scrobbled")
			}
			if snap.Track.ID != "trk1" || snap.Track.Duration != 3*time.Minute {
				t.Errorf("unexpected track: %+v", snap.Track)
			}
			if snap.Track.Album.Cover != "https://img/1" || snap.Track.Cover != "https://img/1" {
				t.Errorf("cover not mapped: %+v", snap.Track)
			}
			if got := snap.Track.ArtistNames(); got != "The Beatles, George Martin" {
				t.Errorf("ArtistNames() = %q", got)
			}
			if !snap.Timestamp.Equal(time.UnixMilli(1700000000000)) {
				t.Errorf("Timestamp = %v", snap.Timestamp)
			}
		})
	}
}

func TestSpotifySource_FetchErrorAndBreaker(t *testing.T) {
	var calls atomic.Int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	for i := 0; i < 3; i++ {
		_, err := src.CurrentlyPlaying(context.Background())
		var fetchErr *SourceFetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("call %d: expected SourceFetchError, got %v", i, err)
		}
	}

	// Third call is rejected by the open breaker without reaching the server.
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 requests before the breaker opened, got %d", got)
	}
	if src.BreakerState() != "open" {
		t.Errorf("BreakerState() = %q, want open", src.BreakerState())
	}
}

func TestSpotifySource_RecentlyPlayed(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [
			{"played_at": "2026-03-01T12:20:00Z", "track": ` + testTrackJSON + `},
			{"played_at": "2026-03-01T12:10:00Z", "track": ` + testTrackJSON + `},
			{"played_at": "2026-03-01T12:05:00Z", "track": {"id": "local", "is_local": true}},
			{"played_at": "2026-03-01T12:00:00Z", "track": ` + testTrackJSON + `}
		]}`))
	})

	entries, err := src.RecentlyPlayed(context.Background(), since)
	if err != nil {
		t.Fatalf("RecentlyPlayed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries strictly after since, got %d", len(entries))
	}
	if !entries[0].PlayedAt.Before(entries[1].PlayedAt) {
		t.Error("entries should be ordered oldest first")
	}
	if !entries[0].PlayedAt.Equal(since.Add(10 * time.Minute)) {
		t.Errorf("first entry PlayedAt = %v", entries[0].PlayedAt)
	}
}

func TestSpotifySource_TagsForArtists(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "art1,art2" {
			t.Errorf("ids = %q", got)
		}
		_, _ = w.Write([]byte(`{"artists": [
			{"id": "art1", "genres": ["rock", "british invasion", ""]},
			{"id": "art2", "genres": ["rock", "baroque pop"]}
		]}`))
	})

	tags, err := src.TagsForArtists(context.Background(), []string{"art1", "art2"})
	if err != nil {
		t.Fatalf("TagsForArtists: %v", err)
	}

	want := []Tag{{ID: "baroque pop"}, {ID: "british invasion"}, {ID: "rock"}}
	if !reflect.DeepEqual(tags, want) {
		t.Errorf("tags = %v, want %v", tags, want)
	}
}

func TestSpotifySource_TagsForNoArtists(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	tags, err := src.TagsForArtists(context.Background(), nil)
	if err != nil || tags != nil {
		t.Errorf("TagsForArtists(nil) = %v, %v", tags, err)
	}
}

func TestSnapshot_SameSession(t *testing.T) {
	a := &Snapshot{Track: &TrackInfo{ID: "1"}, Timestamp: time.Unix(0, 0)}
	b := &Snapshot{Track: &TrackInfo{ID: "1"}, Timestamp: time.Unix(100, 0)}
	c := &Snapshot{Track: &TrackInfo{ID: "2"}}

	if !a.SameSession(b) {
		t.Error("same track id with different timestamps is the same session")
	}
	if a.SameSession(c) {
		t.Error("different track ids are different sessions")
	}
	if a.SameSession(nil) || (&Snapshot{}).SameSession(a) {
		t.Error("nil snapshot or missing track is never the same session")
	}
}
