//go:build integration

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jfmyers9/scrobblify/internal/daemon"
	"github.com/jfmyers9/scrobblify/internal/music"
	"github.com/jfmyers9/scrobblify/internal/scrobbler"
	"github.com/jfmyers9/scrobblify/internal/store"
	"github.com/jfmyers9/scrobblify/pkg/spotify"
)

const liveTrackJSON = `{
	"id": "live1",
	"name": "Live Song",
	"duration_ms": 60000,
	"external_ids": {"isrc": "USAAA0000001"},
	"album": {"id": "alb1", "name": "Live Album", "images": [{"url": "https://img/live"}]},
	"artists": [{"id": "art1", "name": "Live Artist"}]
}`

const historyTrackJSON = `{
	"id": "old1",
	"name": "Old Song",
	"duration_ms": 200000,
	"external_ids": {"isrc": "USAAA0000002"},
	"album": {"id": "alb2", "name": "Old Album", "images": []},
	"artists": [{"id": "art2", "name": "Old Artist"}]
}`

// fakeSpotify serves the three Web API endpoints the daemon uses. The live
// track started 45s ago, past the 30s threshold of a one minute track.
func fakeSpotify(t *testing.T, start, playedAt time.Time) *httptest.Server {
	t.Helper()

	artists := map[string]string{
		"art1": `{"id": "art1", "name": "Live Artist", "genres": ["indie rock"]}`,
		"art2": `{"id": "art2", "name": "Old Artist", "genres": ["jazz", "bebop"]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"timestamp": %d, "progress_ms": 45000, "is_playing": true,
			"currently_playing_type": "track", "item": %s}`, start.UnixMilli(), liveTrackJSON)
	})
	mux.HandleFunc("/me/player/recently-played", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items": [{"track": %s, "played_at": %q}]}`,
			historyTrackJSON, playedAt.Format(time.RFC3339Nano))
	})
	mux.HandleFunc("/artists", func(w http.ResponseWriter, r *http.Request) {
		var found []string
		for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
			if a, ok := artists[id]; ok {
				found = append(found, a)
			}
		}
		fmt.Fprintf(w, `{"artists": [%s]}`, strings.Join(found, ","))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestDaemonEndToEnd runs the daemon against a fake Spotify and checks that
// startup backfill and live polling both land in the database. Backfill
// starts from the last recorded scrobble, so one is seeded first.
func TestDaemonEndToEnd(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	start := now.Add(-45 * time.Second)
	playedAt := now.Add(-10 * time.Minute)

	srv := fakeSpotify(t, start, playedAt)
	logger := zerolog.New(io.Discard)

	tokens := spotify.FileTokenStore{Path: filepath.Join(dir, "token.json")}
	require.NoError(t, tokens.Save(&spotify.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       now.Add(time.Hour),
	}))

	client, err := spotify.NewClient(spotify.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenStore:   tokens,
		BaseURL:      srv.URL,
		AccountsURL:  srv.URL,
		HTTPClient:   srv.Client(),
		RateLimit:    rate.Inf,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(dir, "scrobblify.db"))
	require.NoError(t, err)
	defer db.Close()

	statusFile, err := daemon.NewStatusFile(filepath.Join(dir, "status.json"))
	require.NoError(t, err)

	source := music.NewSpotifySource(client, music.DefaultBreakerConfig(), logger)
	ingester := scrobbler.NewIngester(db, source, logger)

	seeded := now.Add(-time.Hour)
	_, err = ingester.Ingest(context.Background(), music.ScrobbleEvent{
		Timestamp:    seeded,
		DurationSecs: 120,
		Track: music.TrackInfo{
			ID:       "seed1",
			Title:    "Seed Song",
			Album:    music.Album{ID: "alb3", Title: "Seed Album"},
			Artists:  []music.Artist{{ID: "art3", Name: "Seed Artist"}},
			Duration: 2 * time.Minute,
			ISRC:     "USAAA0000003",
		},
	}, scrobbler.OriginSpotify)
	require.NoError(t, err)

	sched, err := daemon.NewScheduler(daemon.SchedulerConfig{
		Interval:      100 * time.Millisecond,
		FetchTimeout:  time.Second,
		FailurePolicy: daemon.PolicyQueue,
	}, source, ingester, db, db, statusFile, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- daemon.New(daemon.Config{}, sched, db, logger).RunContext(ctx)
	}()

	require.Eventually(t, func() bool {
		n, err := db.CountScrobbles(context.Background())
		return err == nil && n == 3
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	records, err := db.RecentScrobbles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Equal(t, "live1", records[0].TrackID)
	require.Equal(t, scrobbler.OriginSpotify, records[0].Origin)
	require.Equal(t, start.UnixMilli(), records[0].Timestamp.UnixMilli())
	require.Equal(t, "Live Artist", records[0].Artists)
	require.Equal(t, "Live Album", records[0].Album)

	require.Equal(t, "old1", records[1].TrackID)
	require.Equal(t, scrobbler.OriginHistory, records[1].Origin)
	require.Equal(t, playedAt.UnixMilli(), records[1].Timestamp.UnixMilli())

	require.Equal(t, "seed1", records[2].TrackID)

	tags, err := db.TagsForTrack(context.Background(), "old1")
	require.NoError(t, err)
	require.Equal(t, []music.Tag{{ID: "bebop"}, {ID: "jazz"}}, tags)

	pending, err := db.CountPending(context.Background())
	require.NoError(t, err)
	require.Zero(t, pending)

	st, err := daemon.ReadStatus(statusFile.Path())
	require.NoError(t, err)
	require.NotNil(t, st.Playing)
	require.True(t, st.Playing.Scrobbled)
	require.NotNil(t, st.LastScrobble)
	require.Equal(t, "live1", st.LastScrobble.Track.ID)
}
