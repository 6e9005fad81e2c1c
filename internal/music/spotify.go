package music

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jfmyers9/scrobblify/pkg/spotify"
)

// BreakerConfig tunes the circuit breaker guarding Spotify calls.
type BreakerConfig struct {
	FailureThreshold uint32        // Consecutive failures before opening
	Timeout          time.Duration // How long the breaker stays open
}

// DefaultBreakerConfig opens after 5 consecutive failures for 2 minutes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Timeout: 2 * time.Minute}
}

// SpotifySource implements Source on top of the Spotify Web API.
type SpotifySource struct {
	client  *spotify.Client
	breaker *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
}

// NewSpotifySource wraps a Spotify client.
func NewSpotifySource(client *spotify.Client, cfg BreakerConfig, logger zerolog.Logger) *SpotifySource {
	logger = logger.With().Str("component", "spotify").Logger()

	settings := gobreaker.Settings{
		Name:        "spotify",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// A caller giving up is not the provider failing.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &SpotifySource{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger,
	}
}

// BreakerState returns the circuit breaker state for monitoring.
func (s *SpotifySource) BreakerState() string {
	return s.breaker.State().String()
}

// CurrentlyPlaying returns the current snapshot, or nil if nothing is playing.
func (s *SpotifySource) CurrentlyPlaying(ctx context.Context) (*Snapshot, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		return s.client.Player().CurrentlyPlaying(ctx)
	})
	if err != nil {
		return nil, &SourceFetchError{Op: "currently playing", Err: err}
	}

	cp, _ := res.(*spotify.CurrentlyPlaying)
	if cp == nil || !cp.IsPlaying {
		return nil, nil
	}

	track, err := resolveItem(cp.Item)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Track:     track,
		Timestamp: cp.Timestamp,
		Progress:  cp.Progress,
	}, nil
}

// RecentlyPlayed returns up to 50 plays strictly after since, oldest first.
// Entries that do not resolve to a usable track are skipped.
func (s *SpotifySource) RecentlyPlayed(ctx context.Context, since time.Time) ([]HistoryEntry, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		return s.client.Player().RecentlyPlayed(ctx, since, spotify.MaxRecentlyPlayed)
	})
	if err != nil {
		return nil, &SourceFetchError{Op: "recently played", Err: err}
	}

	items, _ := res.([]spotify.PlayHistory)
	entries := make([]HistoryEntry, 0, len(items))
	for _, item := range items {
		if !item.PlayedAt.After(since) {
			continue
		}
		track, err := resolveTrack(&item.Track)
		if err != nil {
			s.logger.Debug().Err(err).Str("track_id", item.Track.ID).Msg("Skipping history entry")
			continue
		}
		entries = append(entries, HistoryEntry{Track: *track, PlayedAt: item.PlayedAt.UTC()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PlayedAt.Before(entries[j].PlayedAt)
	})

	return entries, nil
}

// TagsForArtists returns the union of the artists' genres. Genres come from
// artist profiles because per-track genre data is unreliable.
func (s *SpotifySource) TagsForArtists(ctx context.Context, artistIDs []string) ([]Tag, error) {
	if len(artistIDs) == 0 {
		return nil, nil
	}

	res, err := s.breaker.Execute(func() (any, error) {
		return s.client.Artists().GetSeveral(ctx, artistIDs)
	})
	if err != nil {
		return nil, &SourceFetchError{Op: "artists", Err: err}
	}

	artists, _ := res.([]spotify.FullArtist)
	return genresToTags(artists), nil
}

func genresToTags(artists []spotify.FullArtist) []Tag {
	seen := make(map[string]struct{})
	var tags []Tag
	for _, a := range artists {
		for _, g := range a.Genres {
			if g == "" {
				continue
			}
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			tags = append(tags, Tag{ID: g})
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].ID < tags[j].ID })
	return tags
}

func resolveItem(item spotify.PlayableItem) (*TrackInfo, error) {
	switch item.Type {
	case spotify.ItemTypeTrack:
		return resolveTrack(item.Track)
	case spotify.ItemTypeEpisode:
		return nil, &ResolutionError{ItemType: string(item.Type), Reason: "podcast episodes are not scrobbled"}
	default:
		return nil, &ResolutionError{ItemType: string(item.Type), Reason: "unsupported item"}
	}
}

func resolveTrack(t *spotify.FullTrack) (*TrackInfo, error) {
	switch {
	case t == nil:
		return nil, &ResolutionError{ItemType: "track", Reason: "missing track object"}
	case t.ID == "" || t.IsLocal:
		return nil, &ResolutionError{ItemType: "track", Reason: "local file without id"}
	case t.ExternalIDs.ISRC == "":
		return nil, &ResolutionError{ItemType: "track", Reason: "missing isrc"}
	case t.Album.ID == "":
		return nil, &ResolutionError{ItemType: "track", Reason: "missing album"}
	}

	var cover string
	if len(t.Album.Images) > 0 {
		cover = t.Album.Images[0].URL
	}

	artists := make([]Artist, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, Artist{ID: a.ID, Name: a.Name})
	}

	return &TrackInfo{
		ID:       t.ID,
		Title:    t.Name,
		Album:    Album{ID: t.Album.ID, Title: t.Album.Name, Cover: cover},
		Artists:  artists,
		Duration: t.Duration(),
		ISRC:     t.ExternalIDs.ISRC,
		Cover:    cover,
	}, nil
}
