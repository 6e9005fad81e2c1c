package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// MaxRecentlyPlayed is the largest page the recently played endpoint returns.
const MaxRecentlyPlayed = 50

// PlayerService provides access to the user's playback state.
type PlayerService struct {
	client *Client
}

// CurrentlyPlaying returns what the user is playing right now, or nil when
// nothing is playing (204 No Content).
func (s *PlayerService) CurrentlyPlaying(ctx context.Context) (*CurrentlyPlaying, error) {
	q := url.Values{}
	q.Set("additional_types", "track,episode")

	var cp CurrentlyPlaying
	ok, err := s.client.get(ctx, "/me/player/currently-playing", q, &cp)
	if err != nil {
		return nil, fmt.Errorf("failed to get currently playing: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

// RecentlyPlayed returns up to limit plays that started after the given time,
// newest first as returned by Spotify.
func (s *PlayerService) RecentlyPlayed(ctx context.Context, after time.Time, limit int) ([]PlayHistory, error) {
	if limit <= 0 || limit > MaxRecentlyPlayed {
		limit = MaxRecentlyPlayed
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if !after.IsZero() {
		q.Set("after", strconv.FormatInt(after.UnixMilli(), 10))
	}

	var page recentlyPlayedPage
	ok, err := s.client.get(ctx, "/me/player/recently-played", q, &page)
	if err != nil {
		return nil, fmt.Errorf("failed to get recently played: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return page.Items, nil
}
