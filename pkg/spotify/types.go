package spotify

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ItemType is the kind of playable item the player reports.
type ItemType string

const (
	ItemTypeTrack   ItemType = "track"
	ItemTypeEpisode ItemType = "episode"
	ItemTypeAd      ItemType = "ad"
	ItemTypeUnknown ItemType = "unknown"
)

// Image is a cover image.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SimplifiedArtist is the artist object embedded in tracks and albums.
type SimplifiedArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SimplifiedAlbum is the album object embedded in tracks.
type SimplifiedAlbum struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Images  []Image            `json:"images"`
	Artists []SimplifiedArtist `json:"artists"`
}

// ExternalIDs holds external identifiers of a track.
type ExternalIDs struct {
	ISRC string `json:"isrc"`
}

// FullTrack is a track object.
type FullTrack struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	DurationMs  int64              `json:"duration_ms"`
	Album       SimplifiedAlbum    `json:"album"`
	Artists     []SimplifiedArtist `json:"artists"`
	ExternalIDs ExternalIDs        `json:"external_ids"`
	IsLocal     bool               `json:"is_local"`
}

// Duration returns the track length.
func (t FullTrack) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// Episode is a podcast episode object. Only the fields needed to describe
// it in logs are decoded.
type Episode struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

// PlayableItem is whatever the player is currently playing. Exactly one of
// Track or Episode is set when Type is ItemTypeTrack or ItemTypeEpisode.
type PlayableItem struct {
	Type    ItemType
	Track   *FullTrack
	Episode *Episode
}

// CurrentlyPlaying is the response of GET /me/player/currently-playing.
type CurrentlyPlaying struct {
	Timestamp time.Time     // When playback state last changed
	Progress  time.Duration // Position in the current item
	IsPlaying bool
	Item      PlayableItem
}

type currentlyPlayingJSON struct {
	Timestamp            int64           `json:"timestamp"`
	ProgressMs           *int64          `json:"progress_ms"`
	IsPlaying            bool            `json:"is_playing"`
	CurrentlyPlayingType string          `json:"currently_playing_type"`
	Item                 json.RawMessage `json:"item"`
}

// UnmarshalJSON decodes the item according to currently_playing_type.
func (cp *CurrentlyPlaying) UnmarshalJSON(data []byte) error {
	var raw currentlyPlayingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cp.Timestamp = time.UnixMilli(raw.Timestamp).UTC()
	if raw.ProgressMs != nil {
		cp.Progress = time.Duration(*raw.ProgressMs) * time.Millisecond
	}
	cp.IsPlaying = raw.IsPlaying

	itemType := ItemType(raw.CurrentlyPlayingType)
	hasItem := len(raw.Item) > 0 && string(raw.Item) != "null"

	switch {
	case itemType == ItemTypeTrack && hasItem:
		var t FullTrack
		if err := json.Unmarshal(raw.Item, &t); err != nil {
			return fmt.Errorf("failed to decode track item: %w", err)
		}
		cp.Item = PlayableItem{Type: ItemTypeTrack, Track: &t}
	case itemType == ItemTypeEpisode && hasItem:
		var e Episode
		if err := json.Unmarshal(raw.Item, &e); err != nil {
			return fmt.Errorf("failed to decode episode item: %w", err)
		}
		cp.Item = PlayableItem{Type: ItemTypeEpisode, Episode: &e}
	case itemType == ItemTypeAd:
		cp.Item = PlayableItem{Type: ItemTypeAd}
	default:
		cp.Item = PlayableItem{Type: ItemTypeUnknown}
	}

	return nil
}

// PlayHistory is a single entry of the recently played feed.
type PlayHistory struct {
	Track    FullTrack `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

type recentlyPlayedPage struct {
	Items []PlayHistory `json:"items"`
	Next  string        `json:"next"`
}

// FullArtist is an artist object with its genres.
type FullArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

type severalArtists struct {
	Artists []*FullArtist `json:"artists"`
}

// Token is an OAuth token obtained through the authorization code flow.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Valid reports whether the access token can be used now.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != "" && time.Now().Add(tokenExpiryDelta).Before(t.Expiry)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}
