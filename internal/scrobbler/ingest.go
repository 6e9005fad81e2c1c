package scrobbler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/scrobblify/internal/music"
	"github.com/jfmyers9/scrobblify/internal/store"
)

// Scrobble origins recorded with each play.
const (
	OriginSpotify = "spotify" // live polling
	OriginHistory = "history" // backfill from recently played
)

// Repository is the entity store the ingester writes to.
type Repository interface {
	GetTrackByID(ctx context.Context, id string) (*store.Track, error)
	InsertTrackIfAbsent(ctx context.Context, track music.TrackInfo) error
	InsertAlbumIfAbsent(ctx context.Context, album music.Album) error
	InsertArtistIfAbsent(ctx context.Context, artist music.Artist) error
	InsertTagIfAbsent(ctx context.Context, tag music.Tag) error
	TagsForTrack(ctx context.Context, trackID string) ([]music.Tag, error)
	InsertScrobble(ctx context.Context, event music.ScrobbleEvent, origin string) (bool, error)
	LinkTrackArtist(ctx context.Context, trackID, artistID string) error
	LinkTrackAlbum(ctx context.Context, trackID, albumID string) error
	LinkTrackTag(ctx context.Context, trackID, tagID string) error
	LinkAlbumArtist(ctx context.Context, albumID, artistID string) error
}

// TagSource looks up genre tags for artists.
type TagSource interface {
	TagsForArtists(ctx context.Context, artistIDs []string) ([]music.Tag, error)
}

// IngestionError reports which step of recording a scrobble failed. Steps
// already committed are not rolled back; every write is idempotent so the
// event can be ingested again.
type IngestionError struct {
	TrackID string
	Step    string
	Err     error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.TrackID, e.Step, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// Ingester records scrobble events and the entities they reference.
type Ingester struct {
	repo   Repository
	tags   TagSource
	logger zerolog.Logger
}

// NewIngester creates an ingester writing to repo.
func NewIngester(repo Repository, tags TagSource, logger zerolog.Logger) *Ingester {
	return &Ingester{
		repo:   repo,
		tags:   tags,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest records event. Tracks seen for the first time are stored along with
// their artists, album and tags; known tracks reuse the stored tags. Recording
// the same event twice leaves the store unchanged. inserted is false when a
// scrobble with the same timestamp already existed.
func (i *Ingester) Ingest(ctx context.Context, event music.ScrobbleEvent, origin string) (inserted bool, err error) {
	track := event.Track
	fail := func(step string, err error) (bool, error) {
		return false, &IngestionError{TrackID: track.ID, Step: step, Err: err}
	}

	existing, err := i.repo.GetTrackByID(ctx, track.ID)
	if err != nil {
		return fail("lookup track", err)
	}

	if existing == nil {
		if err := i.storeEntities(ctx, &track); err != nil {
			return false, err
		}
	} else {
		tags, err := i.repo.TagsForTrack(ctx, track.ID)
		if err != nil {
			return fail("load tags", err)
		}
		track.Tags = tags
	}

	event.Track = track
	inserted, err = i.repo.InsertScrobble(ctx, event, origin)
	if err != nil {
		return fail("insert scrobble", err)
	}

	for _, a := range track.Artists {
		if err := i.repo.LinkTrackArtist(ctx, track.ID, a.ID); err != nil {
			return fail("link artist", err)
		}
	}
	if err := i.repo.LinkTrackAlbum(ctx, track.ID, track.Album.ID); err != nil {
		return fail("link album", err)
	}
	for _, tag := range track.Tags {
		if err := i.repo.LinkTrackTag(ctx, track.ID, tag.ID); err != nil {
			return fail("link tag", err)
		}
	}
	for _, a := range track.Artists {
		if err := i.repo.LinkAlbumArtist(ctx, track.Album.ID, a.ID); err != nil {
			return fail("link album artist", err)
		}
	}

	i.logger.Debug().
		Str("track_id", track.ID).
		Str("origin", origin).
		Time("timestamp", event.Timestamp).
		Bool("inserted", inserted).
		Msg("Ingested scrobble")

	return inserted, nil
}

// storeEntities inserts a new track and what it references, filling in
// track.Tags from the tag source. The track row goes in last: until it exists
// the track counts as unseen, so a failed attempt is redone in full.
func (i *Ingester) storeEntities(ctx context.Context, track *music.TrackInfo) error {
	fail := func(step string, err error) error {
		return &IngestionError{TrackID: track.ID, Step: step, Err: err}
	}

	for _, a := range track.Artists {
		if err := i.repo.InsertArtistIfAbsent(ctx, a); err != nil {
			return fail("insert artist", err)
		}
	}
	if err := i.repo.InsertAlbumIfAbsent(ctx, track.Album); err != nil {
		return fail("insert album", err)
	}

	tags, err := i.tags.TagsForArtists(ctx, track.ArtistIDs())
	if err != nil {
		return fail("fetch tags", err)
	}
	for _, tag := range tags {
		if err := i.repo.InsertTagIfAbsent(ctx, tag); err != nil {
			return fail("insert tag", err)
		}
	}
	track.Tags = tags

	if err := i.repo.InsertTrackIfAbsent(ctx, *track); err != nil {
		return fail("insert track", err)
	}

	i.logger.Info().
		Str("track_id", track.ID).
		Str("title", track.Title).
		Int("tags", len(tags)).
		Msg("Stored new track")

	return nil
}
