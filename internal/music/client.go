package music

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Source is where playback state comes from.
type Source interface {
	// CurrentlyPlaying returns the current snapshot, or nil if nothing is playing.
	// Items that cannot be scrobbled return an error matching ErrTrackResolution.
	CurrentlyPlaying(ctx context.Context) (*Snapshot, error)

	// RecentlyPlayed returns completed plays strictly after since, oldest first.
	RecentlyPlayed(ctx context.Context, since time.Time) ([]HistoryEntry, error)

	// TagsForArtists returns the deduplicated, sorted genre tags of the artists.
	TagsForArtists(ctx context.Context, artistIDs []string) ([]Tag, error)
}

// ErrTrackResolution is matched by errors for playable items that are not
// usable tracks (episodes, ads, tracks without an ISRC).
var ErrTrackResolution = errors.New("playing item is not a scrobblable track")

// ResolutionError describes why the playing item was rejected.
type ResolutionError struct {
	ItemType string
	Reason   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %s", e.ItemType, e.Reason)
}

// Is makes errors.Is(err, ErrTrackResolution) match.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrTrackResolution
}

// SourceFetchError wraps a failure talking to the source.
type SourceFetchError struct {
	Op  string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Op, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}
