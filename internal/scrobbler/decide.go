package scrobbler

import (
	"fmt"
	"time"

	"github.com/jfmyers9/scrobblify/internal/music"
)

// Verdict is the outcome of comparing the current snapshot with the cached
// one. The concrete types are Scrobble, Cache, NotPlaying, AlreadyScrobbled
// and NotReady.
type Verdict interface {
	verdict()
	String() string
}

// Scrobble means the session qualified and Event should be recorded.
type Scrobble struct {
	Event music.ScrobbleEvent
}

// Cache means a new session started; the current snapshot replaces the cache.
type Cache struct{}

// NotPlaying means nothing scrobblable is playing; the cache is cleared.
type NotPlaying struct{}

// AlreadyScrobbled means the cached session was already recorded.
type AlreadyScrobbled struct{}

// NotReady means the session has not been listened to long enough yet.
// Skew is set when the session start lies in the future, in which case
// Elapsed was clamped to zero.
type NotReady struct {
	Elapsed time.Duration
	Skew    time.Duration
}

func (Scrobble) verdict()         {}
func (Cache) verdict()            {}
func (NotPlaying) verdict()       {}
func (AlreadyScrobbled) verdict() {}
func (NotReady) verdict()         {}

func (Scrobble) String() string         { return "scrobble" }
func (Cache) String() string            { return "cache" }
func (NotPlaying) String() string       { return "not_playing" }
func (AlreadyScrobbled) String() string { return "already_scrobbled" }
func (NotReady) String() string         { return "not_ready" }

// Decide classifies the current poll against the cached snapshot at now.
// It has no side effects; the caller applies the verdict to its cache.
func Decide(current, cached *music.Snapshot, now time.Time) Verdict {
	if current == nil || current.Track == nil {
		return NotPlaying{}
	}
	if cached == nil || cached.Track == nil {
		return Cache{}
	}
	if !current.SameSession(cached) {
		return Cache{}
	}
	if cached.Scrobbled {
		return AlreadyScrobbled{}
	}

	// The cached timestamp is the earliest known start of this session.
	start := cached.Timestamp
	elapsed := now.Sub(start)

	var skew time.Duration
	if elapsed < 0 {
		skew = -elapsed
		elapsed = 0
	}

	duration := current.Track.Duration
	if skew > 0 || !ShouldScrobble(duration, elapsed) {
		return NotReady{Elapsed: elapsed, Skew: skew}
	}

	return Scrobble{Event: music.ScrobbleEvent{
		Timestamp:    start,
		DurationSecs: duration.Seconds(),
		Track:        *current.Track,
	}}
}

// Describe renders a verdict for logs.
func Describe(v Verdict) string {
	switch v := v.(type) {
	case Scrobble:
		return fmt.Sprintf("scrobble %s at %s", v.Event.Track.ID, v.Event.Timestamp.Format(time.RFC3339))
	case NotReady:
		if v.Skew > 0 {
			return fmt.Sprintf("not ready (clock skew %s)", v.Skew)
		}
		return fmt.Sprintf("not ready (%s elapsed)", v.Elapsed.Truncate(time.Second))
	default:
		return v.String()
	}
}
