package scrobbler

import (
	"time"
)

// Scrobbling rules constants
const (
	// ListeningMinimum is the listening time after which any track counts (3 minutes)
	ListeningMinimum = 180 * time.Second

	// ScrobblePercentage is the share of the track that must be played (50%)
	ScrobblePercentage = 0.5
)

// ShouldScrobble reports whether a session that has lasted elapsed counts as a
// play: at least half of the track, or ListeningMinimum, whichever comes first.
func ShouldScrobble(trackDuration, elapsed time.Duration) bool {
	return elapsed >= ScrobbleThreshold(trackDuration)
}

// ScrobbleThreshold returns how long a track must play before it counts.
func ScrobbleThreshold(trackDuration time.Duration) time.Duration {
	threshold := time.Duration(float64(trackDuration) * ScrobblePercentage)
	if threshold > ListeningMinimum {
		threshold = ListeningMinimum
	}
	return threshold
}
