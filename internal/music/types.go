package music

import (
	"strings"
	"time"
)

// Snapshot is one poll's view of what is playing. The scheduler keeps the
// last retained snapshot and replaces it wholesale each cycle.
type Snapshot struct {
	Track     *TrackInfo    `json:"track,omitempty"`
	Timestamp time.Time     `json:"timestamp"` // When the provider saw this session start
	Progress  time.Duration `json:"progress"`
	Scrobbled bool          `json:"scrobbled"`
}

// SameSession reports whether both snapshots describe the same track.
func (s *Snapshot) SameSession(other *Snapshot) bool {
	if s == nil || other == nil || s.Track == nil || other.Track == nil {
		return false
	}
	return s.Track.ID == other.Track.ID
}

// TrackInfo is a track with everything needed to record it.
type TrackInfo struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Album    Album         `json:"album"`
	Artists  []Artist      `json:"artists"`
	Duration time.Duration `json:"duration"`
	Tags     []Tag         `json:"tags,omitempty"`
	ISRC     string        `json:"isrc"`
	Cover    string        `json:"cover,omitempty"`
}

// ArtistNames joins the artist names for display.
func (t TrackInfo) ArtistNames() string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// ArtistIDs returns the ids of the track's artists.
func (t TrackInfo) ArtistIDs() []string {
	ids := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		ids[i] = a.ID
	}
	return ids
}

type Album struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Cover string `json:"cover,omitempty"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tag is a genre. Its id is its display name.
type Tag struct {
	ID string `json:"id"`
}

// HistoryEntry is a play the provider reports as completed.
type HistoryEntry struct {
	Track    TrackInfo
	PlayedAt time.Time
}

// ScrobbleEvent is a verified play ready to be recorded. Timestamp is the
// start of the listening session, not the time the decision was made.
type ScrobbleEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	DurationSecs float64   `json:"duration_secs"`
	Track        TrackInfo `json:"track"`
}
