package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jfmyers9/scrobblify/internal/music"
)

// ScrobbleRecord is a scrobble joined with its track for display.
type ScrobbleRecord struct {
	Timestamp    time.Time
	DurationSecs float64
	TrackID      string
	Title        string
	Artists      string
	Album        string
	Origin       string
}

// InsertScrobble records a play. A scrobble with the same timestamp is left
// untouched; inserted reports whether a new row was written.
func (s *Store) InsertScrobble(ctx context.Context, event music.ScrobbleEvent, origin string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scrobbles (timestamp_ms, duration_secs, track_id, origin)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(timestamp_ms) DO NOTHING
	`, event.Timestamp.UnixMilli(), event.DurationSecs, event.Track.ID, origin)
	if err != nil {
		return false, fmt.Errorf("failed to insert scrobble: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// LastScrobbleTimestamp returns the most recent scrobble time. ok is false
// when nothing has been scrobbled yet.
func (s *Store) LastScrobbleTimestamp(ctx context.Context) (ts time.Time, ok bool, err error) {
	var ms sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp_ms) FROM scrobbles`).Scan(&ms); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last scrobble: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), true, nil
}

// RecentScrobbles returns up to limit scrobbles, newest first.
func (s *Store) RecentScrobbles(ctx context.Context, limit int) ([]ScrobbleRecord, error) {
	query := `
		SELECT s.timestamp_ms, s.duration_secs, s.track_id, t.title, s.origin,
			COALESCE((SELECT GROUP_CONCAT(a.name, ', ')
				FROM artists_tracks art JOIN artists a ON a.id = art.artist_id
				WHERE art.track_id = s.track_id), ''),
			COALESCE((SELECT al.title
				FROM albums_tracks alt JOIN albums al ON al.id = alt.album_id
				WHERE alt.track_id = s.track_id LIMIT 1), '')
		FROM scrobbles s
		JOIN tracks t ON t.id = s.track_id
		ORDER BY s.timestamp_ms DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobbles: %w", err)
	}
	defer rows.Close()

	var records []ScrobbleRecord
	for rows.Next() {
		var r ScrobbleRecord
		var ms int64
		if err := rows.Scan(&ms, &r.DurationSecs, &r.TrackID, &r.Title, &r.Origin, &r.Artists, &r.Album); err != nil {
			return nil, fmt.Errorf("failed to scan scrobble: %w", err)
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scrobbles: %w", err)
	}

	return records, nil
}

// CountScrobbles returns the number of recorded scrobbles.
func (s *Store) CountScrobbles(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrobbles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scrobbles: %w", err)
	}
	return count, nil
}
