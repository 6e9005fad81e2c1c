package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jfmyers9/scrobblify/internal/music"
)

// Track is a stored track row.
type Track struct {
	ID       string
	Title    string
	Duration time.Duration
	ISRC     string
}

// InsertTrackIfAbsent stores the track unless a row with its id exists.
func (s *Store) InsertTrackIfAbsent(ctx context.Context, t music.TrackInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracks (id, title, duration_secs, isrc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID, t.Title, t.Duration.Seconds(), t.ISRC)
	if err != nil {
		return fmt.Errorf("failed to insert track %s: %w", t.ID, err)
	}
	return nil
}

// GetTrackByID returns the track, or nil if it has never been stored.
func (s *Store) GetTrackByID(ctx context.Context, id string) (*Track, error) {
	var t Track
	var durationSecs float64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, duration_secs, isrc FROM tracks WHERE id = ?
	`, id).Scan(&t.ID, &t.Title, &durationSecs, &t.ISRC)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track %s: %w", id, err)
	}

	t.Duration = time.Duration(durationSecs * float64(time.Second))
	return &t, nil
}

// InsertAlbumIfAbsent stores the album unless a row with its id exists.
func (s *Store) InsertAlbumIfAbsent(ctx context.Context, a music.Album) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO albums (id, title, cover) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.Title, a.Cover)
	if err != nil {
		return fmt.Errorf("failed to insert album %s: %w", a.ID, err)
	}
	return nil
}

// InsertArtistIfAbsent stores the artist unless a row with its id exists.
func (s *Store) InsertArtistIfAbsent(ctx context.Context, a music.Artist) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artists (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.Name)
	if err != nil {
		return fmt.Errorf("failed to insert artist %s: %w", a.ID, err)
	}
	return nil
}

// InsertTagIfAbsent stores the tag unless it exists.
func (s *Store) InsertTagIfAbsent(ctx context.Context, t music.Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID)
	if err != nil {
		return fmt.Errorf("failed to insert tag %s: %w", t.ID, err)
	}
	return nil
}

// TagsForTrack returns the tags linked to a track, sorted by id.
func (s *Store) TagsForTrack(ctx context.Context, trackID string) ([]music.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag_id FROM tags_tracks WHERE track_id = ? ORDER BY tag_id
	`, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags for track %s: %w", trackID, err)
	}
	defer rows.Close()

	var tags []music.Tag
	for rows.Next() {
		var t music.Tag
		if err := rows.Scan(&t.ID); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

func (s *Store) link(ctx context.Context, table, leftCol, rightCol, left, right string) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT DO NOTHING`, table, leftCol, rightCol)
	if _, err := s.db.ExecContext(ctx, query, left, right); err != nil {
		return fmt.Errorf("failed to link %s: %w", table, err)
	}
	return nil
}

// LinkTrackArtist links a track to one of its artists.
func (s *Store) LinkTrackArtist(ctx context.Context, trackID, artistID string) error {
	return s.link(ctx, "artists_tracks", "artist_id", "track_id", artistID, trackID)
}

// LinkTrackAlbum links a track to its album.
func (s *Store) LinkTrackAlbum(ctx context.Context, trackID, albumID string) error {
	return s.link(ctx, "albums_tracks", "album_id", "track_id", albumID, trackID)
}

// LinkTrackTag links a track to a tag.
func (s *Store) LinkTrackTag(ctx context.Context, trackID, tagID string) error {
	return s.link(ctx, "tags_tracks", "tag_id", "track_id", tagID, trackID)
}

// LinkAlbumArtist links an album to an artist.
func (s *Store) LinkAlbumArtist(ctx context.Context, albumID, artistID string) error {
	return s.link(ctx, "albums_artists", "album_id", "artist_id", albumID, artistID)
}
