package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the SQLite entity store: tracks, albums, artists, tags, their
// link tables, the scrobble log and the pending (failed ingestion) queue.
type Store struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		duration_secs REAL NOT NULL,
		isrc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS albums (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		cover TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS artists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS scrobbles (
		timestamp_ms INTEGER PRIMARY KEY,
		duration_secs REAL NOT NULL,
		track_id TEXT NOT NULL REFERENCES tracks(id),
		origin TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artists_tracks (
		artist_id TEXT NOT NULL REFERENCES artists(id),
		track_id TEXT NOT NULL REFERENCES tracks(id),
		PRIMARY KEY (artist_id, track_id)
	);

	CREATE TABLE IF NOT EXISTS albums_tracks (
		album_id TEXT NOT NULL REFERENCES albums(id),
		track_id TEXT NOT NULL REFERENCES tracks(id),
		PRIMARY KEY (album_id, track_id)
	);

	CREATE TABLE IF NOT EXISTS tags_tracks (
		tag_id TEXT NOT NULL REFERENCES tags(id),
		track_id TEXT NOT NULL REFERENCES tracks(id),
		PRIMARY KEY (tag_id, track_id)
	);

	CREATE TABLE IF NOT EXISTS albums_artists (
		album_id TEXT NOT NULL REFERENCES albums(id),
		artist_id TEXT NOT NULL REFERENCES artists(id),
		PRIMARY KEY (album_id, artist_id)
	);

	CREATE TABLE IF NOT EXISTS pending_scrobbles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp_ms INTEGER NOT NULL,
		origin TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_scrobbles_track ON scrobbles(track_id);
	CREATE INDEX IF NOT EXISTS idx_pending_timestamp ON pending_scrobbles(timestamp_ms);
`

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps in-memory databases consistent and serializes
	// writers on file databases.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -64000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
