package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/jfmyers9/scrobblify/internal/music"
)

// PendingMaxAge is how long a failed scrobble is kept for retry.
const PendingMaxAge = 14 * 24 * time.Hour

// PendingScrobble is a scrobble whose ingestion failed and awaits a retry.
type PendingScrobble struct {
	ID       int64
	Event    music.ScrobbleEvent
	Origin   string
	Attempts int
	Error    string
}

// AddPending queues an event for a later ingestion attempt.
func (s *Store) AddPending(ctx context.Context, event music.ScrobbleEvent, origin string, cause error) (int64, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to encode pending scrobble: %w", err)
	}

	var errMsg any
	if cause != nil {
		errMsg = cause.Error()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_scrobbles (timestamp_ms, origin, payload, attempts, error)
		VALUES (?, ?, ?, 1, ?)
	`, event.Timestamp.UnixMilli(), origin, string(payload), errMsg)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pending scrobble: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}

	return id, nil
}

// GetPending returns queued scrobbles, oldest first. A limit of 0 returns all.
func (s *Store) GetPending(ctx context.Context, limit int) ([]PendingScrobble, error) {
	query := `
		SELECT id, origin, payload, attempts, COALESCE(error, '')
		FROM pending_scrobbles
		ORDER BY timestamp_ms ASC, id ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending scrobbles: %w", err)
	}
	defer rows.Close()

	var pending []PendingScrobble
	for rows.Next() {
		var p PendingScrobble
		var payload string
		if err := rows.Scan(&p.ID, &p.Origin, &payload, &p.Attempts, &p.Error); err != nil {
			return nil, fmt.Errorf("failed to scan pending scrobble: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &p.Event); err != nil {
			return nil, fmt.Errorf("failed to decode pending scrobble %d: %w", p.ID, err)
		}
		pending = append(pending, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending scrobbles: %w", err)
	}

	return pending, nil
}

// MarkPendingError records another failed attempt.
func (s *Store) MarkPendingError(ctx context.Context, id int64, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pending_scrobbles
		SET error = ?, attempts = attempts + 1
		WHERE id = ?
	`, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark pending scrobble error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("pending scrobble with id %d not found", id)
	}

	return nil
}

// DeletePending removes queued scrobbles, typically after they were ingested.
func (s *Store) DeletePending(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM pending_scrobbles WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete pending scrobble %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CleanupPending drops queued scrobbles played longer ago than maxAge.
func (s *Store) CleanupPending(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_scrobbles WHERE timestamp_ms < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup pending scrobbles: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// CountPending returns the number of queued scrobbles.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_scrobbles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending scrobbles: %w", err)
	}
	return count, nil
}
