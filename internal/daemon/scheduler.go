package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/scrobblify/internal/metrics"
	"github.com/jfmyers9/scrobblify/internal/music"
	"github.com/jfmyers9/scrobblify/internal/scrobbler"
	"github.com/jfmyers9/scrobblify/internal/store"
)

// FailurePolicy decides what happens to a scrobble whose ingestion failed.
type FailurePolicy string

const (
	// PolicyDrop logs and forgets the event; the session counts as scrobbled.
	PolicyDrop FailurePolicy = "drop"
	// PolicyRetry keeps the cache so the next cycle decides and ingests again.
	PolicyRetry FailurePolicy = "retry"
	// PolicyQueue stores the event in the pending queue for later cycles.
	PolicyQueue FailurePolicy = "queue"
)

// ParseFailurePolicy validates a policy name. Empty means PolicyDrop.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyRetry, PolicyQueue:
		return FailurePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown ingest failure policy %q (want drop, retry or queue)", s)
	}
}

// pendingBatchSize bounds how many queued scrobbles one cycle retries.
const pendingBatchSize = 50

// Ingester records scrobble events.
type Ingester interface {
	Ingest(ctx context.Context, event music.ScrobbleEvent, origin string) (bool, error)
}

// ScrobbleLog answers when the last scrobble happened.
type ScrobbleLog interface {
	LastScrobbleTimestamp(ctx context.Context) (time.Time, bool, error)
}

// PendingQueue holds scrobbles whose ingestion failed.
type PendingQueue interface {
	AddPending(ctx context.Context, event music.ScrobbleEvent, origin string, cause error) (int64, error)
	GetPending(ctx context.Context, limit int) ([]store.PendingScrobble, error)
	MarkPendingError(ctx context.Context, id int64, errMsg string) error
	DeletePending(ctx context.Context, ids []int64) error
	CleanupPending(ctx context.Context, maxAge time.Duration) (int64, error)
	CountPending(ctx context.Context) (int, error)
}

type breakerReporter interface {
	BreakerState() string
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Interval           time.Duration // Time between poll cycles
	FetchTimeout       time.Duration // Bound on one currently-playing request
	BackfillOnScrobble bool          // Run a backfill after every live scrobble
	FailurePolicy      FailurePolicy
	Now                func() time.Time // Clock, defaults to time.Now
}

// Status is a point-in-time copy of the scheduler state.
type Status struct {
	Playing      *music.Snapshot      `json:"playing,omitempty"`
	LastVerdict  string               `json:"last_verdict,omitempty"`
	LastCycle    time.Time            `json:"last_cycle"`
	LastScrobble *music.ScrobbleEvent `json:"last_scrobble,omitempty"`
	LastError    string               `json:"last_error,omitempty"`
	Cycles       int64                `json:"cycles"`
	Pending      int                  `json:"pending"`
	Breaker      string               `json:"breaker,omitempty"`
	Interval     time.Duration        `json:"interval"`
}

// Scheduler polls the track source, applies scrobble verdicts to the cached
// snapshot and backfills from history. One mutex serializes every cycle and
// backfill, so live polling and backfill never interleave.
type Scheduler struct {
	cfg     SchedulerConfig
	source  music.Source
	ingest  Ingester
	log     ScrobbleLog
	pending PendingQueue // nil unless the queue policy is used
	status  *StatusFile  // nil disables the status file
	logger  zerolog.Logger

	mu           sync.Mutex
	cached       *music.Snapshot
	lastWake     time.Time
	lastVerdict  string
	lastScrobble *music.ScrobbleEvent
	lastError    string
	cycles       int64
	pendingCount int
}

// NewScheduler creates a scheduler. pending may be nil unless the policy is
// PolicyQueue; status may be nil.
func NewScheduler(cfg SchedulerConfig, source music.Source, ingest Ingester, log ScrobbleLog, pending PendingQueue, status *StatusFile, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyDrop
	}
	if cfg.FailurePolicy == PolicyQueue && pending == nil {
		return nil, errors.New("queue failure policy requires a pending queue")
	}
	if cfg.FailurePolicy != PolicyQueue {
		pending = nil
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		cfg:     cfg,
		source:  source,
		ingest:  ingest,
		log:     log,
		pending: pending,
		status:  status,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Run backfills once, then polls every interval until ctx is cancelled. A
// cycle in progress always completes; cancellation is noticed between cycles.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Str("failure_policy", string(s.cfg.FailurePolicy)).
		Bool("backfill_on_scrobble", s.cfg.BackfillOnScrobble).
		Msg("Starting scheduler")

	s.Backfill(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start
	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			s.RunCycle(ctx)
		}
	}
}

// Status returns a copy of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() Status {
	st := Status{
		LastVerdict: s.lastVerdict,
		LastCycle:   s.lastWake,
		LastError:   s.lastError,
		Cycles:      s.cycles,
		Pending:     s.pendingCount,
		Interval:    s.cfg.Interval,
	}
	if s.cached != nil {
		st.Playing = copySnapshot(s.cached)
	}
	if s.lastScrobble != nil {
		ev := *s.lastScrobble
		st.LastScrobble = &ev
	}
	if b, ok := s.source.(breakerReporter); ok {
		st.Breaker = b.BreakerState()
	}
	return st
}

// RunCycle performs one poll: fetch, decide, apply. It runs to completion
// even if ctx is cancelled meanwhile.
func (s *Scheduler) RunCycle(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With().Str("cycle", uuid.NewString()).Logger()
	now := s.cfg.Now()

	if !s.lastWake.IsZero() && now.Sub(s.lastWake) > 2*s.cfg.Interval {
		logger.Info().
			Dur("gap", now.Sub(s.lastWake)).
			Msg("Wake-up gap detected, backfilling")
		s.backfillLocked(ctx, logger)
	}
	s.lastWake = now
	s.cycles++

	defer s.finishCycleLocked(ctx, logger)

	if s.pending != nil {
		s.drainPendingLocked(ctx, logger)
	}

	current, err := s.fetchCurrent(ctx, logger)
	if err != nil {
		s.lastError = err.Error()
		metrics.RecordFetchError("currently_playing")
		logger.Warn().Err(err).Msg("Failed to fetch currently playing, skipping cycle")
		return
	}
	s.lastError = ""

	verdict := scrobbler.Decide(current, s.cached, now)
	s.lastVerdict = verdict.String()
	metrics.RecordVerdict(verdict.String())
	logger.Debug().Str("verdict", scrobbler.Describe(verdict)).Msg("Decided")

	s.applyLocked(ctx, logger, verdict, current)
}

func (s *Scheduler) fetchCurrent(ctx context.Context, logger zerolog.Logger) (*music.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	current, err := s.source.CurrentlyPlaying(fetchCtx)
	if errors.Is(err, music.ErrTrackResolution) {
		logger.Debug().Err(err).Msg("Playing item is not a track")
		return nil, nil
	}
	return current, err
}

func (s *Scheduler) applyLocked(ctx context.Context, logger zerolog.Logger, verdict scrobbler.Verdict, current *music.Snapshot) {
	switch v := verdict.(type) {
	case scrobbler.Scrobble:
		s.scrobbleLocked(ctx, logger, v.Event, current)

	case scrobbler.Cache:
		logger.Info().
			Str("track_id", current.Track.ID).
			Str("track", current.Track.Title).
			Str("artist", current.Track.ArtistNames()).
			Msg("Track changed")
		s.cached = copySnapshot(current)
		s.cached.Scrobbled = false

	case scrobbler.NotPlaying:
		if s.cached != nil {
			logger.Info().Msg("Playback stopped")
		}
		s.cached = nil

	case scrobbler.NotReady:
		if v.Skew > 0 {
			logger.Warn().
				Dur("skew", v.Skew).
				Time("session_start", s.cached.Timestamp).
				Msg("Session starts in the future, check the system clock")
			return
		}
		logger.Debug().Dur("elapsed", v.Elapsed).Msg("Not ready to scrobble")

	case scrobbler.AlreadyScrobbled:
		logger.Debug().Msg("Already scrobbled")
	}
}

func (s *Scheduler) scrobbleLocked(ctx context.Context, logger zerolog.Logger, event music.ScrobbleEvent, current *music.Snapshot) {
	logger = logger.With().
		Str("track_id", event.Track.ID).
		Str("track", event.Track.Title).
		Str("artist", event.Track.ArtistNames()).
		Time("timestamp", event.Timestamp).
		Logger()

	inserted, err := s.ingest.Ingest(ctx, event, scrobbler.OriginSpotify)
	if err != nil {
		metrics.RecordIngestError(string(s.cfg.FailurePolicy))
		s.lastError = err.Error()

		switch s.cfg.FailurePolicy {
		case PolicyRetry:
			logger.Error().Err(err).Msg("Failed to record scrobble, retrying next cycle")
			return
		case PolicyQueue:
			if _, qerr := s.pending.AddPending(ctx, event, scrobbler.OriginSpotify, err); qerr != nil {
				logger.Error().Err(err).AnErr("queue_error", qerr).Msg("Failed to record or queue scrobble, dropping")
			} else {
				s.pendingCount++
				logger.Warn().Err(err).Msg("Failed to record scrobble, queued for retry")
			}
		default:
			logger.Error().Err(err).Msg("Failed to record scrobble, dropping")
		}
		s.markScrobbledLocked(current, event)
		return
	}

	if inserted {
		metrics.RecordScrobble(scrobbler.OriginSpotify)
	}
	logger.Info().Bool("inserted", inserted).Msg("Scrobbled")

	s.markScrobbledLocked(current, event)
	s.lastScrobble = &event

	if s.cfg.BackfillOnScrobble {
		s.backfillLocked(ctx, logger)
	}
}

// markScrobbledLocked caches current as a scrobbled session that started at
// the event timestamp.
func (s *Scheduler) markScrobbledLocked(current *music.Snapshot, event music.ScrobbleEvent) {
	next := copySnapshot(current)
	next.Timestamp = event.Timestamp
	next.Scrobbled = true
	s.cached = next
}

func (s *Scheduler) finishCycleLocked(ctx context.Context, logger zerolog.Logger) {
	metrics.SetLastCycle(float64(s.lastWake.Unix()))

	st := s.statusLocked()
	if st.Breaker != "" {
		metrics.SetCircuitBreakerState(st.Breaker)
	}

	if s.status == nil {
		return
	}
	if err := s.status.Write(st); err != nil {
		logger.Warn().Err(err).Msg("Failed to write status file")
	}
}

// Backfill ingests plays reported by the provider's history since the last
// recorded scrobble.
func (s *Scheduler) Backfill(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.backfillLocked(ctx, s.logger.With().Str("cycle", uuid.NewString()).Logger())
}

func (s *Scheduler) backfillLocked(ctx context.Context, logger zerolog.Logger) {
	logger = logger.With().Str("op", "backfill").Logger()

	since, ok, err := s.log.LastScrobbleTimestamp(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read last scrobble")
		return
	}
	if !ok {
		logger.Debug().Msg("No scrobbles yet, nothing to backfill")
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	entries, err := s.source.RecentlyPlayed(fetchCtx, since)
	cancel()
	if err != nil {
		metrics.RecordFetchError("recently_played")
		logger.Warn().Err(err).Msg("Failed to fetch listening history")
		return
	}

	var recorded, skipped int
	for _, entry := range entries {
		if s.coveredByLiveLocked(entry) {
			skipped++
			continue
		}

		event := music.ScrobbleEvent{
			Timestamp:    entry.PlayedAt,
			DurationSecs: entry.Track.Duration.Seconds(),
			Track:        entry.Track,
		}

		inserted, err := s.ingest.Ingest(ctx, event, scrobbler.OriginHistory)
		if err != nil {
			metrics.RecordIngestError(string(s.cfg.FailurePolicy))
			if s.cfg.FailurePolicy == PolicyRetry {
				// Later entries wait so the next backfill resumes from here.
				logger.Error().Err(err).Msg("Failed to record history entry, retrying later")
				break
			}
			if s.cfg.FailurePolicy == PolicyQueue {
				if _, qerr := s.pending.AddPending(ctx, event, scrobbler.OriginHistory, err); qerr == nil {
					s.pendingCount++
					continue
				}
			}
			logger.Error().Err(err).Str("track_id", entry.Track.ID).Msg("Failed to record history entry, dropping")
			continue
		}
		if inserted {
			recorded++
			metrics.RecordScrobble(scrobbler.OriginHistory)
		}
	}

	metrics.RecordBackfillEntries(len(entries))
	if len(entries) > 0 {
		logger.Info().
			Time("since", since).
			Int("entries", len(entries)).
			Int("recorded", recorded).
			Int("skipped", skipped).
			Msg("Backfilled listening history")
	}
}

// coveredByLiveLocked reports whether a history entry is a play the live path
// already counted: the cached scrobbled session, or the last live scrobble.
func (s *Scheduler) coveredByLiveLocked(entry music.HistoryEntry) bool {
	if c := s.cached; c != nil && c.Scrobbled && c.Track != nil &&
		c.Track.ID == entry.Track.ID && !entry.PlayedAt.Before(c.Timestamp) {
		return true
	}

	if last := s.lastScrobble; last != nil && last.Track.ID == entry.Track.ID {
		end := last.Timestamp.Add(last.Track.Duration + 2*s.cfg.Interval)
		if !entry.PlayedAt.Before(last.Timestamp) && !entry.PlayedAt.After(end) {
			return true
		}
	}
	return false
}

func (s *Scheduler) drainPendingLocked(ctx context.Context, logger zerolog.Logger) {
	pending, err := s.pending.GetPending(ctx, pendingBatchSize)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get pending scrobbles")
		return
	}

	if len(pending) > 0 {
		logger.Info().Int("count", len(pending)).Msg("Retrying pending scrobbles")
	}

	var done []int64
	for _, p := range pending {
		inserted, err := s.ingest.Ingest(ctx, p.Event, p.Origin)
		if err != nil {
			logger.Warn().
				Err(err).
				Int64("id", p.ID).
				Str("track_id", p.Event.Track.ID).
				Int("attempts", p.Attempts+1).
				Msg("Pending scrobble failed again")
			if markErr := s.pending.MarkPendingError(ctx, p.ID, err.Error()); markErr != nil {
				logger.Error().Err(markErr).Int64("id", p.ID).Msg("Failed to mark pending scrobble error")
			}
			continue
		}
		if inserted {
			metrics.RecordScrobble(p.Origin)
		}
		done = append(done, p.ID)
	}

	if err := s.pending.DeletePending(ctx, done); err != nil {
		logger.Error().Err(err).Msg("Failed to remove recorded pending scrobbles")
	}

	count, err := s.pending.CountPending(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to count pending scrobbles")
		return
	}
	s.pendingCount = count
	metrics.SetPendingScrobbles(count)
}

// Shutdown purges pending scrobbles too old to be worth retrying.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return
	}

	deleted, err := s.pending.CleanupPending(ctx, store.PendingMaxAge)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cleanup pending scrobbles")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("Dropped stale pending scrobbles")
	}
}

func copySnapshot(s *music.Snapshot) *music.Snapshot {
	c := *s
	if s.Track != nil {
		t := *s.Track
		c.Track = &t
	}
	return &c
}
