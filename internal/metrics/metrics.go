// Package metrics exposes Prometheus counters for the scrobble loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrobblify_verdicts_total",
		Help: "Poll cycle verdicts by kind",
	}, []string{"verdict"})

	scrobblesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrobblify_scrobbles_total",
		Help: "Scrobbles recorded by origin",
	}, []string{"origin"})

	ingestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrobblify_ingest_errors_total",
		Help: "Failed ingestions by failure policy applied",
	}, []string{"policy"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrobblify_fetch_errors_total",
		Help: "Track source failures by operation",
	}, []string{"op"})

	backfillEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrobblify_backfill_entries_total",
		Help: "History entries processed by backfill",
	})

	pendingScrobbles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scrobblify_pending_scrobbles",
		Help: "Scrobbles waiting in the retry queue",
	})

	lastCycleTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scrobblify_last_cycle_timestamp_seconds",
		Help: "Unix time of the last completed poll cycle",
	})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scrobblify_circuit_breaker_state",
		Help: "Circuit breaker state of the track source (1 for the active state)",
	}, []string{"state"})
)

var circuitStates = []string{"closed", "half-open", "open"}

var verdictKinds = map[string]struct{}{
	"scrobble":          {},
	"cache":             {},
	"not_playing":       {},
	"already_scrobbled": {},
	"not_ready":         {},
}

// RecordVerdict counts one decision outcome.
func RecordVerdict(verdict string) {
	if _, ok := verdictKinds[verdict]; !ok {
		verdict = "unknown"
	}
	verdictsTotal.WithLabelValues(verdict).Inc()
}

// RecordScrobble counts a newly recorded scrobble.
func RecordScrobble(origin string) {
	scrobblesTotal.WithLabelValues(normalizeOrigin(origin)).Inc()
}

// RecordIngestError counts a failed ingestion.
func RecordIngestError(policy string) {
	ingestErrorsTotal.WithLabelValues(policy).Inc()
}

// RecordFetchError counts a failed call to the track source.
func RecordFetchError(op string) {
	fetchErrorsTotal.WithLabelValues(op).Inc()
}

// RecordBackfillEntries counts history entries handled by one backfill.
func RecordBackfillEntries(n int) {
	backfillEntriesTotal.Add(float64(n))
}

// SetPendingScrobbles reports the retry queue depth.
func SetPendingScrobbles(n int) {
	pendingScrobbles.Set(float64(n))
}

// SetLastCycle records the completion time of a poll cycle.
func SetLastCycle(unixSeconds float64) {
	lastCycleTimestamp.Set(unixSeconds)
}

// SetCircuitBreakerState records the active circuit breaker state.
func SetCircuitBreakerState(state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(s).Set(value)
	}
}

func normalizeOrigin(origin string) string {
	switch origin {
	case "spotify", "history":
		return origin
	default:
		return "unknown"
	}
}
