package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordVerdict(t *testing.T) {
	initial := testutil.ToFloat64(verdictsTotal.WithLabelValues("scrobble"))

	RecordVerdict("scrobble")

	assert.Equal(t, initial+1, testutil.ToFloat64(verdictsTotal.WithLabelValues("scrobble")))
}

func TestRecordVerdict_NormalizesUnknown(t *testing.T) {
	initial := testutil.ToFloat64(verdictsTotal.WithLabelValues("unknown"))

	RecordVerdict("paused")

	assert.Equal(t, initial+1, testutil.ToFloat64(verdictsTotal.WithLabelValues("unknown")))
}

func TestRecordScrobble(t *testing.T) {
	live := testutil.ToFloat64(scrobblesTotal.WithLabelValues("spotify"))
	history := testutil.ToFloat64(scrobblesTotal.WithLabelValues("history"))

	RecordScrobble("spotify")
	RecordScrobble("history")
	RecordScrobble("history")

	assert.Equal(t, live+1, testutil.ToFloat64(scrobblesTotal.WithLabelValues("spotify")))
	assert.Equal(t, history+2, testutil.ToFloat64(scrobblesTotal.WithLabelValues("history")))
}

func TestGauges(t *testing.T) {
	SetPendingScrobbles(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(pendingScrobbles))

	SetPendingScrobbles(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(pendingScrobbles))

	SetLastCycle(1767323045)
	assert.Equal(t, 1767323045.0, testutil.ToFloat64(lastCycleTimestamp))
}

func TestRecordBackfillEntries(t *testing.T) {
	initial := testutil.ToFloat64(backfillEntriesTotal)

	RecordBackfillEntries(4)

	assert.Equal(t, initial+4, testutil.ToFloat64(backfillEntriesTotal))
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("open")

	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("closed")))

	SetCircuitBreakerState("closed")

	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("closed")))
}
