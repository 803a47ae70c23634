package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/memocache/pkg/metrics"
)

func TestTracker_Record(t *testing.T) {
	t.Parallel()

	tracker := metrics.NewTracker(0.01)
	for _, op := range []string{"save", "load"} {
		for _, ms := range []int{1, 5, 10, 50, 100} {
			tracker.Record(op, time.Duration(ms)*time.Millisecond)
		}
	}

	stats, err := tracker.Stats("save")
	require.NoError(t, err)
	require.Equal(t, int64(5), stats.Count)
	require.InDelta(t, 1, stats.Min, 0.1)
	require.InDelta(t, 100, stats.Max, 1)
	require.InDelta(t, 10, stats.P50, 5)

	all := tracker.AllStats()
	require.Len(t, all, 2)
	require.Equal(t, "load", all[0].Operation)
	require.Equal(t, "save", all[1].Operation)

	_, err = tracker.Stats("nonexistent")
	require.ErrorIs(t, err, metrics.ErrNoData)
}

func TestTracker_Time(t *testing.T) {
	t.Parallel()

	tracker := metrics.NewTracker(0)
	boom := errors.New("boom")

	err := tracker.Time("write", func() error {
		time.Sleep(5 * time.Millisecond)
		return boom
	})
	require.ErrorIs(t, err, boom)

	stats, err := tracker.Stats("write")
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Count)
	require.GreaterOrEqual(t, stats.Min, 4.0)
}

func TestTracker_Counters(t *testing.T) {
	t.Parallel()

	tracker := metrics.NewTracker(0.01)
	tracker.Inc("saves")
	tracker.Inc("saves")
	tracker.Add("skipped", 3)

	require.Equal(t, int64(2), tracker.Count("saves"))
	require.Equal(t, int64(0), tracker.Count("missing"))
	require.Equal(t, map[string]int64{"saves": 2, "skipped": 3}, tracker.Counters())
}

func TestStats_String(t *testing.T) {
	t.Parallel()

	s := metrics.Stats{Operation: "save", Count: 100, Min: 1.5, P50: 10.2, P90: 50.7, P99: 99.1, Max: 120.5}
	require.Equal(t, "save (n=100): min=1.50ms p50=10.20ms p90=50.70ms p99=99.10ms max=120.50ms", s.String())
	require.Equal(t, "empty: no data", metrics.Stats{Operation: "empty"}.String())
}

func BenchmarkTracker_Record(b *testing.B) {
	tracker := metrics.NewTracker(0.01)
	for b.Loop() {
		tracker.Record("bench", 10*time.Millisecond)
	}
}
