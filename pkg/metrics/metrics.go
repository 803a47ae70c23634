// Package metrics records operation latencies as DDSketch quantile sketches
// together with plain event counters.
package metrics

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// ErrNoData is returned when an operation has never been recorded.
var ErrNoData = errors.New("metrics: no data for operation")

// DefaultRelativeAccuracy keeps quantile estimates within 1%.
const DefaultRelativeAccuracy = 0.01

// Tracker tracks latency quantiles per operation and named counters.
// It is safe for concurrent use.
type Tracker struct {
	sketches         map[string]*ddsketch.DDSketch
	counters         map[string]int64
	relativeAccuracy float64
	mu               sync.Mutex
}

// NewTracker creates a tracker. relativeAccuracy bounds the relative error
// of quantile estimates (0.01 = 1%); non-positive values use the default.
func NewTracker(relativeAccuracy float64) *Tracker {
	if relativeAccuracy <= 0 || relativeAccuracy >= 1 {
		relativeAccuracy = DefaultRelativeAccuracy
	}
	return &Tracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		counters:         make(map[string]int64),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record adds a duration sample for operation, in milliseconds.
func (t *Tracker) Record(operation string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sketch, ok := t.sketches[operation]
	if !ok {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(t.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(DefaultRelativeAccuracy)
		}
		t.sketches[operation] = sketch
	}

	_ = sketch.Add(float64(d.Microseconds()) / 1000.0)
}

// Time runs fn and records its duration under operation.
func (t *Tracker) Time(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.Record(operation, time.Since(start))
	return err
}

// Inc adds one to the named counter.
func (t *Tracker) Inc(name string) {
	t.Add(name, 1)
}

// Add adds n to the named counter.
func (t *Tracker) Add(name string, n int64) {
	t.mu.Lock()
	t.counters[name] += n
	t.mu.Unlock()
}

// Count returns the value of the named counter.
func (t *Tracker) Count(name string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters[name]
}

// Counters returns a copy of all counters.
func (t *Tracker) Counters() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int64, len(t.counters))
	for k, v := range t.counters {
		out[k] = v
	}
	return out
}

// Stats summarizes the latency distribution of one operation in milliseconds.
type Stats struct {
	Operation string  `json:"operation"`
	Count     int64   `json:"count"`
	Min       float64 `json:"min_ms"`
	P50       float64 `json:"p50_ms"`
	P90       float64 `json:"p90_ms"`
	P99       float64 `json:"p99_ms"`
	Max       float64 `json:"max_ms"`
}

// Stats returns the latency summary of operation.
func (t *Tracker) Stats(operation string) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked(operation)
}

// AllStats returns summaries of every recorded operation sorted by name.
func (t *Tracker) AllStats() []Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	ops := make([]string, 0, len(t.sketches))
	for op := range t.sketches {
		ops = append(ops, op)
	}
	slices.Sort(ops)

	out := make([]Stats, 0, len(ops))
	for _, op := range ops {
		if s, err := t.statsLocked(op); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func (t *Tracker) statsLocked(operation string) (Stats, error) {
	sketch, ok := t.sketches[operation]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrNoData, operation)
	}

	count := sketch.GetCount()
	if count == 0 {
		return Stats{Operation: operation}, nil
	}

	minV, _ := sketch.GetMinValue()
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p90, _ := sketch.GetValueAtQuantile(0.90)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	maxV, _ := sketch.GetMaxValue()

	return Stats{
		Operation: operation,
		Count:     int64(count),
		Min:       minV,
		P50:       p50,
		P90:       p90,
		P99:       p99,
		Max:       maxV,
	}, nil
}

// String formats the summary on one line.
func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Operation)
	}
	return fmt.Sprintf("%s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}
