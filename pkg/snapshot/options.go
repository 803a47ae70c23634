package snapshot

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/memocache/pkg/metrics"
)

const (
	// DefaultDebounce is the quiet interval before a requested save runs.
	DefaultDebounce = time.Second
	// DefaultSaveTimeout bounds the initial load and each background save.
	DefaultSaveTimeout = 30 * time.Second
)

// Option configures a snapshot cache.
type Option func(*options)

type options struct {
	log         *slog.Logger
	metrics     *metrics.Tracker
	onError     func(error)
	checkpoint  string
	debounce    time.Duration
	saveTimeout time.Duration
}

func defaultOptions() options {
	return options{
		debounce:    DefaultDebounce,
		saveTimeout: DefaultSaveTimeout,
	}
}

// WithDebounce sets the quiet interval between the first mutation and the
// save it schedules. Default: 1 second.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithSaveTimeout bounds background loads and saves. Default: 30 seconds.
func WithSaveTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.saveTimeout = d
		}
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithErrorHandler receives load and background save errors.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithMetrics records latencies and counters into t instead of a private
// tracker.
func WithMetrics(t *metrics.Tracker) Option {
	return func(o *options) {
		o.metrics = t
	}
}

// WithCheckpoint requests a save on a cron schedule (standard 5-field
// syntax or descriptors such as "@every 5m"). Unchanged content is not
// rewritten.
func WithCheckpoint(spec string) Option {
	return func(o *options) {
		o.checkpoint = spec
	}
}
