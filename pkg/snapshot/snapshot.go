package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/memocache/pkg/cache"
	"github.com/dmitrymomot/memocache/pkg/fingerprint"
	"github.com/dmitrymomot/memocache/pkg/logger"
	"github.com/dmitrymomot/memocache/pkg/metrics"
)

// Latency operations and counters recorded in the metrics tracker.
const (
	OpLoad        = "snapshot.load"
	OpSave        = "snapshot.save"
	OpFingerprint = "snapshot.fingerprint"

	CounterLoads          = "snapshot.loads"
	CounterLoadErrors     = "snapshot.load_errors"
	CounterParseErrors    = "snapshot.parse_errors"
	CounterSkippedEntries = "snapshot.skipped_entries"
	CounterSaves          = "snapshot.saves"
	CounterSavesSkipped   = "snapshot.saves_skipped"
	CounterSaveErrors     = "snapshot.save_errors"
	CounterUnsavedEntries = "snapshot.unsaved_entries"
)

var emptyDocument = []byte("{}")

// Cache is a string cache mirrored to a document in a Store.
//
// Open starts loading the document in the background. Until the load
// completes the cache is in StateLoading: reads and writes work against
// memory, and every key written, deleted or cleared in that window wins
// over the loaded document. Once Ready, each mutation (including TTL
// expiry and capacity eviction) requests a debounced save. A save whose
// content fingerprint equals the last loaded or saved one writes nothing.
type Cache struct {
	mem   *cache.Memory[string, string]
	store Store
	name  string
	opts  options
	log   *slog.Logger
	stats *metrics.Tracker
	cron  *cron.Cron

	flight singleflight.Group
	state  atomic.Int32
	ready  chan struct{}
	exists atomic.Bool

	// stateMu guards the loading bookkeeping and state transitions.
	stateMu       sync.Mutex
	touched       map[string]struct{}
	clearedEarly  bool
	loadErr       error
	lastSaveError error

	// saveMu serializes saves and guards lastHash.
	saveMu   sync.Mutex
	lastHash string

	debounceMu sync.Mutex
	scheduled  *time.Timer
}

// Open creates the cache and starts loading the document name from store.
//
// Example:
//
//	store, _ := snapstore.NewFile("/var/lib/app")
//	c, err := snapshot.Open(store, "thumbnails.json", cache.DefaultConfig(),
//	    snapshot.WithDebounce(2*time.Second),
//	    snapshot.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close(ctx)
func Open(store Store, name string, cfg cache.Config, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if name == "" {
		return nil, ErrEmptyName
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	mem, err := cache.New[string, string](cfg)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		mem:     mem,
		store:   store,
		name:    name,
		opts:    o,
		log:     logger.OrNope(o.log).With(slog.String("snapshot", name)),
		stats:   o.metrics,
		ready:   make(chan struct{}),
		touched: make(map[string]struct{}),
	}
	if c.stats == nil {
		c.stats = metrics.NewTracker(metrics.DefaultRelativeAccuracy)
	}

	if o.checkpoint != "" {
		sched, err := cron.ParseStandard(o.checkpoint)
		if err != nil {
			return nil, errors.Join(ErrInvalidSchedule, err)
		}
		c.cron = cron.New()
		c.cron.Schedule(sched, cron.FuncJob(c.requestSave))
	}

	// Expiry and capacity evictions happen outside Set/Delete/Clear calls
	// made through this type, so the callback is what mirrors them.
	mem.SetEvictCallback(func(string, string, cache.EvictReason) {
		c.requestSave()
	})

	c.state.Store(int32(StateLoading))
	go c.load()
	if c.cron != nil {
		c.cron.Start()
	}

	return c, nil
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	return State(c.state.Load())
}

// Ready is closed once the initial load has finished, successfully or not.
func (c *Cache) Ready() <-chan struct{} {
	return c.ready
}

// Wait blocks until the initial load finishes and returns its I/O error.
// A malformed document is not an error.
func (c *Cache) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ready:
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.loadErr
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) (string, bool) {
	return c.mem.Get(key)
}

// Has reports whether key is present.
func (c *Cache) Has(key string) bool {
	return c.mem.Has(key)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.mem.Len()
}

// Keys returns all keys in insertion order.
func (c *Cache) Keys() []string {
	return c.mem.Keys()
}

// Values returns all values in insertion order.
func (c *Cache) Values() []string {
	return c.mem.Values()
}

// Entries returns a copy of all entries in insertion order.
func (c *Cache) Entries() []cache.Entry[string, string] {
	return c.mem.Entries()
}

// All iterates over a snapshot of the entries.
func (c *Cache) All() iter.Seq2[string, string] {
	return c.mem.All()
}

// ExpiresAt returns when key expires, if it has a TTL.
func (c *Cache) ExpiresAt(key string) (time.Time, bool) {
	return c.mem.ExpiresAt(key)
}

// Config returns the cache configuration.
func (c *Cache) Config() cache.Config {
	return c.mem.Config()
}

// Hasher returns the hasher built from the cache configuration.
func (c *Cache) Hasher() *fingerprint.Hasher {
	return c.mem.Hasher()
}

// Fingerprint derives a key from a structured value.
func (c *Cache) Fingerprint(v any, opts ...fingerprint.Option) (string, error) {
	return c.mem.Fingerprint(v, opts...)
}

// Set stores value under key and schedules a save.
// Loaded entries never override it.
func (c *Cache) Set(key, value string, opts ...cache.SetOption) *Cache {
	c.mutate(func() {
		c.touched[key] = struct{}{}
	}, func() {
		c.mem.Set(key, value, opts...)
	})
	c.requestSave()
	return c
}

// Delete removes key and schedules a save. A key deleted while loading is
// not restored by the load.
func (c *Cache) Delete(key string) bool {
	var ok bool
	c.mutate(func() {
		c.touched[key] = struct{}{}
	}, func() {
		ok = c.mem.Delete(key)
	})
	c.requestSave()
	return ok
}

// Clear removes all entries and schedules a save. Clearing while loading
// discards the document being loaded.
func (c *Cache) Clear() {
	c.mutate(func() {
		c.clearedEarly = true
	}, c.mem.Clear)
	c.requestSave()
}

// GetOrSet returns the cached value for key or computes and stores it.
// Concurrent misses for the same key share one call to fn.
func (c *Cache) GetOrSet(ctx context.Context, key string, fn func(ctx context.Context) (string, error), opts ...cache.SetOption) (string, error) {
	if v, ok := c.mem.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		if v, ok := c.mem.Get(key); ok {
			return v, nil
		}
		val, err := fn(ctx)
		if err != nil {
			return "", err
		}
		c.Set(key, val, opts...)
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// mutate runs apply, first recording the mutation with track while the
// load goroutine has not applied the document yet. That window can outlast
// StateLoading when Close gives up waiting, so it is keyed off touched,
// which the load resets under stateMu.
func (c *Cache) mutate(track, apply func()) {
	select {
	case <-c.ready:
		apply()
		return
	default:
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.touched != nil {
		track()
	}
	apply()
}

// load runs once, on its own goroutine, right after Open.
func (c *Cache) load() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.saveTimeout)
	defer cancel()
	ctx = logger.WithAttrs(ctx, slog.String("phase", "load"))

	start := time.Now()
	entries, err := c.readDocument(ctx)
	c.stats.Record(OpLoad, time.Since(start))

	var hash string
	if err == nil {
		hash, err = c.fingerprint(entries)
	}

	if err != nil {
		c.stats.Inc(CounterLoadErrors)
		c.report(ctx, errors.Join(ErrLoad, err))
	} else {
		c.saveMu.Lock()
		c.lastHash = hash
		c.saveMu.Unlock()
		c.stats.Inc(CounterLoads)
	}

	c.stateMu.Lock()
	seeded := 0
	if err == nil && !c.clearedEarly {
		fresh := entries[:0]
		for _, e := range entries {
			if _, ok := c.touched[e.Key]; !ok {
				fresh = append(fresh, e)
			}
		}
		seeded = c.mem.Seed(fresh)
	}
	if err != nil {
		c.loadErr = errors.Join(ErrLoad, err)
	}
	c.touched = nil
	c.clearedEarly = false
	ready := c.state.CompareAndSwap(int32(StateLoading), int32(StateReady))
	c.stateMu.Unlock()

	close(c.ready)

	if err == nil {
		c.log.DebugContext(ctx, "snapshot loaded",
			slog.Int("entries", seeded),
			slog.Duration("took", time.Since(start)),
		)
	}
	// After a failed read the document on the store is unknown, so only a
	// later mutation or checkpoint writes over it.
	if ready && err == nil {
		c.requestSave()
	}
}

// readDocument ensures the document exists and parses it. A malformed
// document yields no entries and no error.
func (c *Cache) readDocument(ctx context.Context) ([]cache.Entry[string, string], error) {
	if err := c.ensureExists(ctx); err != nil {
		return nil, err
	}

	data, err := c.store.ReadFile(ctx, c.name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	entries, skipped, err := decodeDocument(data)
	if err != nil {
		c.stats.Inc(CounterParseErrors)
		c.log.WarnContext(ctx, "snapshot document is malformed, starting empty",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	for _, key := range skipped {
		c.stats.Inc(CounterSkippedEntries)
		c.log.WarnContext(ctx, "skipping snapshot entry with non-string value", slog.String("key", key))
	}

	return entries, nil
}

// ensureExists writes an empty document if none exists. The probe runs
// until it first succeeds.
func (c *Cache) ensureExists(ctx context.Context) error {
	if c.exists.Load() {
		return nil
	}

	ok, err := c.store.Exists(ctx, c.name)
	if err != nil {
		return err
	}
	if !ok {
		if err := c.store.WriteFile(ctx, c.name, emptyDocument); err != nil {
			return err
		}
	}

	c.exists.Store(true)
	return nil
}

// requestSave schedules a save after the debounce interval unless one is
// already pending. It does nothing unless the cache is Ready.
func (c *Cache) requestSave() {
	if c.State() != StateReady {
		return
	}

	c.debounceMu.Lock()
	defer c.debounceMu.Unlock()

	if c.scheduled != nil {
		return
	}
	c.scheduled = time.AfterFunc(c.opts.debounce, c.runScheduled)
}

// runScheduled is the debounce timer callback. The schedule is cleared
// before saving so mutations made during the write arm the next cycle.
func (c *Cache) runScheduled() {
	c.debounceMu.Lock()
	c.scheduled = nil
	c.debounceMu.Unlock()

	if c.State() != StateReady {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.saveTimeout)
	defer cancel()
	ctx = logger.WithAttrs(ctx, slog.String("phase", "save"))

	if err := c.save(ctx); err != nil {
		c.report(ctx, err)
	}
}

// save writes the current entries unless they match the last known
// document.
func (c *Cache) save(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	entries := c.mem.Entries()
	doc, skipped, err := encodeDocument(entries)
	if err != nil {
		return c.saveFailed(err)
	}

	start := time.Now()
	hash := c.mem.Hasher().Bytes(doc)
	c.stats.Record(OpFingerprint, time.Since(start))

	if hash == c.lastHash {
		c.stats.Inc(CounterSavesSkipped)
		return nil
	}

	start = time.Now()
	err = c.store.WriteFile(ctx, c.name, doc)
	c.stats.Record(OpSave, time.Since(start))
	if err != nil {
		return c.saveFailed(err)
	}

	c.lastHash = hash
	c.stats.Inc(CounterSaves)
	c.setSaveError(nil)
	for _, key := range skipped {
		c.stats.Inc(CounterUnsavedEntries)
		c.log.WarnContext(ctx, "not saving snapshot entry with invalid UTF-8",
			slog.String("key", strings.ToValidUTF8(key, "\uFFFD")),
		)
	}
	c.log.DebugContext(ctx, "snapshot saved",
		slog.Int("entries", len(entries)-len(skipped)),
		slog.Int("bytes", len(doc)),
	)
	return nil
}

func (c *Cache) saveFailed(err error) error {
	err = errors.Join(ErrSave, err)
	c.stats.Inc(CounterSaveErrors)
	c.setSaveError(err)
	return err
}

func (c *Cache) setSaveError(err error) {
	c.stateMu.Lock()
	c.lastSaveError = err
	c.stateMu.Unlock()
}

// fingerprint hashes the canonical serialization of entries.
func (c *Cache) fingerprint(entries []cache.Entry[string, string]) (string, error) {
	doc, _, err := encodeDocument(entries)
	if err != nil {
		return "", err
	}
	return c.mem.Hasher().Bytes(doc), nil
}

// report logs a background error and passes it to the error handler.
func (c *Cache) report(ctx context.Context, err error) {
	c.log.ErrorContext(ctx, "snapshot error", slog.String("error", err.Error()))
	if c.opts.onError != nil {
		c.opts.onError(err)
	}
}

// Flush waits for the initial load and saves synchronously, writing only
// if the content changed since the last load or save.
func (c *Cache) Flush(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ready:
	}

	if c.State() == StateClosed {
		return ErrClosed
	}
	return c.save(ctx)
}

// Close stops scheduled saves and checkpoints and performs a final Flush.
// Memory stays readable and writable afterwards but is no longer saved.
// Closing a closed cache is a no-op.
func (c *Cache) Close(ctx context.Context) error {
	var waitErr error
	select {
	case <-ctx.Done():
		waitErr = ctx.Err()
	case <-c.ready:
	}

	c.stateMu.Lock()
	if c.State() == StateClosed {
		c.stateMu.Unlock()
		return nil
	}
	c.state.Store(int32(StateClosed))
	c.stateMu.Unlock()

	c.debounceMu.Lock()
	if c.scheduled != nil {
		c.scheduled.Stop()
		c.scheduled = nil
	}
	c.debounceMu.Unlock()

	if c.cron != nil {
		<-c.cron.Stop().Done()
	}

	if waitErr != nil {
		return waitErr
	}
	return c.save(ctx)
}

// Stats is a point-in-time view of snapshot activity.
type Stats struct {
	State          string          `json:"state"`
	Entries        int             `json:"entries"`
	Loads          int64           `json:"loads"`
	LoadErrors     int64           `json:"load_errors"`
	ParseErrors    int64           `json:"parse_errors"`
	SkippedEntries int64           `json:"skipped_entries"`
	Saves          int64           `json:"saves"`
	SavesSkipped   int64           `json:"saves_skipped"`
	SaveErrors     int64           `json:"save_errors"`
	UnsavedEntries int64           `json:"unsaved_entries"`
	Latency        []metrics.Stats `json:"latency,omitempty"`
}

// Stats returns counters and latency quantiles. With a shared tracker
// (WithMetrics) the latency list includes the tracker's other operations.
func (c *Cache) Stats() Stats {
	return Stats{
		State:          c.State().String(),
		Entries:        c.mem.Len(),
		Loads:          c.stats.Count(CounterLoads),
		LoadErrors:     c.stats.Count(CounterLoadErrors),
		ParseErrors:    c.stats.Count(CounterParseErrors),
		SkippedEntries: c.stats.Count(CounterSkippedEntries),
		Saves:          c.stats.Count(CounterSaves),
		SavesSkipped:   c.stats.Count(CounterSavesSkipped),
		SaveErrors:     c.stats.Count(CounterSaveErrors),
		UnsavedEntries: c.stats.Count(CounterUnsavedEntries),
		Latency:        c.stats.AllStats(),
	}
}

// Healthcheck returns a check that fails while loading, after Close, and
// while the most recent save attempt failed.
func (c *Cache) Healthcheck() func(ctx context.Context) error {
	return func(context.Context) error {
		switch c.State() {
		case StateLoading:
			return ErrNotReady
		case StateClosed:
			return ErrClosed
		}

		c.stateMu.Lock()
		defer c.stateMu.Unlock()
		return c.lastSaveError
	}
}
