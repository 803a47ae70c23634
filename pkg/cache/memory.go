package cache

import (
	"container/list"
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/memocache/pkg/fingerprint"
)

// entry is the value stored in the order list.
type entry[K comparable, V any] struct {
	key   K
	value V
}

// expiry tracks the timer of a key with an effective TTL.
type expiry struct {
	setAt time.Time
	timer *time.Timer
	ttl   time.Duration
}

// Memory is an in-memory cache with per-entry TTL timers and an optional
// insertion-order capacity bound.
//
// Entries are kept in a hash map for lookups and in a doubly-linked list in
// insertion order: the front of the list is the oldest entry. Re-setting an
// existing key keeps its position. Every key with an effective TTL has one
// expiry record in a side table; the record and its timer are replaced on
// each Set and removed together with the entry.
//
// Memory is safe for concurrent use. Timer callbacks take the same lock as
// callers, so mutations never interleave.
type Memory[K comparable, V any] struct {
	items   map[K]*list.Element
	order   *list.List
	timers  map[K]*expiry
	hasher  *fingerprint.Hasher
	onEvict func(key K, value V, reason EvictReason)
	flight  singleflight.Group
	cfg     Config
	mu      sync.Mutex
}

// New creates an empty cache. It fails with ErrInvalidConfig (joined with
// the fingerprint error, if any) when cfg is invalid.
//
// Example:
//
//	cfg := cache.DefaultConfig()
//	cfg.DefaultTTL = 10 * time.Minute
//	cfg.MaxEntries = 1000
//
//	c, err := cache.New[string, []byte](cfg)
//	c.Set("thumb:42", data)
//	c.Set("meta:42", meta, cache.NoExpiry())
func New[K comparable, V any](cfg Config) (*Memory[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := fingerprint.New(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}

	return &Memory[K, V]{
		items:  make(map[K]*list.Element),
		order:  list.New(),
		timers: make(map[K]*expiry),
		hasher: hasher,
		cfg:    cfg,
	}, nil
}

// SetEvictCallback sets a function called whenever an entry leaves the
// cache. It runs with the cache lock held and must not call back into the
// cache.
func (m *Memory[K, V]) SetEvictCallback(fn func(key K, value V, reason EvictReason)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = fn
}

// Config returns the cache configuration.
func (m *Memory[K, V]) Config() Config {
	return m.cfg
}

// Hasher returns the fingerprint hasher built from the cache configuration.
func (m *Memory[K, V]) Hasher() *fingerprint.Hasher {
	return m.hasher
}

// Fingerprint derives a key from a structured value using the cache's
// fingerprint configuration.
func (m *Memory[K, V]) Fingerprint(v any, opts ...fingerprint.Option) (string, error) {
	return m.hasher.Value(v, opts...)
}

// Get returns the value stored under key. Reads never extend a TTL.
func (m *Memory[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*entry[K, V]).value, true
}

// Set inserts or replaces the value under key and returns the cache.
//
// The effective TTL is the WithTTL or NoExpiry override, else the configured
// default. Any previous timer of the key is stopped; the TTL counts from this
// call. When the cache now holds more than MaxEntries entries, the single
// oldest entry is evicted.
func (m *Memory[K, V]) Set(key K, value V, opts ...SetOption) *Memory[K, V] {
	o := setOptions{ttl: m.cfg.DefaultTTL, expires: m.cfg.DefaultTTL > 0}
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		elem.Value.(*entry[K, V]).value = value
	} else {
		m.items[key] = m.order.PushBack(&entry[K, V]{key: key, value: value})
	}

	m.stopTimer(key)
	if o.expires {
		m.armTimer(key, o.ttl)
	}

	// A single eviction per Set: the store may hold MaxEntries+1 entries
	// only between the insert above and this check.
	if m.cfg.MaxEntries > 0 && len(m.items)-1 >= m.cfg.MaxEntries {
		if oldest := m.order.Front(); oldest != nil {
			m.removeElement(oldest, Capacity)
		}
	}

	return m
}

// Delete removes key and its timer. It reports whether an entry existed.
func (m *Memory[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeElement(elem, Deleted)
	return true
}

// Clear removes all entries and stops all pending timers.
func (m *Memory[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, rec := range m.timers {
		rec.timer.Stop()
		delete(m.timers, key)
	}

	if m.onEvict != nil {
		for elem := m.order.Front(); elem != nil; elem = elem.Next() {
			e := elem.Value.(*entry[K, V])
			m.onEvict(e.key, e.value, Cleared)
		}
	}

	m.items = make(map[K]*list.Element)
	m.order.Init()
}

// Has reports whether an entry exists for key.
func (m *Memory[K, V]) Has(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.items[key]
	return ok
}

// Len returns the number of entries.
func (m *Memory[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// ExpiresAt returns when key expires. The second result is false when the
// key is absent or has no TTL.
func (m *Memory[K, V]) ExpiresAt(key K) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.timers[key]
	if !ok {
		return time.Time{}, false
	}
	return rec.setAt.Add(rec.ttl), true
}

// Entries returns a copy of all entries in insertion order.
func (m *Memory[K, V]) Entries() []Entry[K, V] {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry[K, V], 0, len(m.items))
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry[K, V])
		out = append(out, Entry[K, V]{Key: e.key, Value: e.value})
	}
	return out
}

// Keys returns all keys in insertion order.
func (m *Memory[K, V]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]K, 0, len(m.items))
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*entry[K, V]).key)
	}
	return out
}

// Values returns all values in insertion order.
func (m *Memory[K, V]) Values() []V {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]V, 0, len(m.items))
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*entry[K, V]).value)
	}
	return out
}

// All iterates over a snapshot of the entries taken when iteration starts.
// The cache may be mutated while iterating.
func (m *Memory[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, e := range m.Entries() {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// Seed inserts entries whose keys are absent, ahead of all existing entries
// and in the given order. Seeded entries get no timer and do not trigger
// capacity eviction. It returns the number of inserted entries.
func (m *Memory[K, V]) Seed(entries []Entry[K, V]) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if _, ok := m.items[e.Key]; ok {
			continue
		}
		m.items[e.Key] = m.order.PushFront(&entry[K, V]{key: e.Key, value: e.Value})
		n++
	}
	return n
}

// GetOrSet returns the cached value for key or computes it with fn on a
// miss. Concurrent misses for the same key share one fn call. A failed fn
// caches nothing.
func (m *Memory[K, V]) GetOrSet(ctx context.Context, key K, fn func(ctx context.Context) (V, error), opts ...SetOption) (V, error) {
	if v, ok := m.Get(key); ok {
		return v, nil
	}

	// The type is part of the flight key: with K = any, int(1) and int64(1)
	// format alike but are distinct keys.
	v, err, _ := m.flight.Do(fmt.Sprintf("%T:%#v", key, key), func() (any, error) {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		val, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		m.Set(key, val, opts...)
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	val, _ := v.(V)
	return val, nil
}

// armTimer schedules expiry of key. Caller must hold the mutex.
func (m *Memory[K, V]) armTimer(key K, ttl time.Duration) {
	rec := &expiry{setAt: time.Now(), ttl: ttl}
	rec.timer = time.AfterFunc(ttl, func() { m.expire(key, rec) })
	m.timers[key] = rec
}

// stopTimer cancels the timer of key, if any. Caller must hold the mutex.
func (m *Memory[K, V]) stopTimer(key K) {
	if rec, ok := m.timers[key]; ok {
		rec.timer.Stop()
		delete(m.timers, key)
	}
}

// expire runs on the timer goroutine. A record that was replaced or
// stopped after the timer fired is stale and ignored.
func (m *Memory[K, V]) expire(key K, rec *expiry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timers[key] != rec {
		return
	}
	if elem, ok := m.items[key]; ok {
		m.removeElement(elem, Expired)
	}
}

// removeElement removes an entry with its timer and notifies the eviction
// callback. Caller must hold the mutex.
func (m *Memory[K, V]) removeElement(elem *list.Element, reason EvictReason) {
	m.order.Remove(elem)
	e := elem.Value.(*entry[K, V])
	delete(m.items, e.key)
	m.stopTimer(e.key)

	if m.onEvict != nil {
		m.onEvict(e.key, e.value, reason)
	}
}
