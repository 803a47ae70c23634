package snapshot_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/memocache/pkg/cache"
	"github.com/dmitrymomot/memocache/pkg/fingerprint"
	"github.com/dmitrymomot/memocache/pkg/metrics"
	"github.com/dmitrymomot/memocache/pkg/snapshot"
	"github.com/dmitrymomot/memocache/pkg/snapstore"
)

const (
	docName  = "cache.json"
	debounce = 20 * time.Millisecond
	waitFor  = 2 * time.Second
	tick     = 5 * time.Millisecond
)

// testStore records writes to an in-memory billy store and can block reads
// or fail operations.
type testStore struct {
	inner *snapstore.Billy

	mu       sync.Mutex
	writes   [][]byte
	exists   int
	writeErr error
	readErr  error
	gate     chan struct{}
}

func newTestStore() *testStore {
	return &testStore{inner: snapstore.NewBilly(memfs.New())}
}

func (s *testStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	s.exists++
	s.mu.Unlock()
	return s.inner.Exists(ctx, name)
}

func (s *testStore) ReadFile(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	gate, readErr := s.gate, s.readErr
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if readErr != nil {
		return nil, readErr
	}
	return s.inner.ReadFile(ctx, name)
}

func (s *testStore) WriteFile(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	s.writes = append(s.writes, append([]byte(nil), data...))
	s.mu.Unlock()
	return s.inner.WriteFile(ctx, name, data)
}

// put stores a document without recording it as a write.
func (s *testStore) put(t *testing.T, doc string) {
	t.Helper()
	require.NoError(t, s.inner.WriteFile(context.Background(), docName, []byte(doc)))
}

func (s *testStore) setWriteErr(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

func (s *testStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *testStore) existsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exists
}

// lastDoc parses the most recent recorded write, or returns nil.
func (s *testStore) lastDoc() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.writes) == 0 {
		return nil
	}
	var doc map[string]string
	if err := json.Unmarshal(s.writes[len(s.writes)-1], &doc); err != nil {
		return nil
	}
	return doc
}

func (s *testStore) document(t *testing.T) map[string]string {
	t.Helper()
	doc := s.lastDoc()
	require.NotNil(t, doc, "no document written")
	return doc
}

func open(t *testing.T, store snapshot.Store, cfg cache.Config, opts ...snapshot.Option) *snapshot.Cache {
	t.Helper()

	opts = append([]snapshot.Option{snapshot.WithDebounce(debounce)}, opts...)
	c, err := snapshot.Open(store, docName, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func openReady(t *testing.T, store snapshot.Store, opts ...snapshot.Option) *snapshot.Cache {
	t.Helper()

	c := open(t, store, cache.DefaultConfig(), opts...)
	require.NoError(t, c.Wait(context.Background()))
	require.Equal(t, snapshot.StateReady, c.State())
	return c
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("nil store", func(t *testing.T) {
		t.Parallel()
		_, err := snapshot.Open(nil, docName, cache.DefaultConfig())
		require.ErrorIs(t, err, snapshot.ErrNilStore)
	})

	t.Run("empty name", func(t *testing.T) {
		t.Parallel()
		_, err := snapshot.Open(newTestStore(), "", cache.DefaultConfig())
		require.ErrorIs(t, err, snapshot.ErrEmptyName)
	})

	t.Run("invalid fingerprint length", func(t *testing.T) {
		t.Parallel()
		cfg := cache.DefaultConfig()
		cfg.Fingerprint.Length = 0
		_, err := snapshot.Open(newTestStore(), docName, cfg)
		require.ErrorIs(t, err, fingerprint.ErrInvalidLength)
	})

	t.Run("invalid checkpoint schedule", func(t *testing.T) {
		t.Parallel()
		_, err := snapshot.Open(newTestStore(), docName, cache.DefaultConfig(),
			snapshot.WithCheckpoint("every now and then"))
		require.ErrorIs(t, err, snapshot.ErrInvalidSchedule)
	})

	t.Run("valid checkpoint schedule", func(t *testing.T) {
		t.Parallel()
		c := openReady(t, newTestStore(), snapshot.WithCheckpoint("@every 1h"))
		require.NoError(t, c.Close(context.Background()))
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing document is created empty once", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		c := openReady(t, store)

		require.Equal(t, 0, c.Len())
		require.Equal(t, 1, store.writeCount())
		require.Empty(t, store.document(t))
		require.Equal(t, 1, store.existsCount())

		c.Set("a", "1")
		require.NoError(t, c.Flush(context.Background()))
		require.Equal(t, 1, store.existsCount())
	})

	t.Run("entries keep document order and get no TTL", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		store.put(t, `{"z":"1","a":"2","m":"3"}`)

		cfg := cache.DefaultConfig()
		cfg.DefaultTTL = time.Hour
		c := open(t, store, cfg)
		require.NoError(t, c.Wait(context.Background()))

		require.Equal(t, []string{"z", "a", "m"}, c.Keys())
		_, ok := c.ExpiresAt("z")
		require.False(t, ok)
		require.Equal(t, int64(1), c.Stats().Loads)
	})

	t.Run("loaded content is not rewritten", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		store.put(t, `{"a":"1"}`)
		c := openReady(t, store)

		require.NoError(t, c.Flush(context.Background()))
		time.Sleep(3 * debounce)
		require.Equal(t, 0, store.writeCount())
	})

	t.Run("malformed documents load empty", func(t *testing.T) {
		t.Parallel()

		for _, doc := range []string{`["a","b"]`, `not json`, ``, `"text"`, `{"a":"1"`, `{} {}`} {
			store := newTestStore()
			store.put(t, doc)
			c := openReady(t, store)

			require.Equal(t, 0, c.Len(), doc)
			require.Equal(t, int64(1), c.Stats().ParseErrors, doc)
		}
	})

	t.Run("non-string values are skipped", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		store.put(t, `{"a":"1","b":2,"c":{"x":"y"},"d":"4","e":null}`)
		c := openReady(t, store)

		require.Equal(t, []string{"a", "d"}, c.Keys())
		require.Equal(t, int64(3), c.Stats().SkippedEntries)
	})

	t.Run("read error is reported by Wait", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		store.readErr = errors.New("disk on fire")

		var handled atomic.Int32
		c := open(t, store, cache.DefaultConfig(),
			snapshot.WithErrorHandler(func(err error) {
				if errors.Is(err, snapshot.ErrLoad) {
					handled.Add(1)
				}
			}),
		)

		err := c.Wait(context.Background())
		require.ErrorIs(t, err, snapshot.ErrLoad)
		require.Equal(t, snapshot.StateReady, c.State())
		require.Equal(t, int32(1), handled.Load())

		// Memory keeps working.
		c.Set("a", "1")
		v, ok := c.Get("a")
		require.True(t, ok)
		require.Equal(t, "1", v)
	})
}

func TestMutationsWhileLoading(t *testing.T) {
	t.Parallel()

	newGated := func(t *testing.T) (*testStore, chan struct{}) {
		store := newTestStore()
		store.put(t, `{"a":"old","b":"old","c":"old"}`)
		gate := make(chan struct{})
		store.gate = gate
		return store, gate
	}

	t.Run("set and delete win over the document", func(t *testing.T) {
		t.Parallel()

		store, gate := newGated(t)
		c := open(t, store, cache.DefaultConfig())

		require.Equal(t, snapshot.StateLoading, c.State())
		require.ErrorIs(t, c.Healthcheck()(context.Background()), snapshot.ErrNotReady)

		c.Set("a", "new")
		c.Set("d", "new")
		require.False(t, c.Delete("b"))

		close(gate)
		require.NoError(t, c.Wait(context.Background()))

		v, _ := c.Get("a")
		require.Equal(t, "new", v)
		require.False(t, c.Has("b"))
		v, _ = c.Get("c")
		require.Equal(t, "old", v)
		require.Equal(t, []string{"c", "a", "d"}, c.Keys())

		require.Eventually(t, func() bool { return store.writeCount() == 1 }, waitFor, tick)
		require.Equal(t, map[string]string{"a": "new", "c": "old", "d": "new"}, store.document(t))
	})

	t.Run("clear discards the document", func(t *testing.T) {
		t.Parallel()

		store, gate := newGated(t)
		c := open(t, store, cache.DefaultConfig())

		c.Clear()
		c.Set("x", "1")

		close(gate)
		require.NoError(t, c.Wait(context.Background()))
		require.Equal(t, []string{"x"}, c.Keys())
	})

	t.Run("flush waits for the load", func(t *testing.T) {
		t.Parallel()

		store, gate := newGated(t)
		c := open(t, store, cache.DefaultConfig())
		c.Set("d", "new")

		ctx, cancel := context.WithTimeout(context.Background(), debounce)
		defer cancel()
		require.ErrorIs(t, c.Flush(ctx), context.DeadlineExceeded)
		require.Equal(t, 0, store.writeCount())

		close(gate)
		require.NoError(t, c.Flush(context.Background()))
		require.Len(t, store.document(t), 4)
	})

	t.Run("close without waiting still protects later deletes", func(t *testing.T) {
		t.Parallel()

		store, gate := newGated(t)
		c := open(t, store, cache.DefaultConfig())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, c.Close(ctx), context.Canceled)
		require.Equal(t, snapshot.StateClosed, c.State())

		c.Delete("a")

		close(gate)
		<-c.Ready()

		require.False(t, c.Has("a"))
		require.True(t, c.Has("b"))
		require.Equal(t, 0, store.writeCount())
	})
}

func TestSave(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		a := openReady(t, store)
		a.Set("x", "1").Set("y", "2")
		require.Eventually(t, func() bool { return store.writeCount() == 2 }, waitFor, tick)
		require.NoError(t, a.Close(context.Background()))

		b := openReady(t, store)
		v, ok := b.Get("x")
		require.True(t, ok)
		require.Equal(t, "1", v)
		require.Equal(t, []string{"x", "y"}, b.Keys())
	})

	t.Run("mutations in one interval coalesce into one write", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		c := openReady(t, store, snapshot.WithDebounce(100*time.Millisecond))
		baseline := store.writeCount()

		for i := range 10 {
			c.Set(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
		}
		c.Delete("k0")
		c.Set("k1", "final")

		require.Eventually(t, func() bool { return store.writeCount() == baseline+1 }, waitFor, tick)
		doc := store.document(t)
		require.Len(t, doc, 9)
		require.Equal(t, "final", doc["k1"])
		require.NotContains(t, doc, "k0")

		// Nothing changed: the next interval writes nothing.
		time.Sleep(300 * time.Millisecond)
		require.Equal(t, baseline+1, store.writeCount())
	})

	t.Run("reverting a change skips the write", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		store.put(t, `{"a":"1"}`)
		c := openReady(t, store)

		c.Set("a", "2")
		c.Set("a", "1")
		require.NoError(t, c.Flush(context.Background()))
		require.Equal(t, 0, store.writeCount())
		require.GreaterOrEqual(t, c.Stats().SavesSkipped, int64(1))
	})

	t.Run("expiry is saved", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		c := openReady(t, store)
		c.Set("keep", "1")
		c.Set("gone", "2", cache.WithTTL(50*time.Millisecond))

		require.Eventually(t, func() bool {
			doc := store.lastDoc()
			_, ok := doc["gone"]
			return doc != nil && !ok && store.writeCount() >= 2
		}, waitFor, tick)
		require.Equal(t, map[string]string{"keep": "1"}, store.document(t))
	})

	t.Run("capacity eviction is saved", func(t *testing.T) {
		t.Parallel()

		cfg := cache.DefaultConfig()
		cfg.MaxEntries = 2
		store := newTestStore()
		c := open(t, store, cfg)
		require.NoError(t, c.Wait(context.Background()))

		c.Set("a", "1").Set("b", "2").Set("c", "3")
		require.NoError(t, c.Flush(context.Background()))
		require.Equal(t, map[string]string{"b": "2", "c": "3"}, store.document(t))
	})

	t.Run("write errors reach flush, health and handler", func(t *testing.T) {
		t.Parallel()

		store := newTestStore()
		var handled atomic.Int32
		c := openReady(t, store, snapshot.WithErrorHandler(func(err error) {
			if errors.Is(err, snapshot.ErrSave) {
				handled.Add(1)
			}
		}))
		health := c.Healthcheck()
		require.NoError(t, health(context.Background()))

		boom := errors.New("boom")
		store.setWriteErr(boom)

		c.Set("a", "1")
		require.Eventually(t, func() bool { return handled.Load() >= 1 }, waitFor, tick)

		err := c.Flush(context.Background())
		require.ErrorIs(t, err, snapshot.ErrSave)
		require.ErrorIs(t, err, boom)
		require.ErrorIs(t, health(context.Background()), snapshot.ErrSave)
		require.GreaterOrEqual(t, c.Stats().SaveErrors, int64(2))

		// Memory stays authoritative.
		v, _ := c.Get("a")
		require.Equal(t, "1", v)

		store.setWriteErr(nil)
		require.NoError(t, c.Flush(context.Background()))
		require.NoError(t, health(context.Background()))
		require.Equal(t, map[string]string{"a": "1"}, store.document(t))
	})
}

func TestSave_InvalidUTF8(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	a := openReady(t, store)
	a.Set("k", "\xff\xfe").Set("ok", "1")
	require.NoError(t, a.Flush(context.Background()))
	require.Equal(t, int64(1), a.Stats().UnsavedEntries)
	require.Equal(t, map[string]string{"ok": "1"}, store.document(t))

	// Memory keeps the original bytes.
	v, ok := a.Get("k")
	require.True(t, ok)
	require.Equal(t, "\xff\xfe", v)
	require.NoError(t, a.Close(context.Background()))

	b := openReady(t, store)
	require.False(t, b.Has("k"))
	require.Equal(t, []string{"ok"}, b.Keys())
}

func TestClose(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	c := openReady(t, store, snapshot.WithDebounce(time.Hour))
	baseline := store.writeCount()

	c.Set("a", "1")
	require.NoError(t, c.Close(context.Background()))
	require.Equal(t, snapshot.StateClosed, c.State())
	require.Equal(t, baseline+1, store.writeCount())
	require.Equal(t, map[string]string{"a": "1"}, store.document(t))

	require.NoError(t, c.Close(context.Background()))
	require.ErrorIs(t, c.Flush(context.Background()), snapshot.ErrClosed)
	require.ErrorIs(t, c.Healthcheck()(context.Background()), snapshot.ErrClosed)

	c.Set("b", "2")
	require.True(t, c.Has("b"))
	require.Equal(t, baseline+1, store.writeCount())
}

func TestGetOrSet(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	c := openReady(t, store)

	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "computed", nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			v, err := c.GetOrSet(context.Background(), "k", fn)
			require.NoError(t, err)
			require.Equal(t, "computed", v)
		})
	}
	wg.Wait()
	require.Equal(t, int32(1), calls.Load())

	_, err := c.GetOrSet(context.Background(), "fail", func(context.Context) (string, error) {
		return "", errors.New("nope")
	})
	require.Error(t, err)
	require.False(t, c.Has("fail"))

	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, map[string]string{"k": "computed"}, store.document(t))
}

func TestStats(t *testing.T) {
	t.Parallel()

	tracker := metrics.NewTracker(metrics.DefaultRelativeAccuracy)
	store := newTestStore()
	c := openReady(t, store, snapshot.WithMetrics(tracker))

	c.Set("a", "1")
	require.NoError(t, c.Flush(context.Background()))

	stats := c.Stats()
	require.Equal(t, "ready", stats.State)
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, int64(1), stats.Loads)
	require.Equal(t, int64(1), stats.Saves)
	require.Equal(t, int64(1), tracker.Count(snapshot.CounterSaves))

	load, err := tracker.Stats(snapshot.OpLoad)
	require.NoError(t, err)
	require.Equal(t, int64(1), load.Count)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "loading", snapshot.StateLoading.String())
	require.Equal(t, "ready", snapshot.StateReady.String())
	require.Equal(t, "closed", snapshot.StateClosed.String())
	require.Equal(t, "unknown", snapshot.State(42).String())
}
