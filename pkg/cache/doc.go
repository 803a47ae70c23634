// Package cache provides a generic in-memory cache with TTL expiration and an
// insertion-order capacity bound, used to memoize expensive computed
// artifacts such as transformed images and their metadata.
//
// # Construction
//
// A cache is built from an explicit [Config]. [DefaultConfig] returns the
// default value; there is no package-level mutable configuration:
//
//	cfg := cache.DefaultConfig()
//	cfg.DefaultTTL = 10 * time.Minute
//	cfg.MaxEntries = 10000
//
//	c, err := cache.New[string, []byte](cfg)
//
// [New] fails with [ErrInvalidConfig] when the fingerprint length is not
// positive (the error also matches [fingerprint.ErrInvalidLength]) or when
// TTL or capacity are negative. [LoadConfig] reads the same configuration
// from YAML.
//
// # Operations
//
//   - Get(key) (V, bool): never extends a TTL
//   - Set(key, value, opts...) *Memory: insert or replace, returns the cache
//   - Delete(key) bool: reports whether the key existed
//   - Clear(): removes everything and stops all timers
//   - Has, Len, Keys, Values, Entries, All: views in insertion order
//
// # Expiration
//
// The effective TTL of a Set is its [WithTTL] or [NoExpiry] override, else
// Config.DefaultTTL (zero meaning "never"). A key with a TTL owns one timer;
// re-setting the key stops it and starts a new one, so the TTL always counts
// from the most recent Set. When the timer fires the key is removed the same
// way Delete removes it.
//
// # Capacity
//
// With MaxEntries = N, a Set that leaves N+1 entries evicts exactly one entry:
// the oldest inserted. Reads do not protect an entry from eviction; this is
// not an LRU cache.
//
// # Key derivation
//
// [Memory.Fingerprint] hashes a structured value with the cache's fingerprint
// configuration, which makes a stable key out of request parameters:
//
//	key, err := c.Fingerprint(struct {
//	    URL    string
//	    Width  int
//	}{src, 320})
//
// # Stampede protection
//
// [Memory.GetOrSet] computes a missing value once, even when many goroutines
// miss the same key at the same time:
//
//	img, err := c.GetOrSet(ctx, key, func(ctx context.Context) ([]byte, error) {
//	    return transform(ctx, src)
//	})
//
// # Eviction callbacks
//
// [Memory.SetEvictCallback] observes every removal with its [EvictReason]
// (Deleted, Expired, Capacity or Cleared).
package cache
