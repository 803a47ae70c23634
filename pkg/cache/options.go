package cache

import "time"

// SetOption overrides the expiry of a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl     time.Duration
	expires bool
}

// WithTTL expires the entry d after this Set. A zero TTL expires the entry
// as soon as its timer runs. Negative values are treated as zero.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = max(d, 0)
		o.expires = true
	}
}

// NoExpiry keeps the entry until it is deleted, cleared or evicted,
// regardless of the cache's default TTL.
func NoExpiry() SetOption {
	return func(o *setOptions) {
		o.ttl = 0
		o.expires = false
	}
}
