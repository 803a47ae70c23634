package cache

// Entry is a key/value pair as returned by the read-only views.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// EvictReason tells an eviction callback why an entry left the cache.
type EvictReason int

const (
	// Deleted means the entry was removed by Delete.
	Deleted EvictReason = iota + 1
	// Expired means the entry's TTL elapsed.
	Expired
	// Capacity means the entry was the oldest one when the cache overflowed.
	Capacity
	// Cleared means the entry was removed by Clear.
	Cleared
)

func (r EvictReason) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case Expired:
		return "expired"
	case Capacity:
		return "capacity"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}
