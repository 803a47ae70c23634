package snapshot

// State is the lifecycle state of a snapshot cache.
type State int32

const (
	// StateLoading lasts from Open until the initial document is applied.
	StateLoading State = iota
	// StateReady means saves are scheduled on mutation.
	StateReady
	// StateClosed means Close was called; no further saves happen.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
