package snapshot

import "errors"

// Sentinel errors for the snapshot package.
var (
	// ErrNilStore is returned by Open when no store is given.
	ErrNilStore = errors.New("snapshot: store is nil")
	// ErrEmptyName is returned by Open for an empty document name.
	ErrEmptyName = errors.New("snapshot: document name is empty")
	// ErrInvalidSchedule is returned by Open when WithCheckpoint cannot be parsed.
	ErrInvalidSchedule = errors.New("snapshot: invalid checkpoint schedule")

	// ErrNotReady is reported by Healthcheck until the initial load finishes.
	ErrNotReady = errors.New("snapshot: initial load in progress")
	// ErrClosed is returned by Flush and Healthcheck after Close.
	ErrClosed = errors.New("snapshot: cache is closed")
	// ErrLoad wraps store errors from the initial load.
	ErrLoad = errors.New("snapshot: failed to load document")
	// ErrSave wraps store errors from a save.
	ErrSave = errors.New("snapshot: failed to save document")
	// ErrMalformed marks a document that is not a flat JSON object. It is
	// logged and counted, never returned.
	ErrMalformed = errors.New("snapshot: malformed document")
)
