package snapstore

import (
	"errors"
	"io/fs"
)

// Sentinel errors for snapshot stores. A missing document is reported with
// an error matching fs.ErrNotExist.
var (
	ErrNotExist = fs.ErrNotExist

	ErrInvalidName   = errors.New("snapstore: invalid document name")
	ErrInvalidConfig = errors.New("snapstore: invalid configuration")
	ErrReadFailed    = errors.New("snapstore: read failed")
	ErrWriteFailed   = errors.New("snapstore: write failed")
	ErrLockTimeout   = errors.New("snapstore: failed to acquire document lock")
	ErrAccessDenied  = errors.New("snapstore: access denied")

	ErrConnectionFailed = errors.New("snapstore: failed to establish connection")
	ErrMigrate          = errors.New("snapstore: failed to apply migrations")
)
