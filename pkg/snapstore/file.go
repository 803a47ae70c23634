package snapstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const defaultLockRetry = 10 * time.Millisecond

// File stores documents as files under a root directory.
//
// Writes go to a uniquely named temp file that is renamed over the target,
// so readers never observe a partial document. Reads and writes hold an
// advisory lock on "<name>.lock" so processes sharing a directory do not
// interleave; the last writer still wins.
type File struct {
	dir       string
	lockRetry time.Duration
}

// NewFile creates the root directory if needed and returns a File store.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	return &File{dir: abs, lockRetry: defaultLockRetry}, nil
}

// Dir returns the absolute root directory.
func (f *File) Dir() string {
	return f.dir
}

// Exists reports whether the document exists.
func (f *File) Exists(ctx context.Context, name string) (bool, error) {
	p, err := f.path(name)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, errors.Join(ErrReadFailed, err)
	}
}

// ReadFile returns the whole document.
func (f *File) ReadFile(ctx context.Context, name string) ([]byte, error) {
	p, err := f.path(name)
	if err != nil {
		return nil, err
	}

	// The lock file lives next to the document, so a missing parent
	// directory would otherwise surface as a lock failure.
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}

	unlock, err := f.lock(ctx, p, true)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, errors.Join(ErrReadFailed, err)
	}
	return data, nil
}

// WriteFile atomically replaces the document, creating parent directories.
func (f *File) WriteFile(ctx context.Context, name string, data []byte) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Join(ErrWriteFailed, err)
	}

	unlock, err := f.lock(ctx, p, false)
	if err != nil {
		return err
	}
	defer unlock()

	tmp := p + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return errors.Join(ErrWriteFailed, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return errors.Join(ErrWriteFailed, err)
	}
	return nil
}

// path resolves name inside the root directory.
func (f *File) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || clean == "." || filepath.IsAbs(clean) ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(f.dir, clean), nil
}

// lock takes a shared or exclusive advisory lock on the document.
func (f *File) lock(ctx context.Context, p string, shared bool) (func(), error) {
	fl := flock.New(p + ".lock")

	var (
		ok  bool
		err error
	)
	if shared {
		ok, err = fl.TryRLockContext(ctx, f.lockRetry)
	} else {
		ok, err = fl.TryLockContext(ctx, f.lockRetry)
	}
	if err != nil || !ok {
		return nil, errors.Join(ErrLockTimeout, err)
	}

	return func() { _ = fl.Unlock() }, nil
}
