package snapstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Billy stores documents on a go-billy filesystem (osfs, memfs, chroot, ...).
type Billy struct {
	fs billy.Filesystem
}

// NewBilly wraps fs.
func NewBilly(fs billy.Filesystem) *Billy {
	return &Billy{fs: fs}
}

// Exists reports whether the document exists.
func (b *Billy) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := b.fs.Stat(name)
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
func (b *Billy) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := util.ReadFile(b.fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, errors.Join(ErrReadFailed, err)
	}
	return data, nil
}

// WriteFile creates or truncates the document and writes data.
func (b *Billy) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if dir := path.Dir(name); dir != "." && dir != "/" {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Join(ErrWriteFailed, err)
		}
	}
	if err := util.WriteFile(b.fs, name, data, 0o644); err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	return nil
}
