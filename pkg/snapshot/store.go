package snapshot

import "context"

// Store reads and writes whole snapshot documents.
// Implementations live in pkg/snapstore.
type Store interface {
	// Exists reports whether the document exists.
	Exists(ctx context.Context, name string) (bool, error)
	// ReadFile returns the whole document, or an error matching
	// fs.ErrNotExist when it is absent.
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// WriteFile creates or overwrites the document.
	WriteFile(ctx context.Context, name string, data []byte) error
}
