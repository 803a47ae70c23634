// Package snapstore provides backing stores for cache snapshot documents.
//
// Every store exposes the same three calls:
//
//	Exists(ctx, name) (bool, error)
//	ReadFile(ctx, name) ([]byte, error)
//	WriteFile(ctx, name, data) error
//
// ReadFile on a missing document returns an error matching fs.ErrNotExist.
//
// Available stores:
//
//   - File: local directory with advisory locks and atomic rename
//   - Billy: any go-billy filesystem, including memfs for tests
//   - Redis: one string key per document
//   - S3: one object per document on S3 or a compatible service
//   - Postgres: one row per document in cache_snapshots (see Migrate)
//
// DialRedis and ConnectPostgres open clients with retry for the networked
// stores.
package snapstore
