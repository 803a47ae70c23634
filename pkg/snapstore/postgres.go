package snapstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores documents as rows of the cache_snapshots table.
// Run Migrate once before use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Exists reports whether a row with the given name exists.
func (p *Postgres) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cache_snapshots WHERE name = $1)`, name,
	).Scan(&ok)
	if err != nil {
		return false, errors.Join(ErrReadFailed, err)
	}
	return ok, nil
}

// ReadFile returns the stored document.
func (p *Postgres) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM cache_snapshots WHERE name = $1`, name,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, errors.Join(ErrReadFailed, err)
	}
	return data, nil
}

// WriteFile upserts the document.
func (p *Postgres) WriteFile(ctx context.Context, name string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO cache_snapshots (name, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		name, data,
	)
	if err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	return nil
}

// PostgresConfig holds connection settings for ConnectPostgres.
type PostgresConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	MaxConns         int32         `yaml:"max_conns"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
}

// ConnectPostgres opens a pool and pings it, retrying with linear backoff.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	var lastErr error
	for i := range max(cfg.RetryAttempts, 1) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		if err := sleep(ctx, time.Duration(i+1)*interval); err != nil {
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}

	return nil, errors.Join(ErrConnectionFailed, lastErr)
}
