package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
)

// Hasher derives fingerprints with a fixed configuration.
// A Hasher holds no mutable state and is safe for concurrent use.
type Hasher struct {
	cfg Config
}

// New creates a Hasher after validating cfg.
func New(cfg Config) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// Must is like New but panics on an invalid configuration.
func Must(cfg Config) *Hasher {
	h, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return h
}

// Config returns the hasher configuration.
func (h *Hasher) Config() Config {
	return h.cfg
}

// Bytes returns the fingerprint of b.
func (h *Hasher) Bytes(b []byte, opts ...Option) string {
	cfg := h.resolve(opts)
	d := cfg.newHash()
	d.Write(b)
	return cfg.encode(d.Sum(nil))
}

// Stream consumes r to EOF and returns the fingerprint of everything read.
// The result equals Bytes over the concatenated input. Read errors and
// context cancellation are returned as is.
func (h *Hasher) Stream(ctx context.Context, r io.Reader, opts ...Option) (string, error) {
	cfg := h.resolve(opts)
	d := cfg.newHash()
	if _, err := io.Copy(d, &ctxReader{ctx: ctx, r: r}); err != nil {
		return "", err
	}
	return cfg.encode(d.Sum(nil)), nil
}

// Chunks consumes a sequence of byte chunks in order and returns the
// fingerprint of their concatenation. The first chunk error stops
// consumption and is returned.
func (h *Hasher) Chunks(ctx context.Context, seq iter.Seq2[[]byte, error], opts ...Option) (string, error) {
	cfg := h.resolve(opts)
	d := cfg.newHash()
	for chunk, err := range seq {
		if err != nil {
			return "", err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		d.Write(chunk)
	}
	return cfg.encode(d.Sum(nil)), nil
}

// Value serializes v to canonical JSON and returns its fingerprint.
// Struct fields keep declaration order and map keys are sorted, so equal
// values always produce equal fingerprints.
func (h *Hasher) Value(v any, opts ...Option) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Join(ErrMarshal, err)
	}
	return h.Bytes(data, opts...), nil
}

func (h *Hasher) resolve(opts []Option) Config {
	cfg := h.cfg
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var defaultHasher = Must(DefaultConfig())

// Bytes returns the fingerprint of b using DefaultConfig.
func Bytes(b []byte, opts ...Option) string {
	return defaultHasher.Bytes(b, opts...)
}

// Stream returns the fingerprint of r using DefaultConfig.
func Stream(ctx context.Context, r io.Reader, opts ...Option) (string, error) {
	return defaultHasher.Stream(ctx, r, opts...)
}

// Value returns the fingerprint of v using DefaultConfig.
func Value(v any, opts ...Option) (string, error) {
	return defaultHasher.Value(v, opts...)
}
