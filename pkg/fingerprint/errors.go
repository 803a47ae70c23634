package fingerprint

import "errors"

// Sentinel errors for fingerprint configuration and hashing.
var (
	// ErrInvalidLength is returned when the truncation length is not positive.
	ErrInvalidLength = errors.New("fingerprint: length must be greater than zero")

	// ErrUnknownAlgorithm is returned for an unsupported digest algorithm.
	ErrUnknownAlgorithm = errors.New("fingerprint: unknown digest algorithm")

	// ErrUnknownEncoding is returned for an unsupported text encoding.
	ErrUnknownEncoding = errors.New("fingerprint: unknown encoding")

	// ErrMarshal is returned when a value cannot be serialized for hashing.
	ErrMarshal = errors.New("fingerprint: failed to marshal value")
)
