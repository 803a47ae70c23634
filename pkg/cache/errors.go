package cache

import "errors"

// Sentinel errors for cache construction and configuration.
var (
	// ErrInvalidConfig is returned when a cache configuration is rejected.
	ErrInvalidConfig = errors.New("cache: invalid configuration")

	// ErrConfigParse is returned when a configuration document cannot be decoded.
	ErrConfigParse = errors.New("cache: failed to parse configuration")
)
