package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/memocache/pkg/fingerprint"
)

// Config is the immutable configuration of a cache instance.
type Config struct {
	// Fingerprint configures key derivation and snapshot change detection.
	Fingerprint fingerprint.Config `yaml:"fingerprint"`

	// DefaultTTL applies to Set calls without a TTL override.
	// Zero means entries never expire by default.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxEntries bounds the number of entries. Zero means unbounded.
	MaxEntries int `yaml:"max_entries"`
}

// DefaultConfig returns the default configuration: default fingerprints,
// no default expiry and no capacity bound.
func DefaultConfig() Config {
	return Config{
		Fingerprint: fingerprint.DefaultConfig(),
	}
}

// Validate checks the configuration. Fingerprint errors are joined with
// ErrInvalidConfig so both can be matched with errors.Is.
func (c Config) Validate() error {
	if err := c.Fingerprint.Validate(); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("%w: negative default TTL %s", ErrInvalidConfig, c.DefaultTTL)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("%w: negative max entries %d", ErrInvalidConfig, c.MaxEntries)
	}
	return nil
}

// LoadConfig decodes a YAML document on top of DefaultConfig and validates
// the result. Durations use Go syntax ("90s", "12h").
//
// Example:
//
//	fingerprint:
//	  algorithm: sha1
//	  encoding: base64url
//	  length: 12
//	default_ttl: 10m
//	max_entries: 5000
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Join(ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads the YAML configuration at path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open cache config: %w", err)
	}
	defer f.Close()

	return LoadConfig(f)
}
