package fingerprint

import (
	"crypto/md5"  //nolint:gosec // fingerprints are identifiers, not signatures
	"crypto/sha1" //nolint:gosec // same as above
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
)

// Algorithm names a digest algorithm.
type Algorithm string

// Supported digest algorithms.
const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// Encoding names the text encoding applied to a digest.
type Encoding string

// Supported encodings.
const (
	Hex       Encoding = "hex"
	Base64    Encoding = "base64"
	Base64URL Encoding = "base64url"
)

// Config describes how fingerprints are produced.
type Config struct {
	Algorithm Algorithm `yaml:"algorithm"`
	Encoding  Encoding  `yaml:"encoding"`

	// Length is the number of characters kept from the encoded digest.
	// A length larger than the encoded digest keeps the whole digest.
	Length int `yaml:"length"`
}

// DefaultConfig returns the default fingerprint configuration:
// sha256, hex encoded, truncated to 16 characters.
func DefaultConfig() Config {
	return Config{
		Algorithm: SHA256,
		Encoding:  Hex,
		Length:    16,
	}
}

// Validate checks that the configuration can produce fingerprints.
func (c Config) Validate() error {
	if c.Length <= 0 {
		return ErrInvalidLength
	}
	if _, ok := algorithms[c.Algorithm]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, c.Algorithm)
	}
	if _, ok := encoders[c.Encoding]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEncoding, c.Encoding)
	}
	return nil
}

var algorithms = map[Algorithm]func() hash.Hash{
	MD5:    md5.New,
	SHA1:   sha1.New,
	SHA256: sha256.New,
	SHA384: sha512.New384,
	SHA512: sha512.New,
}

var encoders = map[Encoding]func([]byte) string{
	Hex:       hex.EncodeToString,
	Base64:    base64.StdEncoding.EncodeToString,
	Base64URL: base64.RawURLEncoding.EncodeToString,
}

// newHash returns a fresh digest for a validated config.
func (c Config) newHash() hash.Hash {
	return algorithms[c.Algorithm]()
}

// encode encodes and truncates a digest sum.
func (c Config) encode(sum []byte) string {
	s := encoders[c.Encoding](sum)
	if c.Length < len(s) {
		return s[:c.Length]
	}
	return s
}

// IsConfigError reports whether err is a fingerprint configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidLength) ||
		errors.Is(err, ErrUnknownAlgorithm) ||
		errors.Is(err, ErrUnknownEncoding)
}
