package fingerprint

// Option overrides the hasher configuration for a single call.
// Invalid override values are ignored.
type Option func(*Config)

// WithAlgorithm overrides the digest algorithm.
func WithAlgorithm(a Algorithm) Option {
	return func(c *Config) {
		if _, ok := algorithms[a]; ok {
			c.Algorithm = a
		}
	}
}

// WithEncoding overrides the text encoding.
func WithEncoding(e Encoding) Option {
	return func(c *Config) {
		if _, ok := encoders[e]; ok {
			c.Encoding = e
		}
	}
}

// WithLength overrides the truncation length. Non-positive values are ignored.
func WithLength(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Length = n
		}
	}
}
