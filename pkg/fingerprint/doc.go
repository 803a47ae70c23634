// Package fingerprint derives short, deterministic identifiers from bytes,
// byte streams and structured values.
//
// Fingerprints are used in two places: as cache keys derived from the
// parameters of an expensive computation, and as change-detection tokens for
// whole cache snapshots.
//
// A [Hasher] is built from a [Config] naming the digest algorithm, the text
// encoding and the number of characters kept:
//
//	h, err := fingerprint.New(fingerprint.Config{
//	    Algorithm: fingerprint.SHA256,
//	    Encoding:  fingerprint.Base64URL,
//	    Length:    22,
//	})
//
//	key, err := h.Value(struct {
//	    URL    string
//	    Width  int
//	    Format string
//	}{"https://example.com/a.png", 320, "webp"})
//
//	sum, err := h.Stream(ctx, file)
//
// Any call can override the configuration with [WithAlgorithm],
// [WithEncoding] or [WithLength]. The length is validated when the Hasher is
// constructed; [New] returns [ErrInvalidLength] for a non-positive length.
//
// Structured values are serialized with encoding/json, which keeps struct
// fields in declaration order and sorts map keys.
package fingerprint
