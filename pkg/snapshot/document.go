package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/dmitrymomot/memocache/pkg/cache"
)

// decodeDocument parses a flat JSON object of string values, keeping key
// order. Entries with non-string values are dropped and their keys
// returned. A repeated key keeps its first position and its last value.
func decodeDocument(data []byte) (entries []cache.Entry[string, string], skipped []string, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, errors.Join(ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}

	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, errors.Join(ErrMalformed, err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, errors.Join(ErrMalformed, err)
		}

		// Unmarshal accepts null for a string, so check the kind first.
		var value string
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &value) != nil {
			skipped = append(skipped, key)
			continue
		}

		if i, ok := index[key]; ok {
			entries[i].Value = value
			continue
		}
		index[key] = len(entries)
		entries = append(entries, cache.Entry[string, string]{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, errors.Join(ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: trailing data", ErrMalformed)
	}

	return entries, skipped, nil
}

// encodeDocument writes entries as a flat JSON object in the given order.
// Entries whose key or value is not valid UTF-8 would not survive a round
// trip, so they are left out and their keys returned.
func encodeDocument(entries []cache.Entry[string, string]) (doc []byte, skipped []string, err error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, e := range entries {
		if !utf8.ValidString(e.Key) || !utf8.ValidString(e.Value) {
			skipped = append(skipped, e.Key)
			continue
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, nil, err
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		n++
	}
	buf.WriteByte('}')
	return buf.Bytes(), skipped, nil
}
