// Package idgen computes the canonical-JSON content hash the evidence
// bundler uses for its assessment id (§4.4). The evidence cid itself is
// returned by the content-addressed store client, which does not use this
// package. No library
// in the retrieved corpus provides canonical-JSON content hashing — every
// example's content-addressed client (e.g. an IPFS wrapper) is handed
// pre-serialized bytes and defers hashing to the remote service itself, so
// this is built on the standard library: crypto/sha256 for the digest and
// encoding/json plus a manual key sort for canonical ordering. See
// DESIGN.md for the justification.
package idgen

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ContentID hashes v after rewriting it into canonical JSON (object keys
// sorted, no insignificant whitespace) and returns "sha256:<hex>". Two
// logically-equal documents produce the same id regardless of struct field
// order or map iteration order.
func ContentID(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("idgen: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Canonicalize marshals v to JSON and rewrites it with object keys sorted
// at every nesting level, so the byte representation is stable across
// struct field order, map iteration order, and json tag ordering.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
