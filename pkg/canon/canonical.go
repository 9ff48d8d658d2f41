// Package canon provides the single canonicalization and signing root used
// by every other package in this module: fingerprinting, transcript
// hashing, and envelope signing all flow through the functions here.
// Separate implementations for sign-input vs hash-input are a bug source,
// so this is intentionally the only place that turns a Go value into
// canonical bytes.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// JCS returns the RFC 8785 canonical JSON representation of v: object keys
// sorted lexicographically by UTF-8 bytes, numbers in a single normalized
// form, no insignificant whitespace, HTML escaping disabled.
func JCS(v any) ([]byte, error) {
	intermediate, err := marshalNoEscape(v)
	if err != nil {
		return nil, fmt.Errorf("canon: pre-marshal failed: %w", err)
	}

	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canon: jcs transform failed: %w", err)
	}
	return canonical, nil
}

// marshalNoEscape marshals v with HTML escaping disabled, matching the
// byte stream jcs.Transform expects (it re-parses and re-serializes, but a
// pre-escaped '<' would round-trip as '<' instead of '<').
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CanonicalHash returns the lowercase hex SHA-256 digest of the JCS
// canonical form of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NormalizeScope applies Unicode NFC normalization, so composed and
// decomposed spellings of a scope/region string fold together: "NYĆ" (C followed by U+0301)
// and its precomposed form give the same fingerprint input. Case and
// surrounding whitespace are left unchanged: "NYC" and " nyc " stay
// distinct. This mirrors the teacher's CSNF pre-pass: normalize
// text before it ever reaches the canonical-JSON stage.
func NormalizeScope(s string) string {
	return norm.NFC.String(s)
}

// StableMapKeys returns the keys of m sorted lexicographically. Exported
// for callers that need deterministic iteration order outside of JCS
// (e.g. building evidence logs) without round-tripping through JSON.
func StableMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
