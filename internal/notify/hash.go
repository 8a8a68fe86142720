// Package notify implements the admission decision engine and the
// multi-channel dispatcher for field notifications.
package notify

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint returns the deterministic identity hash of a notification:
// the same real-world event about the same entity for the same
// recipient, independent of caller, content and timing. Empty fields
// hash as their normalized empty representation.
func Fingerprint(eventType, entityID, recipientID string) string {
	h, _ := blake2b.New256(nil)
	writeField(h, eventType)
	writeField(h, entityID)
	writeField(h, recipientID)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the deterministic digest of the displayed content,
// independent of identity, source and metadata. Structured data is
// serialized with stable key ordering so equivalent payloads hash
// identically regardless of how they were built.
func ContentHash(title, body string, structuredData map[string]any) string {
	h, _ := blake2b.New256(nil)
	writeField(h, title)
	writeField(h, body)
	writeField(h, canonicalJSON(structuredData))
	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes a normalized, length-prefixed field so adjacent
// fields can never blur into each other.
func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	v := normalize(s)
	fmt.Fprintf(h, "%d:", len(v))
	_, _ = h.Write([]byte(v))
}

// normalize trims whitespace and applies Unicode NFC so visually
// identical strings with different codepoint sequences compare equal.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// canonicalJSON renders the map with sorted keys and normalized string
// values. Nested maps and slices are canonicalized recursively; a nil
// or empty map renders as the empty string.
func canonicalJSON(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	encodeCanonical(&b, data)
	return b.String()
}

func encodeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeScalar(b, normalize(k))
			b.WriteByte(':')
			encodeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeCanonical(b, item)
		}
		b.WriteByte(']')
	case string:
		encodeScalar(b, normalize(val))
	default:
		encodeScalar(b, val)
	}
}

func encodeScalar(b *strings.Builder, v any) {
	// json.Marshal on scalars cannot fail.
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(fmt.Sprintf("%q", fmt.Sprint(v)))
	}
	b.Write(raw)
}
