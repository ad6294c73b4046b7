package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Hash computes the SHA-256 fingerprint of a result set.
//
// The digest is computed over a canonical form that is independent of row
// order: each row is zipped into a column-name keyed object, values are
// normalized, each object is serialized with alphabetically sorted keys, and
// the serialized rows are sorted lexicographically before hashing. Two result
// sets fingerprint identically iff they are the same multiset of labeled rows.
//
// The fingerprint is sensitive to column names: a column renamed via an alias
// changes the canonical form even when the underlying values match. That is a
// deliberate trade-off, not a bug.
func Hash(columns []string, rows [][]any) string {
	sum := sha256.Sum256(canonicalize(columns, rows))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether a result set fingerprints to the expected digest.
func Matches(columns []string, rows [][]any, expected string) bool {
	return Hash(columns, rows) == expected
}

// canonicalize serializes the result set into its canonical byte form.
func canonicalize(columns []string, rows [][]any) []byte {
	encoded := make([][]byte, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(row) {
				obj[col] = normalizeValue(row[i])
			}
		}
		// json.Marshal writes map keys in sorted order; normalized values
		// are nil, numbers, or strings, so marshaling cannot fail.
		b, err := json.Marshal(obj)
		if err != nil {
			b = []byte(fmt.Sprintf("%q", fmt.Sprint(obj)))
		}
		encoded = append(encoded, b)
	}

	sort.Slice(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	})

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range encoded {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// normalizeValue maps a raw driver value to its canonical representation:
// NULL stays nil, numbers stay numeric, binary payloads decode as UTF-8 text,
// and everything else is stringified with surrounding whitespace trimmed.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case []byte:
		return string(val)
	case string:
		return strings.TrimSpace(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
