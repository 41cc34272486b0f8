// Package hashing provides the canonical JSON serialization and SHA-256
// primitives every ledger and evidence hash in Procguard is built from.
// Determinism is a hard contract: identical inputs must produce identical
// hashes across processes and across time.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// TimestampLayout is the fixed-precision UTC ISO-8601 form every hashed
// timestamp is rendered as: microsecond precision, trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t as canonical UTC ISO-8601 with microsecond
// precision. Non-UTC input is converted, never rejected.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// SHA256 returns the lowercase hex SHA-256 digest of data.
func SHA256(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Canonicalize serializes payload as JSON with recursively sorted keys and
// no insignificant whitespace. Maps are sorted by key; slices keep their
// order (order is significant data, not representation noise). Time values
// must already be pre-formatted by the caller via FormatTimestamp — this
// function does not special-case time.Time so that canonicalization stays
// a pure function of already-normalized data.
func Canonicalize(payload any) (string, error) {
	normalized, err := normalize(payload)
	if err != nil {
		return "", fmt.Errorf("hashing: normalize payload: %w", err)
	}
	out, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("hashing: marshal canonical payload: %w", err)
	}
	return string(out), nil
}

// CanonicalHash returns sha256(Canonicalize(payload)).
func CanonicalHash(payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return SHA256(canonical), nil
}

// MustCanonicalHash panics on a non-serializable payload. Reserved for
// call sites constructing payloads from closed, known-good struct literals
// where a marshal failure would indicate a programming error, not bad
// input — mirrors the teacher's pattern of trusting internally-built
// payload maps rather than validating them a second time.
func MustCanonicalHash(payload any) string {
	hash, err := CanonicalHash(payload)
	if err != nil {
		panic(err)
	}
	return hash
}

// ChainHash computes sha256(prevHash + field1 + ... + fieldN), the plain
// string-concatenation chain formula used by the filter-audit chain and
// the evidence chain (as opposed to CanonicalHash, which is used only for
// whole-payload hashes like violation_hash and audit_hash).
func ChainHash(prevHash string, fields ...string) string {
	raw := prevHash
	for _, f := range fields {
		raw += f
	}
	return SHA256(raw)
}

// normalize converts payload into a structure of only map[string]any,
// []any, and JSON scalar types, with every map re-expressed as an
// *orderedMap so json.Marshal emits keys in sorted order.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return sortValue(generic), nil
}

func sortValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		om := newOrderedMap(len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			om.set(k, sortValue(val[k]))
		}
		return om
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortValue(e)
		}
		return out
	default:
		return val
	}
}

// orderedMap marshals as a JSON object preserving insertion order, which
// sortValue always populates in sorted-key order.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func newOrderedMap(capacity int) *orderedMap {
	return &orderedMap{keys: make([]string, 0, capacity), values: make(map[string]any, capacity)}
}

func (m *orderedMap) set(key string, value any) {
	m.keys = append(m.keys, key)
	m.values[key] = value
}

func (m *orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range m.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		valJSON, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
