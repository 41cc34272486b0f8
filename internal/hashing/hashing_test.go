package hashing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_SortsKeysRecursively(t *testing.T) {
	payload := map[string]any{
		"b": 1,
		"a": map[string]any{
			"z": 1,
			"y": 2,
		},
	}
	out, err := Canonicalize(payload)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":2,"z":1},"b":1}`, out)
}

func TestCanonicalize_Deterministic(t *testing.T) {
	payload := map[string]any{"x": 1, "y": []any{"c", "b", "a"}}
	first, err := Canonicalize(payload)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Canonicalize(payload)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCanonicalHash_MatchesManualSHA256(t *testing.T) {
	payload := map[string]any{"rule": "PROGRESS_WITHOUT_APPROVAL"}
	canonical, err := Canonicalize(payload)
	require.NoError(t, err)
	expected := SHA256(canonical)

	got, err := CanonicalHash(payload)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
	assert.Len(t, got, 64)
}

func TestFormatTimestamp_FixedMicrosecondPrecisionUTC(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 123456000, loc)
	assert.Equal(t, "2026-01-02T08:04:05.123456Z", FormatTimestamp(ts))
}

func TestChainHash_OrderSensitive(t *testing.T) {
	a := ChainHash("prev", "one", "two")
	b := ChainHash("prev", "two", "one")
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestChainHash_EmptyPrevIsStable(t *testing.T) {
	a := ChainHash("", "x")
	b := ChainHash("", "x")
	assert.Equal(t, a, b)
}
