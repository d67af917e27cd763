package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"int64", int64(-100), "-100"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array", []any{int64(1), "two", true, nil}, `[1,"two",true,null]`},
		{"record", Record{"b": int64(1), "a": "x"}, `{"a":"x","b":1}`},
		{"records", []Record{{"id": int64(1)}, {"id": int64(2)}}, `[{"id":1},{"id":2}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalFloats(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "0"},
		{1, "1"},
		{1.5, "1.5"},
		{-0.25, "-0.25"},
		{100, "100"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{0.000001, "0.000001"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := map[string]any{
		"z": map[string]any{"b": 1, "a": 2},
		"a": 3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: UTF-16 order differs from UTF-8
	obj := map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{"html": "<script>a & b</script>"})
	require.NoError(t, err)

	assert.Equal(t, `{"html":"<script>a & b</script>"}`, string(result))
	assert.NotContains(t, string(result), "\\u003c")
	assert.NotContains(t, string(result), "\\u0026")
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "caf\u00E9"
	decomposed := "cafe\u0301"

	r1, err := MarshalCanonical(map[string]any{composed: composed})
	require.NoError(t, err)
	r2, err := MarshalCanonical(map[string]any{decomposed: decomposed})
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
}

func TestMarshalCanonicalU2028U2029(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"line separator", "hello\u2028world", "\"hello\u2028world\""},
		{"paragraph separator", "hello\u2029world", "\"hello\u2029world\""},
		{"literal backslash text", `escape is \u2028`, `"escape is \\u2028"`},
		{"mixed", "literal \\u2028 and actual \u2028", "\"literal \\\\u2028 and actual \u2028\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalStructFallback(t *testing.T) {
	type window struct {
		Skip int  `json:"skip"`
		Take *int `json:"take,omitempty"`
	}
	take := 2

	result, err := MarshalCanonical(window{Skip: 1, Take: &take})
	require.NoError(t, err)
	assert.Equal(t, `{"skip":1,"take":2}`, string(result))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	zero := 0.0
	_, err := MarshalCanonical(1 / zero)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-finite")
}

func TestEventIDDeterminism(t *testing.T) {
	id1, err := EventID("todo", "created", Record{"id": int64(1), "title": "a"})
	require.NoError(t, err)
	id2, err := EventID("todo", "created", Record{"title": "a", "id": int64(1)})
	require.NoError(t, err)
	id3, err := EventID("todo", "patched", Record{"title": "a", "id": int64(1)})
	require.NoError(t, err)

	assert.Len(t, id1, 64)
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	assert.NotEqual(t, hashWithDomain("foo", []byte("bar")), hashWithDomain("foob", []byte("ar")))
}
