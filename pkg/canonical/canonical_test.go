package canonical

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	v, err := Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestMarshalSortsKeysAtEveryLevel(t *testing.T) {
	a := mustParse(t, `{"b":1,"a":{"z":true,"y":[3,2,1]},"c":null}`)
	b := mustParse(t, `{ "c": null, "a": { "y": [3, 2, 1], "z": true }, "b": 1 }`)

	outA, err := Marshal(a)
	require.NoError(t, err)
	outB, err := Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, `{"a":{"y":[3,2,1],"z":true},"b":1,"c":null}`, string(outA))
	assert.Equal(t, outA, outB)
	assert.True(t, a.Equal(b))
}

func TestMarshalPreservesArrayOrder(t *testing.T) {
	a := mustParse(t, `[1,2]`)
	b := mustParse(t, `[2,1]`)
	assert.NotEqual(t, a.String(), b.String())
	assert.False(t, a.Equal(b))
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-1, "-1"},
		{1.5, "1.5"},
		{123.456, "123.456"},
		{0.1, "0.1"},
		{100, "100"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{1.5e21, "1.5e+21"},
		{1e-6, "0.000001"},
		{1e-7, "1e-7"},
		{1.25e-7, "1.25e-7"},
		{9007199254740993, "9007199254740992"},
		{5e-324, "5e-324"},
		{math.MaxFloat64, "1.7976931348623157e+308"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := FormatNumber(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatNumberRejectsNonFinite(t *testing.T) {
	for _, n := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FormatNumber(n)
		require.ErrorIs(t, err, ErrCanonicalization)
	}

	_, err := Marshal(Array(Number(math.NaN())))
	require.ErrorIs(t, err, ErrCanonicalization)
}

func TestStringEscaping(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "abc", `"abc"`},
		{"quote and backslash", `a"b\c`, `"a\"b\\c"`},
		{"short escapes", "\b\f\n\r\t", `"\b\f\n\r\t"`},
		{"other control", "\x00\x1f", `"\u0000\u001f"`},
		{"html is literal", "<a&b>", `"<a&b>"`},
		{"line separators literal", "\u2028\u2029", "\"\u2028\u2029\""},
		{"non-ascii literal", "héllo €", `"héllo €"`},
		{"delete literal", "\x7f", "\"\x7f\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(String(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestKeysUseUTF16Order(t *testing.T) {
	// U+1F600 encodes to surrogates starting 0xD83D, which sort before U+FF01.
	v := Map(map[string]Value{
		"\uff01":     Number(1),
		"\U0001F600": Number(2),
		"a":          Number(3),
	})
	assert.Equal(t, []string{"a", "\U0001F600", "\uff01"}, v.Keys())
}

func TestIntegerLikeKeysSortAsStrings(t *testing.T) {
	v := mustParse(t, `{"a":1,"10":1,"9":1,"01":1}`)
	assert.Equal(t, `{"01":1,"10":1,"9":1,"a":1}`, v.String())
}

func TestWithoutIsTopLevelOnly(t *testing.T) {
	v := mustParse(t, `{"versionId":"x","signatures":{"a":1},"nested":{"versionId":"keep"}}`)
	out := v.Without("versionId", "signatures")

	assert.Equal(t, `{"nested":{"versionId":"keep"}}`, out.String())
	// original untouched
	_, ok := v.Get("versionId")
	assert.True(t, ok)
}

func TestParseRejects(t *testing.T) {
	inputs := []string{
		``,
		`{`,
		`{"a":1} {"b":2}`,
		`{"a":1}x`,
		`1e400`,
		`[1,]`,
	}
	for _, in := range inputs {
		_, err := Parse([]byte(in))
		require.ErrorIs(t, err, ErrCanonicalization, "input %q", in)
	}
}

func TestParseDuplicateKeysLastWins(t *testing.T) {
	v := mustParse(t, `{"a":1,"a":2}`)
	assert.Equal(t, `{"a":2}`, v.String())
}

func TestParseNumberPrecision(t *testing.T) {
	v := mustParse(t, `[1.0, 1e2, -0, 0.10, 1E-7]`)
	assert.Equal(t, `[1,100,0,0.1,1e-7]`, v.String())
}

type sampleContent struct {
	ContentHash string `json:"contentHash"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
}

func TestFromAny(t *testing.T) {
	in := map[string]any{
		"name":    "ds",
		"count":   3,
		"ratio":   0.5,
		"flags":   []string{"b", "a"},
		"content": sampleContent{ContentHash: "ab"},
		"ptr":     &sampleContent{ContentHash: "cd", SizeBytes: 7},
		"nil":     nil,
		"num":     json.Number("1e3"),
		"nested":  map[string]int{"y": 2, "x": 1},
	}

	v, err := FromAny(in)
	require.NoError(t, err)
	assert.Equal(t,
		`{"content":{"contentHash":"ab"},"count":3,"flags":["b","a"],"name":"ds","nested":{"x":1,"y":2},"nil":null,"num":1000,"ptr":{"contentHash":"cd","sizeBytes":7},"ratio":0.5}`,
		v.String())
}

func TestFromAnyRejectsCycles(t *testing.T) {
	m := map[string]any{}
	m["self"] = m
	_, err := FromAny(m)
	require.ErrorIs(t, err, ErrCanonicalization)

	s := make([]any, 1)
	s[0] = s
	_, err = FromAny(s)
	require.ErrorIs(t, err, ErrCanonicalization)
}

func TestFromAnySharedReferenceIsNotACycle(t *testing.T) {
	shared := map[string]any{"k": "v"}
	v, err := FromAny(map[string]any{"a": shared, "b": shared})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"k":"v"},"b":{"k":"v"}}`, v.String())
}

func TestFromAnyRejectsUnserializable(t *testing.T) {
	inputs := []any{
		func() {},
		make(chan int),
		complex(1, 2),
		map[int]string{1: "a"},
		[]any{math.Inf(1)},
		[]any{func() {}},
	}
	for _, in := range inputs {
		_, err := FromAny(in)
		require.ErrorIs(t, err, ErrCanonicalization, "input %T", in)
	}
}

func TestValueMarshalJSONEmbeds(t *testing.T) {
	v := mustParse(t, `{"b":2,"a":1}`)
	out, err := json.Marshal(map[string]any{"manifest": v})
	require.NoError(t, err)
	assert.JSONEq(t, `{"manifest":{"a":1,"b":2}}`, string(out))
}

func TestAccessors(t *testing.T) {
	v := mustParse(t, `{"s":"x","n":2,"b":true,"a":[1,2],"z":null}`)

	s, ok := v.Get("s")
	require.True(t, ok)
	str, ok := s.AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", str)

	n, _ := v.Get("n")
	f, ok := n.AsNumber()
	assert.True(t, ok)
	assert.InDelta(t, 2.0, f, 0)

	b, _ := v.Get("b")
	bv, ok := b.AsBool()
	assert.True(t, ok)
	assert.True(t, bv)

	a, _ := v.Get("a")
	assert.Equal(t, KindArray, a.Kind())
	assert.Len(t, a.Items(), 2)
	assert.Equal(t, 2, a.Len())

	z, _ := v.Get("z")
	assert.True(t, z.IsNull())

	_, ok = v.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, "map", v.Kind().String())
}
