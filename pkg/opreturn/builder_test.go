package opreturn

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOpReturnScript(t *testing.T) {
	tests := []struct {
		name   string
		length int
		header string
	}{
		{"direct push", 4, "04"},
		{"largest direct push", 75, "4b"},
		{"pushdata1", 76, "4c4c"},
		{"pushdata1 max", 255, "4cff"},
		{"pushdata2", 256, "4d0001"},
		{"pushdata2 max", 65535, "4dffff"},
		{"pushdata4", 65536, "4e00000100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := bytes.Repeat([]byte{0xab}, tt.length)

			scriptHex, err := BuildOpReturnScript(blob)
			require.NoError(t, err)

			raw, err := hex.DecodeString(scriptHex)
			require.NoError(t, err)
			assert.Len(t, raw, OpReturnScriptLen(tt.length))
			assert.Equal(t, "006a"+tt.header, scriptHex[:4+len(tt.header)])
			assert.Equal(t, blob, raw[2+len(tt.header)/2:])
		})
	}
}

func TestBuildOpReturnScriptMulti(t *testing.T) {
	scriptHex, err := BuildOpReturnScriptMulti([][]byte{[]byte("DLM1"), {0xa1, 0x00}})
	require.NoError(t, err)
	assert.Equal(t, "006a04"+hex.EncodeToString([]byte("DLM1"))+"02a100", scriptHex)

	raw, _ := hex.DecodeString(scriptHex)
	assert.Len(t, raw, OpReturnMultiScriptLen(4, 2))
}

func TestBuilderRejects(t *testing.T) {
	b := NewBuilder(10)
	assert.Equal(t, 10, b.MaxPayload())

	_, err := b.Script(make([]byte, 11))
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = b.ScriptMulti(make([]byte, 6), make([]byte, 5))
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = b.Script(nil)
	require.ErrorIs(t, err, errEmptyPayload)

	_, err = b.ScriptMulti()
	require.ErrorIs(t, err, errNoPayload)

	_, err = BuildOpReturnScript(make([]byte, DefaultMaxPayload+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestNewBuilderDefaults(t *testing.T) {
	assert.Equal(t, DefaultMaxPayload, NewBuilder(0).MaxPayload())
	assert.Equal(t, DefaultMaxPayload, NewBuilder(-5).MaxPayload())
}
