// Package opreturn builds and scans provably unspendable data outputs of the
// form OP_FALSE OP_RETURN <push...>, and sizes them for fee estimation using
// the legacy transaction serialization.
package opreturn

// Push opcodes and their length limits.
const (
	opPushData1 = 0x4c
	opPushData2 = 0x4d
	opPushData4 = 0x4e

	maxDirectPush = 75
	maxPushData1  = 0xff
	maxPushData2  = 0xffff
)

// satoshiFieldSize is the width of an output's value field.
const satoshiFieldSize = 8

// opReturnPrefixLen covers OP_FALSE and OP_RETURN.
const opReturnPrefixLen = 2

// VarIntSize returns the serialized size of n as a CompactSize varint.
func VarIntSize(n uint64) int {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// PushdataHeaderLen returns the number of bytes that precede a push of
// dataLen bytes: the length byte of a direct push for up to 75 bytes, or a
// PUSHDATA1/2/4 opcode followed by a 1, 2 or 4 byte length.
func PushdataHeaderLen(dataLen int) int {
	switch {
	case dataLen <= maxDirectPush:
		return 1
	case dataLen <= maxPushData1:
		return 2
	case dataLen <= maxPushData2:
		return 3
	default:
		return 5
	}
}

// OpReturnScriptLen is the exact length of OP_FALSE OP_RETURN <push(dataLen)>.
func OpReturnScriptLen(dataLen int) int {
	return opReturnPrefixLen + PushdataHeaderLen(dataLen) + dataLen
}

// OpReturnOutputSize is the exact serialized size of a transaction output
// carrying a single-push OP_RETURN script: the 8-byte value, the script
// length varint and the script.
func OpReturnOutputSize(dataLen int) int {
	scriptLen := OpReturnScriptLen(dataLen)
	return satoshiFieldSize + VarIntSize(uint64(scriptLen)) + scriptLen
}

// OpReturnMultiScriptLen is the exact length of OP_FALSE OP_RETURN followed
// by one push per blob length.
func OpReturnMultiScriptLen(dataLens ...int) int {
	n := opReturnPrefixLen
	for _, l := range dataLens {
		n += PushdataHeaderLen(l) + l
	}
	return n
}

// OpReturnMultiOutputSize is OpReturnOutputSize for a multi-push script.
func OpReturnMultiOutputSize(dataLens ...int) int {
	scriptLen := OpReturnMultiScriptLen(dataLens...)
	return satoshiFieldSize + VarIntSize(uint64(scriptLen)) + scriptLen
}
