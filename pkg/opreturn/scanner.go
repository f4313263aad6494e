package opreturn

import (
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/dlm1"
	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/utils"
)

const (
	opFalse  = 0x00
	opReturn = 0x6a
)

// Sizes of the fixed-width fields in the legacy transaction format.
const (
	versionSize   = 4
	prevTxidSize  = 32
	prevIndexSize = 4
	sequenceSize  = 4
	lockTimeSize  = 4
)

// Output is an OP_RETURN output found in a transaction.
type Output struct {
	Vout        uint32    `json:"vout"`
	Satoshis    uint64    `json:"satoshis"`
	ScriptHex   string    `json:"scriptHex"`
	HasOpFalse  bool      `json:"hasOpFalse"`
	PushesHex   []string  `json:"pushesHex"`
	PushesASCII []*string `json:"pushesAscii"`
	// TagASCII is set when the pushes start with a known record tag, either
	// as a push of its own or as the prefix of the first push.
	TagASCII string `json:"tagAscii,omitempty"`

	// Pushes holds the raw pushed segments in script order.
	Pushes [][]byte `json:"-"`
}

// Tag returns the resolved record tag, or dlm1.TagUnknown.
func (o *Output) Tag() dlm1.Tag {
	if o.TagASCII == "" {
		return dlm1.TagUnknown
	}
	return dlm1.Tag(o.TagASCII)
}

// TaggedPayload returns the payload that follows tag in this output's pushes.
func (o *Output) TaggedPayload(tag dlm1.Tag) ([]byte, bool) {
	return dlm1.SplitTag(tag, o.Pushes)
}

// Detection is the result of DetectDlm1OrTrn1. Vout is nil when the
// transaction has no OP_RETURN output.
type Detection struct {
	Tag  dlm1.Tag `json:"tag,omitempty"`
	Vout *uint32  `json:"vout"`
}

// ParseScript recognises [OP_FALSE] OP_RETURN followed by pushes. It returns
// ok=false when the script is not an OP_RETURN script. Pushes are collected
// up to the first non-push opcode or the first push whose length runs past
// the end of the script.
func ParseScript(s []byte) (hasOpFalse bool, pushes [][]byte, ok bool) {
	c := newCursor(s)
	op, err := c.readU8()
	if err != nil {
		return false, nil, false
	}
	if op == opFalse {
		hasOpFalse = true
		if op, err = c.readU8(); err != nil {
			return false, nil, false
		}
	}
	if op != opReturn {
		return false, nil, false
	}

	pushes = [][]byte{}
	for c.remaining() > 0 {
		data, ok := readPush(c)
		if !ok {
			break
		}
		pushes = append(pushes, data)
	}
	return hasOpFalse, pushes, true
}

func readPush(c *cursor) ([]byte, bool) {
	op, err := c.readU8()
	if err != nil {
		return nil, false
	}

	var n uint64
	switch {
	case op >= 0x01 && op <= maxDirectPush:
		n = uint64(op)
	case op == opPushData1:
		v, err := c.readU8()
		if err != nil {
			return nil, false
		}
		n = uint64(v)
	case op == opPushData2:
		v, err := c.readU16LE()
		if err != nil {
			return nil, false
		}
		n = uint64(v)
	case op == opPushData4:
		v, err := c.readU32LE()
		if err != nil {
			return nil, false
		}
		n = uint64(v)
	default:
		return nil, false
	}

	data, err := c.readExact(n)
	if err != nil {
		return nil, false
	}
	return data, true
}

// ScanTransaction parses a legacy (non-segwit) serialized transaction and
// returns its OP_RETURN outputs in output order. Bytes that do not form
// exactly one complete transaction, including the extended format whose
// marker reads as empty input and output lists, yield an error wrapping
// ErrScriptParse.
func ScanTransaction(raw []byte) ([]Output, error) {
	c := newCursor(raw)

	if err := c.skip(versionSize); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}

	vin, err := c.readVarInt()
	if err != nil {
		return nil, fmt.Errorf("input count: %w", err)
	}
	for i := uint64(0); i < vin; i++ {
		if err := c.skip(prevTxidSize + prevIndexSize); err != nil {
			return nil, fmt.Errorf("input %d outpoint: %w", i, err)
		}
		scriptLen, err := c.readVarInt()
		if err != nil {
			return nil, fmt.Errorf("input %d script length: %w", i, err)
		}
		if err := c.skip(scriptLen); err != nil {
			return nil, fmt.Errorf("input %d script: %w", i, err)
		}
		if err := c.skip(sequenceSize); err != nil {
			return nil, fmt.Errorf("input %d sequence: %w", i, err)
		}
	}

	vout, err := c.readVarInt()
	if err != nil {
		return nil, fmt.Errorf("output count: %w", err)
	}
	// Each output needs at least 9 bytes, which bounds a hostile count.
	if vout > uint64(c.remaining()/(satoshiFieldSize+1)) {
		return nil, fmt.Errorf("output count %d: %w", vout, errTruncated)
	}

	var outputs []Output
	for i := uint64(0); i < vout; i++ {
		satoshis, err := c.readU64LE()
		if err != nil {
			return nil, fmt.Errorf("output %d value: %w", i, err)
		}
		scriptLen, err := c.readVarInt()
		if err != nil {
			return nil, fmt.Errorf("output %d script length: %w", i, err)
		}
		lockingScript, err := c.readExact(scriptLen)
		if err != nil {
			return nil, fmt.Errorf("output %d script: %w", i, err)
		}

		hasOpFalse, pushes, ok := ParseScript(lockingScript)
		if !ok {
			continue
		}
		outputs = append(outputs, newOutput(uint32(i), satoshis, lockingScript, hasOpFalse, pushes))
	}

	if err := c.skip(lockTimeSize); err != nil {
		return nil, fmt.Errorf("lock time: %w", err)
	}
	if n := c.remaining(); n > 0 {
		return nil, fmt.Errorf("%d bytes after lock time: %w", n, errTrailing)
	}
	return outputs, nil
}

func newOutput(vout uint32, satoshis uint64, lockingScript []byte, hasOpFalse bool, pushes [][]byte) Output {
	out := Output{
		Vout:        vout,
		Satoshis:    satoshis,
		ScriptHex:   hex.EncodeToString(lockingScript),
		HasOpFalse:  hasOpFalse,
		PushesHex:   make([]string, len(pushes)),
		PushesASCII: make([]*string, len(pushes)),
		Pushes:      make([][]byte, len(pushes)),
	}
	for i, p := range pushes {
		out.Pushes[i] = append([]byte(nil), p...)
		out.PushesHex[i] = hex.EncodeToString(p)
		out.PushesASCII[i] = utils.ASCIIOrNil(p)
	}
	if tag, ok := dlm1.ResolveTag(pushes); ok {
		out.TagASCII = string(tag)
	}
	return out
}

// FindOpReturnOutputs decodes rawTxHex and returns its OP_RETURN outputs.
// Malformed hex or transaction bytes yield no outputs rather than an error.
func FindOpReturnOutputs(rawTxHex string) []Output {
	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return nil
	}
	outputs, err := ScanTransaction(raw)
	if err != nil {
		return nil
	}
	return outputs
}

// FindFirstOpReturn returns the first OP_RETURN output of rawTxHex.
func FindFirstOpReturn(rawTxHex string) (*Output, bool) {
	outputs := FindOpReturnOutputs(rawTxHex)
	if len(outputs) == 0 {
		return nil, false
	}
	return &outputs[0], true
}

// DetectDlm1OrTrn1 reports the tag of the first OP_RETURN output when it is
// DLM1 or TRN1, together with that output's index.
func DetectDlm1OrTrn1(rawTxHex string) Detection {
	out, ok := FindFirstOpReturn(rawTxHex)
	if !ok {
		return Detection{}
	}
	vout := out.Vout
	det := Detection{Vout: &vout}
	switch tag := out.Tag(); tag {
	case dlm1.TagDLM1, dlm1.TagTRN1:
		det.Tag = tag
	}
	return det
}

// ExtractTaggedPayload returns the payload following tag in out, accepting
// both the two-push layout (tag, payload) and the single push tag||payload.
func ExtractTaggedPayload(out *Output, tag dlm1.Tag) ([]byte, bool) {
	return out.TaggedPayload(tag)
}
