package dlm1

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrAnchorDecode is returned for bytes that are not a well-formed DLM1
// anchor: malformed CBOR, a hash that is not 32 bytes, or trailing data.
var ErrAnchorDecode = errors.New("failed to decode DLM1 anchor")

// Static error variables for err113 compliance
var (
	errNotByteString = errors.New("expected CBOR byte string")
	errHashLength    = errors.New("hash must be 32 bytes")
)

// Anchor is the record embedded on chain: the manifest hash and, when the
// manifest has lineage, its parent hashes in order.
type Anchor struct {
	ManifestHash Hash
	Parents      []Hash
}

// anchorWire is the CBOR map {"mh": bytes, "p"?: [bytes...]}. Field order
// fixes the key order in the encoding.
type anchorWire struct {
	MH cborBytes   `cbor:"mh"`
	P  []cborBytes `cbor:"p,omitempty"`
}

// cborBytes only accepts CBOR byte strings, never text.
type cborBytes []byte

// UnmarshalCBOR implements cbor.Unmarshaler.
func (b *cborBytes) UnmarshalCBOR(data []byte) error {
	const majorByteString = 2
	if len(data) == 0 || data[0]>>5 != majorByteString {
		return errNotByteString
	}
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = raw
	return nil
}

//nolint:gochecknoglobals // immutable codec modes built once
var (
	anchorEncMode cbor.EncMode
	anchorDecMode cbor.DecMode
)

func init() {
	var err error
	anchorEncMode, err = cbor.EncOptions{}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("dlm1: cbor encode mode: %v", err))
	}
	anchorDecMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("dlm1: cbor decode mode: %v", err))
	}
}

// EncodeAnchor returns the CBOR encoding of a. The "p" entry is present only
// when a has parents, so an anchor without lineage starts with 0xa1.
func EncodeAnchor(a Anchor) ([]byte, error) {
	wire := anchorWire{MH: cborBytes(a.ManifestHash[:])}
	for i := range a.Parents {
		wire.P = append(wire.P, cborBytes(a.Parents[i][:]))
	}
	out, err := anchorEncMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode DLM1 anchor: %w", err)
	}
	return out, nil
}

// DecodeAnchor parses CBOR produced by EncodeAnchor. Unknown map keys are
// ignored; duplicate keys, wrong hash lengths and trailing bytes are errors.
// An empty parent list decodes as nil.
func DecodeAnchor(data []byte) (Anchor, error) {
	var wire anchorWire
	if err := anchorDecMode.Unmarshal(data, &wire); err != nil {
		return Anchor{}, fmt.Errorf("%w: %w", ErrAnchorDecode, err)
	}
	if len(wire.MH) != HashSize {
		return Anchor{}, fmt.Errorf("%w: mh: %w (got %d)", ErrAnchorDecode, errHashLength, len(wire.MH))
	}

	var a Anchor
	copy(a.ManifestHash[:], wire.MH)
	for i, p := range wire.P {
		if len(p) != HashSize {
			return Anchor{}, fmt.Errorf("%w: p[%d]: %w (got %d)", ErrAnchorDecode, i, errHashLength, len(p))
		}
		var h Hash
		copy(h[:], p)
		a.Parents = append(a.Parents, h)
	}
	return a, nil
}

// ParentStrings returns the parent hashes as lowercase hex.
func (a Anchor) ParentStrings() []string {
	out := make([]string, len(a.Parents))
	for i, p := range a.Parents {
		out[i] = p.String()
	}
	return out
}
