package opreturn

import (
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
)

// DefaultMaxPayload is the default cap on the bytes pushed into one script.
const DefaultMaxPayload = 100_000

// Static error variables for err113 compliance
var (
	errNoPayload    = errors.New("at least one non-empty payload is required")
	errEmptyPayload = errors.New("payload must not be empty")
)

// ErrPayloadTooLarge is returned when the pushed bytes exceed the builder's cap.
var ErrPayloadTooLarge = errors.New("payload exceeds configured maximum")

// Builder assembles OP_FALSE OP_RETURN scripts under a payload size cap.
type Builder struct {
	maxPayload int
}

// NewBuilder returns a builder rejecting payloads larger than maxPayload
// bytes in total. A non-positive value selects DefaultMaxPayload.
func NewBuilder(maxPayload int) *Builder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Builder{maxPayload: maxPayload}
}

// MaxPayload returns the configured cap.
func (b *Builder) MaxPayload() int {
	return b.maxPayload
}

// Script returns OP_FALSE OP_RETURN <push(blob)>.
func (b *Builder) Script(blob []byte) (*script.Script, error) {
	return b.ScriptMulti(blob)
}

// ScriptMulti returns OP_FALSE OP_RETURN followed by one push per blob.
func (b *Builder) ScriptMulti(blobs ...[]byte) (*script.Script, error) {
	if len(blobs) == 0 {
		return nil, errNoPayload
	}
	total := 0
	for i, blob := range blobs {
		if len(blob) == 0 {
			return nil, fmt.Errorf("%w: blob %d", errEmptyPayload, i)
		}
		total += len(blob)
	}
	if total > b.maxPayload {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, total, b.maxPayload)
	}

	s := &script.Script{}
	if err := s.AppendOpcodes(script.OpFALSE, script.OpRETURN); err != nil {
		return nil, fmt.Errorf("failed to append OP_FALSE OP_RETURN: %w", err)
	}
	for i, blob := range blobs {
		if err := s.AppendPushData(blob); err != nil {
			return nil, fmt.Errorf("failed to append blob %d: %w", i, err)
		}
	}
	return s, nil
}

// BuildOpReturnScript returns the hex of OP_FALSE OP_RETURN <push(blob)>
// using DefaultMaxPayload.
func BuildOpReturnScript(blob []byte) (string, error) {
	s, err := NewBuilder(DefaultMaxPayload).Script(blob)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

// BuildOpReturnScriptMulti returns the hex of OP_FALSE OP_RETURN with one
// push per blob using DefaultMaxPayload.
func BuildOpReturnScriptMulti(blobs [][]byte) (string, error) {
	s, err := NewBuilder(DefaultMaxPayload).ScriptMulti(blobs...)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}
