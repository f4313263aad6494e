package opreturn

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrScriptParse is returned for transaction or script bytes that end early
// or carry impossible length fields.
var ErrScriptParse = errors.New("malformed transaction")

var (
	errTruncated = fmt.Errorf("%w: truncated", ErrScriptParse)
	errTrailing  = fmt.Errorf("%w: trailing data", ErrScriptParse)
)

// cursor reads a byte slice front to back and never reads past its end.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b}
}

func (c *cursor) remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *cursor) readExact(n uint64) ([]byte, error) {
	if n > uint64(c.remaining()) {
		return nil, errTruncated
	}
	start := c.pos
	c.pos += int(n)
	return c.b[start:c.pos], nil
}

func (c *cursor) skip(n uint64) error {
	_, err := c.readExact(n)
	return err
}

func (c *cursor) readU8() (byte, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readU16LE() (uint16, error) {
	b, err := c.readExact(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) readU32LE() (uint32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readU64LE() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// readVarInt reads a CompactSize value. Non-minimal encodings are accepted,
// as they are by the legacy format.
func (c *cursor) readVarInt() (uint64, error) {
	first, err := c.readU8()
	if err != nil {
		return 0, err
	}
	switch first {
	case 0xfd:
		v, err := c.readU16LE()
		return uint64(v), err
	case 0xfe:
		v, err := c.readU32LE()
		return uint64(v), err
	case 0xff:
		return c.readU64LE()
	default:
		return uint64(first), nil
	}
}
