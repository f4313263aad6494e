// Package dlm1 implements the DLM1 dataset-manifest anchor: identifier
// derivation over the canonical manifest, the compact CBOR anchor record
// carried on chain, and the 4-byte record tags that prefix it.
package dlm1

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-overlay-dataset-anchors/pkg/utils"
)

// HashSize is the byte length of a manifest or parent hash.
const HashSize = 32

var errInvalidHash = errors.New("hash must be 64 hex characters")

// Hash is a 32-byte sha256 digest identifying a manifest.
type Hash [HashSize]byte

// ParseHash decodes a 64-character hex string in either case.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if !utils.IsHash64Hex(s) {
		return h, fmt.Errorf("%w: %q", errInvalidHash, s)
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("%w: %w", errInvalidHash, err)
	}
	return h, nil
}

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
