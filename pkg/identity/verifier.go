// Package identity authenticates signed producer requests. A request carries
// a compressed secp256k1 identity key, a nonce and an ECDSA signature over
// sha256(body || nonce); each (identity key, nonce) pair is accepted once per
// TTL window.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// Exported error kinds. Gate failures wrap ErrUnauthorized together with the
// specific kind so callers can answer 401 while tests and logs can tell them apart.
var (
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrReplayDetected   = errors.New("nonce reused")
	ErrUnauthorized     = errors.New("unauthorized")
)

// Static error variables for err113 compliance
var (
	errSignatureLength = errors.New("signature is neither DER nor 64-byte compact")
	errSignatureZero   = errors.New("signature component is zero")
)

const (
	// MinNonceLength is the shortest nonce accepted.
	MinNonceLength = 8

	// compactSignatureSize is the length of an r||s signature.
	compactSignatureSize = 64

	// minSignatureHexLen rejects obviously short signatures before decoding.
	minSignatureHexLen = 64
)

// MessageHash returns the digest a client signs: sha256(body || nonce).
func MessageHash(body []byte, nonce string) []byte {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(nonce))
	return h.Sum(nil)
}

// ParseSignature decodes sig as DER, and failing that as a 64-byte compact
// r||s pair.
func ParseSignature(sig []byte) (*ec.Signature, error) {
	if parsed, err := ec.ParseDERSignature(sig); err == nil {
		return parsed, nil
	}
	if len(sig) != compactSignatureSize {
		return nil, fmt.Errorf("%w: %d bytes", errSignatureLength, len(sig))
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if r.Sign() == 0 || s.Sign() == 0 {
		return nil, errSignatureZero
	}
	return &ec.Signature{R: r, S: s}, nil
}

// CompactSignature renders sig as 64-byte r||s.
func CompactSignature(sig *ec.Signature) []byte {
	out := make([]byte, compactSignatureSize)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:])
	return out
}

// Verify reports whether signatureHex is a valid signature by identityKeyHex
// over MessageHash(body, nonce). Any decoding failure yields false.
//
// Parameters:
//   - identityKeyHex: 33-byte compressed public key in hex
//   - nonce: the request nonce, appended to the body before hashing
//   - signatureHex: DER or 64-byte compact signature in hex
//   - body: the exact request body bytes
//
// Returns:
//   - bool: true if the signature verifies
func Verify(identityKeyHex, nonce, signatureHex string, body []byte) bool {
	keyBytes, err := hex.DecodeString(identityKeyHex)
	if err != nil {
		return false
	}
	pubKey, err := ec.ParsePubKey(keyBytes)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	sig, err := ParseSignature(sigBytes)
	if err != nil {
		return false
	}

	return sig.Verify(MessageHash(body, nonce), pubKey)
}
