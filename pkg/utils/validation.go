// Package utils provides utility functions for the dataset anchoring services.
// This package contains shape validators for hashes, identity keys and anchor tags,
// plus small hex and ASCII helpers shared by the codec and scanner packages.
package utils

import (
	"regexp"
	"strings"
)

// Compiled regex patterns for validation
var (
	// hash64Regex validates a 32-byte hash rendered as hex (either case).
	hash64Regex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

	// compressedPubKeyRegex validates a 33-byte compressed secp256k1 public key in hex.
	// Pattern: 02 or 03 prefix followed by the 32-byte X coordinate
	compressedPubKeyRegex = regexp.MustCompile(`^0[23][0-9a-fA-F]{64}$`)

	// hexRegex validates a non-empty hex string of any length.
	hexRegex = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// IsHash64Hex checks if the provided string is a 64-character hex string (32 bytes).
// Both lowercase and uppercase digits are accepted; callers lowercase before comparing.
//
// Parameters:
//   - s: The candidate hash string
//
// Returns:
//   - bool: true if s has the shape of a sha256 digest in hex
func IsHash64Hex(s string) bool {
	return hash64Regex.MatchString(s)
}

// IsLowerHash64Hex checks if the provided string is a 64-character lowercase hex string.
func IsLowerHash64Hex(s string) bool {
	return IsHash64Hex(s) && s == strings.ToLower(s)
}

// IsCompressedPubKeyHex checks if the provided string is a compressed public key in hex.
//
// Rules:
//   - Exactly 66 hex characters (33 bytes)
//   - Must start with "02" or "03"
//
// Examples:
//   - Valid: "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
//   - Invalid: "04...", "02abc", ""
func IsCompressedPubKeyHex(s string) bool {
	return compressedPubKeyRegex.MatchString(s)
}

// IsHex checks if the provided string is non-empty and made only of hex digits.
// Odd lengths are accepted here; decoding rejects them.
func IsHex(s string) bool {
	return hexRegex.MatchString(s)
}
