package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BytesToHex converts bytes to a lowercase hex string
func BytesToHex(data []byte) string {
	return hex.EncodeToString(data)
}

// HexToBytes converts hex string to bytes
func HexToBytes(hexStr string) ([]byte, error) {
	return hex.DecodeString(hexStr)
}

// NormalizeHex trims surrounding whitespace and lowercases a hex string.
func NormalizeHex(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Sha256Hex returns the lowercase hex sha256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PrintableASCII returns the bytes as a string when every byte is printable
// ASCII (0x20..0x7e). Empty input and any other byte yield ok=false.
func PrintableASCII(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	for _, c := range data {
		if c < 0x20 || c > 0x7e {
			return "", false
		}
	}
	return string(data), true
}

// ASCIIOrNil is PrintableASCII shaped for optional JSON fields: nil when the
// bytes are not printable.
func ASCIIOrNil(data []byte) *string {
	s, ok := PrintableASCII(data)
	if !ok {
		return nil
	}
	return &s
}
