package utils

import (
	"strings"
	"testing"
)

// FuzzHexToBytes tests the HexToBytes function with random inputs
// to ensure it handles malformed hex strings gracefully without panicking.
func FuzzHexToBytes(f *testing.F) {
	// Seed corpus with valid hex strings
	f.Add("")
	f.Add("ff")
	f.Add("0123abcd")
	f.Add("ABCD")
	f.Add("deadbeef")

	// Seed corpus with invalid hex strings
	f.Add("xyz")
	f.Add("abc") // odd length
	f.Add("0xdeadbeef")
	f.Add(" ff")
	f.Add("\x00\x01")

	f.Fuzz(func(t *testing.T, hexStr string) {
		result, err := HexToBytes(hexStr)
		if err != nil {
			return
		}

		if len(result) != len(hexStr)/2 {
			t.Errorf("HexToBytes(%q) returned %d bytes, expected %d", hexStr, len(result), len(hexStr)/2)
		}
		if BytesToHex(result) != strings.ToLower(hexStr) {
			t.Errorf("Round-trip failed: HexToBytes(%q) -> BytesToHex() = %q", hexStr, BytesToHex(result))
		}
	})
}

// FuzzPrintableASCII ensures the ASCII sniffing used for tag detection never
// panics and only ever returns printable characters.
func FuzzPrintableASCII(f *testing.F) {
	f.Add([]byte("DLM1"))
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x6a})
	f.Add([]byte{0xe2, 0x82, 0xac}) // multi-byte UTF-8
	f.Add([]byte("TRN1\xa2"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s, ok := PrintableASCII(data)
		if !ok {
			if s != "" {
				t.Errorf("PrintableASCII returned %q with ok=false", s)
			}
			return
		}
		if len(s) != len(data) {
			t.Errorf("PrintableASCII length mismatch: %d vs %d", len(s), len(data))
		}
		for i := 0; i < len(s); i++ {
			if s[i] < 0x20 || s[i] > 0x7e {
				t.Errorf("non-printable byte 0x%02x accepted", s[i])
			}
		}
	})
}
