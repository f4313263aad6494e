package canonical

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const hexDigits = "0123456789abcdef"

// Marshal returns the canonical serialization of v.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler with the canonical serialization, so a
// Value embedded in a larger document keeps its exact bytes.
func (v Value) MarshalJSON() ([]byte, error) {
	return Marshal(v)
}

// String returns the canonical serialization, or a placeholder when v holds
// a non-finite number.
func (v Value) String() string {
	b, err := Marshal(v)
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		s, err := FormatNumber(v.n)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case KindString:
		writeString(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeValue(buf, v.m[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("%w: unknown value kind %d", ErrCanonicalization, v.kind)
	}
	return nil
}

// writeString quotes s using the JSON.stringify escape set: quote, backslash,
// the five short control escapes and \u00XX for the remaining C0 controls.
// Everything else, including '<', '>', '&', U+2028 and U+2029, is literal.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('"')
}

// FormatNumber renders n the way Number.prototype.toString does: the shortest
// digit string that round-trips, in plain notation for magnitudes in
// [1e-6, 1e21) and exponent notation otherwise. Negative zero prints as "0".
func FormatNumber(n float64) (string, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "", fmt.Errorf("%w: non-finite number %v", ErrCanonicalization, n)
	}
	if n == 0 {
		return "0", nil
	}

	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	// 'e' with precision -1 yields the shortest round-trip digits as d.ddde±x.
	sci := strconv.FormatFloat(n, 'e', -1, 64)
	mantissa, expPart, _ := strings.Cut(sci, "e")
	exp, err := strconv.Atoi(expPart)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCanonicalization, sci)
	}
	digits := strings.Replace(mantissa, ".", "", 1)
	k := len(digits)
	// point is the position of the decimal point relative to the digit string.
	point := exp + 1

	var out string
	switch {
	case k <= point && point <= 21:
		out = digits + strings.Repeat("0", point-k)
	case 0 < point && point <= 21:
		out = digits[:point] + "." + digits[point:]
	case -6 < point && point <= 0:
		out = "0." + strings.Repeat("0", -point) + digits
	default:
		e := point - 1
		expSign := "+"
		if e < 0 {
			expSign = "-"
			e = -e
		}
		if k == 1 {
			out = digits + "e" + expSign + strconv.Itoa(e)
		} else {
			out = digits[:1] + "." + digits[1:] + "e" + expSign + strconv.Itoa(e)
		}
	}
	return sign + out, nil
}
