package idcrypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// CanonicalizeJSON re-serializes arbitrary JSON bytes into the canonical form
// described by RFC 8785 (JSON Canonicalization Scheme): object members sorted
// by UTF-16 code unit of their keys, minimal number representation per the
// ECMAScript ToString algorithm, and no insignificant whitespace.
//
// This is the single highest-risk interop surface in the identity core:
// every signer and verifier must agree on these bytes exactly, or signatures
// that are otherwise valid will fail to verify.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("idcrypto: decode json for canonicalization: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalizeValue marshals v to JSON and then canonicalizes it.
func CanonicalizeValue(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("idcrypto: marshal for canonicalization: %w", err)
	}
	return CanonicalizeJSON(raw)
}

func writeCanonical(buf *bytes.Buffer, value interface{}) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return writeCanonicalNumber(buf, v)
	case string:
		writeCanonicalString(buf, v)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return less16(keys[i], keys[j])
		})
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("idcrypto: unsupported type %T in canonical json", value)
	}
	return nil
}

// less16 compares strings by their UTF-16 code unit sequence, as RFC 8785
// requires for object member ordering.
func less16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	n := len(ua)
	if len(ub) < n {
		n = len(ub)
	}
	for i := 0; i < n; i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
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
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// writeCanonicalNumber renders a JSON number using the ECMAScript
// Number::toString algorithm RFC 8785 mandates: the shortest round-tripping
// digits, in plain decimal notation when the decimal exponent is between -6
// and 20 (so integral values carry no decimal point), and otherwise in
// exponent notation with an explicit sign and no leading zeros ("1e+21",
// "1.5e-7"). Negative zero is rendered as "0".
func writeCanonicalNumber(buf *bytes.Buffer, n json.Number) error {
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("idcrypto: invalid json number %q: %w", n, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("idcrypto: number %q is not representable in canonical json", n)
	}
	if f == 0 {
		buf.WriteString("0")
		return nil
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mark := strings.IndexByte(sci, 'e')
	exp, _ := strconv.Atoi(sci[mark+1:])
	if exp >= -6 && exp <= 20 {
		buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	buf.WriteString(sci[:mark])
	if exp > 0 {
		buf.WriteString("e+")
	} else {
		buf.WriteString("e-")
		exp = -exp
	}
	buf.WriteString(strconv.Itoa(exp))
	return nil
}
