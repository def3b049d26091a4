package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
)

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// ErrInvalidEncoding is returned for malformed base32 input.
var ErrInvalidEncoding = errors.New("invalid base32 encoding")

var (
	rawEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
	decodeMap   [256]byte
)

func init() {
	for i := range decodeMap {
		decodeMap[i] = 0xFF
	}
	for i := 0; i < len(base32Alphabet); i++ {
		c := base32Alphabet[i]
		decodeMap[c] = byte(i)
		if c >= 'A' && c <= 'Z' {
			decodeMap[c+('a'-'A')] = byte(i)
		}
	}
}

// EncodeBase32 encodes raw key bytes with the RFC4648 alphabet and no padding.
func EncodeBase32(b []byte) string {
	return rawEncoding.EncodeToString(b)
}

// DecodeBase32 decodes a base32 secret.
//
// Decoding is case-insensitive, tolerates surrounding whitespace and trailing
// '=' padding, and accepts any input length. The final group is zero-filled and
// a trailing partial byte is discarded. Any other character outside the
// alphabet, including interior padding, is rejected.
func DecodeBase32(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrInvalidEncoding
	}

	out := make([]byte, 0, len(s)*5/8)
	var acc uint32
	var bits uint

	for i := 0; i < len(s); i++ {
		v := decodeMap[s[i]]
		if v == 0xFF {
			return nil, fmt.Errorf("%w: illegal character at offset %d", ErrInvalidEncoding, i)
		}
		acc = acc<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(acc>>bits))
			acc &= (1 << bits) - 1
		}
	}

	if len(out) == 0 {
		return nil, ErrInvalidEncoding
	}
	return out, nil
}
