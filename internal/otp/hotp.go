package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"hash"
	"strings"
)

// Algorithm names the HMAC hash used for code generation.
type Algorithm string

const (
	AlgSHA1   Algorithm = "SHA1"
	AlgSHA256 Algorithm = "SHA256"
	AlgSHA512 Algorithm = "SHA512"
)

const (
	MinDigits = 6
	MaxDigits = 10
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported otp algorithm")
	ErrInvalidDigits        = errors.New("otp digits must be between 6 and 10")
	ErrEmptyKey             = errors.New("otp key is empty")
)

var pow10 = [...]uint64{
	1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000, 10000000000,
}

// ParseAlgorithm normalizes an algorithm name. Empty selects SHA1.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "")) {
	case "", "SHA1":
		return AlgSHA1, nil
	case "SHA256":
		return AlgSHA256, nil
	case "SHA512":
		return AlgSHA512, nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}

func (a Algorithm) hashFunc() (func() hash.Hash, error) {
	switch a {
	case AlgSHA1, "":
		return sha1.New, nil
	case AlgSHA256:
		return sha256.New, nil
	case AlgSHA512:
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// HOTP computes the RFC4226 code for key at counter.
func HOTP(key []byte, counter uint64, digits int, alg Algorithm) (string, error) {
	var out [MaxDigits]byte
	n, err := hotpInto(out[:], key, counter, digits, alg)
	if err != nil {
		return "", err
	}
	return string(out[:n]), nil
}

// hotpInto writes the zero-padded code into dst and returns its length.
func hotpInto(dst []byte, key []byte, counter uint64, digits int, alg Algorithm) (int, error) {
	if len(key) == 0 {
		return 0, ErrEmptyKey
	}
	if digits < MinDigits || digits > MaxDigits {
		return 0, ErrInvalidDigits
	}
	newHash, err := alg.hashFunc()
	if err != nil {
		return 0, err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(newHash, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := int(sum[len(sum)-1] & 0x0F)
	bin := uint64(binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF)
	value := bin % pow10[digits]

	for i := digits - 1; i >= 0; i-- {
		dst[i] = byte('0' + value%10)
		value /= 10
	}
	return digits, nil
}
