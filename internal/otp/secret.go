package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	DefaultSecretBytes = 20
	MinSecretBytes     = 20
	MaxSecretBytes     = 64
)

var ErrSecretSize = errors.New("otp secret size out of range")

// GenerateSecret reads n random bytes from r. A nil reader uses crypto/rand.
func GenerateSecret(r io.Reader, n int) ([]byte, error) {
	if n == 0 {
		n = DefaultSecretBytes
	}
	if n < MinSecretBytes || n > MaxSecretBytes {
		return nil, ErrSecretSize
	}
	if r == nil {
		r = rand.Reader
	}

	secret := make([]byte, n)
	if _, err := io.ReadFull(r, secret); err != nil {
		return nil, fmt.Errorf("read secret entropy: %w", err)
	}
	return secret, nil
}

// RandomIndex returns a uniform integer in [0, n).
func RandomIndex(r io.Reader, n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("random index bound must be positive")
	}
	if r == nil {
		r = rand.Reader
	}
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// NumericCode draws a uniformly random decimal code of the given length.
func NumericCode(r io.Reader, digits int) (string, error) {
	if digits < MinDigits || digits > MaxDigits {
		return "", ErrInvalidDigits
	}

	out := make([]byte, digits)
	for i := range out {
		n, err := RandomIndex(r, 10)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + n)
	}
	return string(out), nil
}
