package goOTP

import (
	"github.com/MrEthical07/goOTP/internal/sealer"
)

// SecretSealer protects TOTP secrets at rest. Open must reject a ciphertext
// sealed for a different principal.
type SecretSealer interface {
	Seal(principal string, plaintext []byte) ([]byte, error)
	Open(principal string, ciphertext []byte) ([]byte, error)
}

// NewAESSealer returns an AES-256-GCM sealer keyed by HKDF-SHA256 over
// masterKey (at least 32 bytes) and salt.
func NewAESSealer(masterKey, salt []byte) (SecretSealer, error) {
	return sealer.NewAESGCM(masterKey, salt)
}

func (e *Engine) sealSecret(principal string, raw []byte) ([]byte, error) {
	if e.sealer == nil {
		return cloneBytes(raw), nil
	}
	return e.sealer.Seal(principal, raw)
}

func (e *Engine) openSecret(principal string, stored []byte) ([]byte, error) {
	if e.sealer == nil {
		return stored, nil
	}
	return e.sealer.Open(principal, stored)
}
