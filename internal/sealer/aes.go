package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Ciphertext layout:
//
//	[0..1]   uint16 version
//	[2..13]  nonce
//	[14..]   gcm.Seal output (ciphertext + tag)
const aesGCMVersion uint16 = 1

const (
	// MasterKeySize is the minimum accepted master key length.
	MasterKeySize = 32
	gcmNonceSize  = 12
	aesKeyLen     = 32
	hkdfInfo      = "goOTP-secret-seal-v1"
)

var (
	ErrMasterKeyTooShort            = errors.New("sealer: master key must be at least 32 bytes")
	ErrPlaintextEmpty               = errors.New("sealer: plaintext is empty")
	ErrCiphertextTooShort           = errors.New("sealer: ciphertext too short")
	ErrUnsupportedCiphertextVersion = errors.New("sealer: unsupported ciphertext version")
	ErrDecryptFailed                = errors.New("sealer: decrypt failed")
)

// AESGCM seals OTP secrets with AES-256-GCM. The encryption key is derived
// from a master key with HKDF-SHA256 and every ciphertext is bound to the
// principal it belongs to through the AAD, so a sealed secret copied onto
// another principal's record fails to open.
type AESGCM struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewAESGCM derives the data key from masterKey and salt. The master key is
// not retained.
func NewAESGCM(masterKey, salt []byte) (*AESGCM, error) {
	if len(masterKey) < MasterKeySize {
		return nil, ErrMasterKeyTooShort
	}

	key := make([]byte, aesKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("sealer: key derivation failed: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealer: aes init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sealer: gcm init failed: %w", err)
	}

	return &AESGCM{aead: gcm, rand: rand.Reader}, nil
}

// Seal encrypts plaintext for principal.
func (s *AESGCM) Seal(principal string, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, ErrPlaintextEmpty
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return nil, fmt.Errorf("sealer: nonce generation failed: %w", err)
	}

	sealed := s.aead.Seal(nil, nonce, plaintext, principalAAD(principal))

	out := make([]byte, 2+gcmNonceSize+len(sealed))
	binary.BigEndian.PutUint16(out[0:2], aesGCMVersion)
	copy(out[2:2+gcmNonceSize], nonce)
	copy(out[2+gcmNonceSize:], sealed)
	return out, nil
}

// Open decrypts a value produced by Seal for the same principal.
func (s *AESGCM) Open(principal string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 2+gcmNonceSize+s.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	if v := binary.BigEndian.Uint16(ciphertext[0:2]); v != aesGCMVersion {
		return nil, fmt.Errorf("sealer: version %d: %w", v, ErrUnsupportedCiphertextVersion)
	}

	nonce := ciphertext[2 : 2+gcmNonceSize]
	plain, err := s.aead.Open(nil, nonce, ciphertext[2+gcmNonceSize:], principalAAD(principal))
	if err != nil {
		// wrong key, wrong principal and tampering are indistinguishable
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

func principalAAD(principal string) []byte {
	sum := sha256.Sum256([]byte("principal=" + principal + "\npurpose=totp-secret\n"))
	return sum[:]
}
