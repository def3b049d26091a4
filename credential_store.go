package goOTP

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/redis/go-redis/v9"
)

// BackupConsumeResult is the outcome of consuming one backup code.
type BackupConsumeResult int

const (
	BackupCodeNotFound BackupConsumeResult = iota
	BackupCodeConsumed
	BackupCodeAlreadyUsed
)

// CredentialRecord is the persisted TOTP enrollment of one principal. Secret
// holds the key as produced by the configured SecretSealer (or the raw key
// when no sealer is configured). A record that exists is enabled; Disable
// deletes it.
type CredentialRecord struct {
	Secret          []byte
	Algorithm       string
	Digits          int
	Period          int
	Confirmed       bool
	LastUsedCounter int64 // -1 until replay tracking has accepted a step
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     time.Time
}

// CredentialStore persists credentials and backup code sets. Backup codes
// are stored only as 32-byte hashes. Implementations must make each method
// atomic per principal; ConsumeBackupCode in particular is a compare-and-set
// that flips a code from unused to used at most once.
//
// GetCredential, ConfirmCredential and ReplaceBackupCodes return
// ErrCredentialNotFound when the principal has no credential.
type CredentialStore interface {
	PutCredential(ctx context.Context, principal string, rec *CredentialRecord, backupHashes [][32]byte) error
	GetCredential(ctx context.Context, principal string) (*CredentialRecord, error)
	ConfirmCredential(ctx context.Context, principal string, at time.Time) error
	DeleteCredential(ctx context.Context, principal string) (bool, error)
	ReplaceBackupCodes(ctx context.Context, principal string, backupHashes [][32]byte) error
	ConsumeBackupCode(ctx context.Context, principal string, hash [32]byte, usedAt time.Time) (BackupConsumeResult, error)
	CountUnusedBackupCodes(ctx context.Context, principal string) (int, error)
	// AdvanceCounter records counter as the last accepted TOTP step and
	// reports false when it is not newer than the stored one.
	AdvanceCounter(ctx context.Context, principal string, counter int64) (bool, error)
}

type redisCredentialStore struct {
	store *stores.CredentialStore
}

// NewRedisCredentialStore returns the built-in CredentialStore. The Builder
// uses it automatically when no store is supplied.
func NewRedisCredentialStore(client redis.UniversalClient, prefix string) CredentialStore {
	return &redisCredentialStore{store: stores.NewCredentialStore(client, prefix)}
}

func (s *redisCredentialStore) PutCredential(ctx context.Context, principal string, rec *CredentialRecord, backupHashes [][32]byte) error {
	if rec == nil {
		return errors.New("nil credential record")
	}
	return mapStoreError(s.store.Put(ctx, principal, &stores.Credential{
		Secret:      rec.Secret,
		Algorithm:   rec.Algorithm,
		Digits:      uint8(rec.Digits),
		Period:      uint16(rec.Period),
		Confirmed:   rec.Confirmed,
		LastCounter: rec.LastUsedCounter,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		ConfirmedAt: rec.ConfirmedAt,
	}, backupHashes))
}

func (s *redisCredentialStore) GetCredential(ctx context.Context, principal string) (*CredentialRecord, error) {
	c, err := s.store.Get(ctx, principal)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &CredentialRecord{
		Secret:          c.Secret,
		Algorithm:       c.Algorithm,
		Digits:          int(c.Digits),
		Period:          int(c.Period),
		Confirmed:       c.Confirmed,
		LastUsedCounter: c.LastCounter,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		ConfirmedAt:     c.ConfirmedAt,
	}, nil
}

func (s *redisCredentialStore) ConfirmCredential(ctx context.Context, principal string, at time.Time) error {
	return mapStoreError(s.store.Confirm(ctx, principal, at))
}

func (s *redisCredentialStore) DeleteCredential(ctx context.Context, principal string) (bool, error) {
	ok, err := s.store.Delete(ctx, principal)
	return ok, mapStoreError(err)
}

func (s *redisCredentialStore) ReplaceBackupCodes(ctx context.Context, principal string, backupHashes [][32]byte) error {
	return mapStoreError(s.store.ReplaceBackupCodes(ctx, principal, backupHashes))
}

func (s *redisCredentialStore) ConsumeBackupCode(ctx context.Context, principal string, hash [32]byte, usedAt time.Time) (BackupConsumeResult, error) {
	res, err := s.store.ConsumeBackupCode(ctx, principal, hash, usedAt)
	if err != nil {
		return BackupCodeNotFound, mapStoreError(err)
	}
	switch res {
	case stores.BackupCodeConsumed:
		return BackupCodeConsumed, nil
	case stores.BackupCodeAlreadyUsed:
		return BackupCodeAlreadyUsed, nil
	default:
		return BackupCodeNotFound, nil
	}
}

func (s *redisCredentialStore) CountUnusedBackupCodes(ctx context.Context, principal string) (int, error) {
	n, err := s.store.CountUnusedBackupCodes(ctx, principal)
	return n, mapStoreError(err)
}

func (s *redisCredentialStore) AdvanceCounter(ctx context.Context, principal string, counter int64) (bool, error) {
	ok, err := s.store.AdvanceCounter(ctx, principal, counter)
	return ok, mapStoreError(err)
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, stores.ErrCredentialNotFound) {
		return ErrCredentialNotFound
	}
	return err
}
