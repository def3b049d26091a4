package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	credentialRecordVersionV1 = 1

	credentialFlagConfirmed = 1 << 0
)

var (
	ErrCredentialNotFound    = errors.New("otp credential not found")
	ErrCredentialBackend     = errors.New("otp credential backend unavailable")
	ErrCredentialCorrupt     = errors.New("otp credential record corrupt")
	ErrCredentialContention  = errors.New("otp credential update contention")
	ErrBackupCodeHashInvalid = errors.New("backup code hash must be 32 bytes")
)

// BackupConsumeResult is the outcome of a compare-and-set on one backup code.
type BackupConsumeResult int

const (
	BackupCodeNotFound BackupConsumeResult = iota
	BackupCodeConsumed
	BackupCodeAlreadyUsed
)

// Credential is the persisted TOTP enrollment of one principal. Secret holds
// the sealed key bytes exactly as handed to the store.
type Credential struct {
	Secret      []byte
	Algorithm   string
	Digits      uint8
	Period      uint16
	Confirmed   bool
	LastCounter int64 // -1 until a code has been accepted with replay tracking
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt time.Time
}

// replaceBackupCodesLua swaps the whole code set only when the credential
// still exists.
// KEYS[1] = credential key
// KEYS[2] = backup code hash key
// ARGV    = 32-byte code hashes
//
// Returns 1 on success, 0 when the credential is missing.
var replaceBackupCodesLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('DEL', KEYS[2])
for i = 1, #ARGV do
  redis.call('HSET', KEYS[2], ARGV[i], '0')
end
return 1
`)

// consumeBackupCodeLua flips one code from unused to used.
// KEYS[1] = backup code hash key
// ARGV[1] = 32-byte code hash
// ARGV[2] = used-at (unix ms)
//
// Returns 0 not found, 1 consumed, 2 already used.
var consumeBackupCodeLua = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if not v then
  return 0
end
if v ~= '0' then
  return 2
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// advanceCounterLua records the last accepted TOTP step; it refuses to move
// backwards or to accept the same step twice.
// KEYS[1] = counter key
// ARGV[1] = counter
//
// Returns 1 when advanced, 0 when the step was already used.
var advanceCounterLua = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local next = tonumber(ARGV[1])
if cur and tonumber(cur) >= next then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// CredentialStore persists TOTP credentials and backup code sets in Redis.
// Keys for one principal share a hash tag so multi-key scripts stay on one
// cluster slot.
type CredentialStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCredentialStore(redisClient redis.UniversalClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &CredentialStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *CredentialStore) credentialKey(principal string) string {
	return s.prefix + ":cred:{" + principal + "}"
}

func (s *CredentialStore) counterKey(principal string) string {
	return s.prefix + ":ctr:{" + principal + "}"
}

func (s *CredentialStore) backupKey(principal string) string {
	return s.prefix + ":bc:{" + principal + "}"
}

// Put stores cred and replaces the backup code set in one MULTI block. Any
// previous credential, replay counter and codes are discarded.
func (s *CredentialStore) Put(ctx context.Context, principal string, cred *Credential, codes [][32]byte) error {
	encoded, err := encodeCredential(cred)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.credentialKey(principal), encoded, 0)
		pipe.Del(ctx, s.counterKey(principal), s.backupKey(principal))
		if len(codes) > 0 {
			pipe.HSet(ctx, s.backupKey(principal), backupFields(codes)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, principal string) (*Credential, error) {
	var credCmd *redis.StringCmd
	var ctrCmd *redis.StringCmd
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		credCmd = pipe.Get(ctx, s.credentialKey(principal))
		ctrCmd = pipe.Get(ctx, s.counterKey(principal))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}

	data, err := credCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}
	cred, err := decodeCredential(data)
	if err != nil {
		return nil, err
	}

	cred.LastCounter = -1
	if raw, err := ctrCmd.Result(); err == nil {
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return nil, ErrCredentialCorrupt
		}
		cred.LastCounter = n
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}
	return cred, nil
}

// Confirm marks the credential confirmed.
func (s *CredentialStore) Confirm(ctx context.Context, principal string, at time.Time) error {
	const maxRetries = 4
	key := s.credentialKey(principal)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			cred, err := decodeCredential(data)
			if err != nil {
				return err
			}
			if cred.Confirmed {
				return nil
			}

			cred.Confirmed = true
			cred.ConfirmedAt = at
			cred.UpdatedAt = at
			updated, err := encodeCredential(cred)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrCredentialNotFound
			}
			if errors.Is(err, ErrCredentialCorrupt) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrCredentialBackend, err)
		}
		return nil
	}

	return ErrCredentialContention
}

// Delete removes the credential, its replay counter and its backup codes.
func (s *CredentialStore) Delete(ctx context.Context, principal string) (bool, error) {
	n, err := s.redis.Del(ctx, s.credentialKey(principal), s.counterKey(principal), s.backupKey(principal)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}
	return n > 0, nil
}

func (s *CredentialStore) ReplaceBackupCodes(ctx context.Context, principal string, codes [][32]byte) error {
	args := make([]interface{}, 0, len(codes))
	for _, h := range codes {
		args = append(args, string(h[:]))
	}

	n, err := replaceBackupCodesLua.Run(ctx, s.redis,
		[]string{s.credentialKey(principal), s.backupKey(principal)}, args...,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}
	if n == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *CredentialStore) ConsumeBackupCode(ctx context.Context, principal string, hash [32]byte, usedAt time.Time) (BackupConsumeResult, error) {
	n, err := consumeBackupCodeLua.Run(ctx, s.redis, []string{s.backupKey(principal)},
		string(hash[:]), usedAt.UnixMilli(),
	).Int()
	if err != nil {
		return BackupCodeNotFound, fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}

	switch n {
	case 1:
		return BackupCodeConsumed, nil
	case 2:
		return BackupCodeAlreadyUsed, nil
	default:
		return BackupCodeNotFound, nil
	}
}

func (s *CredentialStore) CountUnusedBackupCodes(ctx context.Context, principal string) (int, error) {
	vals, err := s.redis.HVals(ctx, s.backupKey(principal)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}
	n := 0
	for _, v := range vals {
		if v == "0" {
			n++
		}
	}
	return n, nil
}

// AdvanceCounter stores counter as the last accepted step. It reports false
// when counter is not newer than the stored one.
func (s *CredentialStore) AdvanceCounter(ctx context.Context, principal string, counter int64) (bool, error) {
	n, err := advanceCounterLua.Run(ctx, s.redis, []string{s.counterKey(principal)}, counter).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCredentialBackend, err)
	}
	return n == 1, nil
}

func backupFields(codes [][32]byte) []interface{} {
	out := make([]interface{}, 0, len(codes)*2)
	for _, h := range codes {
		out = append(out, string(h[:]), "0")
	}
	return out
}

func encodeCredential(cred *Credential) ([]byte, error) {
	if cred == nil {
		return nil, errors.New("nil credential")
	}
	if len(cred.Secret) == 0 || len(cred.Secret) > 65535 {
		return nil, errors.New("credential secret length out of range")
	}
	if len(cred.Algorithm) > 255 {
		return nil, errors.New("credential algorithm name too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(credentialRecordVersionV1)

	var flags byte
	if cred.Confirmed {
		flags |= credentialFlagConfirmed
	}
	buf.WriteByte(flags)
	buf.WriteByte(cred.Digits)
	if err := binary.Write(&buf, binary.BigEndian, cred.Period); err != nil {
		return nil, err
	}
	for _, ts := range []time.Time{cred.CreatedAt, cred.UpdatedAt, cred.ConfirmedAt} {
		if err := binary.Write(&buf, binary.BigEndian, unixMilli(ts)); err != nil {
			return nil, err
		}
	}

	buf.WriteByte(byte(len(cred.Algorithm)))
	buf.WriteString(cred.Algorithm)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(cred.Secret))); err != nil {
		return nil, err
	}
	buf.Write(cred.Secret)

	return buf.Bytes(), nil
}

func decodeCredential(data []byte) (*Credential, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != credentialRecordVersionV1 {
		return nil, ErrCredentialCorrupt
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, ErrCredentialCorrupt
	}

	cred := &Credential{Confirmed: flags&credentialFlagConfirmed != 0}
	if cred.Digits, err = r.ReadByte(); err != nil {
		return nil, ErrCredentialCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &cred.Period); err != nil {
		return nil, ErrCredentialCorrupt
	}

	var stamps [3]int64
	if err := binary.Read(r, binary.BigEndian, &stamps); err != nil {
		return nil, ErrCredentialCorrupt
	}
	cred.CreatedAt = fromUnixMilli(stamps[0])
	cred.UpdatedAt = fromUnixMilli(stamps[1])
	cred.ConfirmedAt = fromUnixMilli(stamps[2])

	algLen, err := r.ReadByte()
	if err != nil {
		return nil, ErrCredentialCorrupt
	}
	alg := make([]byte, algLen)
	if _, err := io.ReadFull(r, alg); err != nil {
		return nil, ErrCredentialCorrupt
	}
	cred.Algorithm = string(alg)

	var secretLen uint16
	if err := binary.Read(r, binary.BigEndian, &secretLen); err != nil {
		return nil, ErrCredentialCorrupt
	}
	cred.Secret = make([]byte, secretLen)
	if _, err := io.ReadFull(r, cred.Secret); err != nil {
		return nil, ErrCredentialCorrupt
	}

	return cred, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
