package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	alternateRecordVersionV1 = 1
)

var (
	ErrAlternateChallengeBackend    = errors.New("alternate otp backend unavailable")
	ErrAlternateChallengeContention = errors.New("alternate otp update contention")
	ErrAlternateChallengeCorrupt    = errors.New("alternate otp record corrupt")
)

// AlternateOutcome classifies a submitted alternate-channel code.
type AlternateOutcome int

const (
	AlternateNoChallenge AlternateOutcome = iota
	AlternateMismatch
	AlternateConsumed
	AlternateAlreadyUsed
	AlternateExpired
)

// AlternateChallenge is one issued SMS/email code. Only the code hash is
// stored.
type AlternateChallenge struct {
	ID          string
	Destination string
	CodeHash    [32]byte
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Used        bool
	UsedAt      time.Time
}

// AlternateCodeHash binds a code to its principal and challenge.
func AlternateCodeHash(principal, challengeID, code string) [32]byte {
	data := make([]byte, 0, len(principal)+len(challengeID)+len(code)+2)
	data = append(data, principal...)
	data = append(data, 0)
	data = append(data, challengeID...)
	data = append(data, 0)
	data = append(data, code...)
	return sha256.Sum256(data)
}

// AlternateChallengeStore keeps every outstanding challenge of a
// principal+channel pair in one Redis hash keyed by challenge id. Used and
// expired challenges linger for a retention period so late submissions can be
// reported as already used or expired instead of a bare mismatch.
type AlternateChallengeStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewAlternateChallengeStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *AlternateChallengeStore {
	if prefix == "" {
		prefix = "otp"
	}
	if retention < 0 {
		retention = 0
	}
	return &AlternateChallengeStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *AlternateChallengeStore) key(principal, channel string) string {
	return s.prefix + ":ao:" + channel + ":{" + principal + "}"
}

// Issue stores rec. With invalidatePrevious every earlier challenge of the
// pair is dropped in the same transaction; otherwise only challenges past
// their retention are pruned.
func (s *AlternateChallengeStore) Issue(
	ctx context.Context,
	principal, channel string,
	rec *AlternateChallenge,
	invalidatePrevious bool,
	now time.Time,
) error {
	encoded, err := encodeAlternateChallenge(rec)
	if err != nil {
		return err
	}

	ttl := rec.ExpiresAt.Sub(now) + s.retention
	if ttl <= 0 {
		return fmt.Errorf("%w: challenge already expired", ErrAlternateChallengeCorrupt)
	}

	const maxRetries = 4
	key := s.key(principal, channel)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var stale []string
			if !invalidatePrevious {
				existing, err := tx.HGetAll(ctx, key).Result()
				if err != nil {
					return err
				}
				for id, raw := range existing {
					c, err := decodeAlternateChallenge([]byte(raw))
					if err != nil || !now.Before(c.ExpiresAt.Add(s.retention)) {
						stale = append(stale, id)
					}
				}
			}

			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if invalidatePrevious {
					pipe.Del(ctx, key)
				} else if len(stale) > 0 {
					pipe.HDel(ctx, key, stale...)
				}
				pipe.HSet(ctx, key, rec.ID, encoded)
				pipe.PExpire(ctx, key, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAlternateChallengeBackend, err)
		}
		return nil
	}

	return ErrAlternateChallengeContention
}

// Consume checks code against every stored challenge of the pair. Each
// candidate hash is compared in constant time and all challenges are visited
// before a decision is made. A match on a live unused challenge marks it used;
// the returned challenge is the matched one, if any.
func (s *AlternateChallengeStore) Consume(
	ctx context.Context,
	principal, channel, code string,
	now time.Time,
) (AlternateOutcome, *AlternateChallenge, error) {
	const maxRetries = 4
	key := s.key(principal, channel)

	for i := 0; i < maxRetries; i++ {
		outcome := AlternateNoChallenge
		var matched *AlternateChallenge

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			outcome = AlternateNoChallenge
			matched = nil

			all, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}

			var live, used, expired *AlternateChallenge
			for id, raw := range all {
				c, err := decodeAlternateChallenge([]byte(raw))
				if err != nil {
					continue
				}
				c.ID = id

				candidate := AlternateCodeHash(principal, id, code)
				if subtle.ConstantTimeCompare(candidate[:], c.CodeHash[:]) != 1 {
					continue
				}
				switch {
				case c.Used:
					used = c
				case !now.Before(c.ExpiresAt):
					expired = c
				default:
					live = c
				}
			}

			switch {
			case live != nil:
				live.Used = true
				live.UsedAt = now
				updated, err := encodeAlternateChallenge(live)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.HSet(ctx, key, live.ID, updated)
					return nil
				})
				if err != nil {
					return err
				}
				outcome, matched = AlternateConsumed, live
			case used != nil:
				outcome, matched = AlternateAlreadyUsed, used
			case expired != nil:
				outcome, matched = AlternateExpired, expired
			case len(all) > 0:
				outcome = AlternateMismatch
			}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return AlternateNoChallenge, nil, fmt.Errorf("%w: %v", ErrAlternateChallengeBackend, err)
		}
		return outcome, matched, nil
	}

	return AlternateNoChallenge, nil, ErrAlternateChallengeContention
}

// Pending counts live, unused challenges of the pair.
func (s *AlternateChallengeStore) Pending(ctx context.Context, principal, channel string, now time.Time) (int, error) {
	all, err := s.redis.HVals(ctx, s.key(principal, channel)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAlternateChallengeBackend, err)
	}
	n := 0
	for _, raw := range all {
		c, err := decodeAlternateChallenge([]byte(raw))
		if err != nil {
			continue
		}
		if !c.Used && now.Before(c.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

// DeleteAll drops every challenge of principal on the given channels.
func (s *AlternateChallengeStore) DeleteAll(ctx context.Context, principal string, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(channels))
	for _, ch := range channels {
		keys = append(keys, s.key(principal, ch))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAlternateChallengeBackend, err)
	}
	return nil
}

func encodeAlternateChallenge(rec *AlternateChallenge) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("nil alternate challenge")
	}
	if len(rec.Destination) > 65535 {
		return nil, errors.New("alternate destination too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(alternateRecordVersionV1)
	if rec.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	stamps := [3]int64{unixMilli(rec.IssuedAt), unixMilli(rec.ExpiresAt), unixMilli(rec.UsedAt)}
	if err := binary.Write(&buf, binary.BigEndian, stamps); err != nil {
		return nil, err
	}
	buf.Write(rec.CodeHash[:])
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.Destination))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.Destination)
	return buf.Bytes(), nil
}

func decodeAlternateChallenge(data []byte) (*AlternateChallenge, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != alternateRecordVersionV1 {
		return nil, ErrAlternateChallengeCorrupt
	}
	used, err := r.ReadByte()
	if err != nil {
		return nil, ErrAlternateChallengeCorrupt
	}

	var stamps [3]int64
	if err := binary.Read(r, binary.BigEndian, &stamps); err != nil {
		return nil, ErrAlternateChallengeCorrupt
	}

	rec := &AlternateChallenge{
		Used:      used == 1,
		IssuedAt:  fromUnixMilli(stamps[0]),
		ExpiresAt: fromUnixMilli(stamps[1]),
		UsedAt:    fromUnixMilli(stamps[2]),
	}
	if _, err := io.ReadFull(r, rec.CodeHash[:]); err != nil {
		return nil, ErrAlternateChallengeCorrupt
	}

	var destLen uint16
	if err := binary.Read(r, binary.BigEndian, &destLen); err != nil {
		return nil, ErrAlternateChallengeCorrupt
	}
	dest := make([]byte, destLen)
	if _, err := io.ReadFull(r, dest); err != nil {
		return nil, ErrAlternateChallengeCorrupt
	}
	rec.Destination = string(dest)
	return rec, nil
}
