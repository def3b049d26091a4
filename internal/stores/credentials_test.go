package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testCodes(prefix string, n int) [][32]byte {
	out := make([][32]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sha256.Sum256([]byte{prefix[0], byte(i)}))
	}
	return out
}

func testCredential(now time.Time) *Credential {
	return &Credential{
		Secret:    []byte("sealed-secret-bytes"),
		Algorithm: "SHA1",
		Digits:    6,
		Period:    30,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCredentialPutGetDelete(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewCredentialStore(rdb, "t")
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_123).UTC()

	if _, err := s.Get(ctx, "u1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}

	if err := s.Put(ctx, "u1", testCredential(now), testCodes("a", 10)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got.Secret, []byte("sealed-secret-bytes")) || got.Algorithm != "SHA1" ||
		got.Digits != 6 || got.Period != 30 || got.Confirmed || got.LastCounter != -1 {
		t.Fatalf("unexpected credential %+v", got)
	}
	if !got.CreatedAt.Equal(now) || !got.ConfirmedAt.IsZero() {
		t.Fatalf("timestamps not preserved: %+v", got)
	}

	n, err := s.CountUnusedBackupCodes(ctx, "u1")
	if err != nil || n != 10 {
		t.Fatalf("expected 10 unused codes, got %d err=%v", n, err)
	}

	if err := s.Confirm(ctx, "u1", now.Add(time.Minute)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	got, err = s.Get(ctx, "u1")
	if err != nil || !got.Confirmed || !got.ConfirmedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected confirmed credential, got %+v err=%v", got, err)
	}

	existed, err := s.Delete(ctx, "u1")
	if err != nil || !existed {
		t.Fatalf("Delete: existed=%v err=%v", existed, err)
	}
	if _, err := s.Get(ctx, "u1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound after delete, got %v", err)
	}
	if err := s.Confirm(ctx, "u1", now); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound from Confirm, got %v", err)
	}
}

func TestReEnrollmentReplacesCodesAndCounter(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewCredentialStore(rdb, "t")
	ctx := context.Background()
	now := time.Now()

	first := testCodes("a", 3)
	if err := s.Put(ctx, "u1", testCredential(now), first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := s.AdvanceCounter(ctx, "u1", 100); err != nil || !ok {
		t.Fatalf("AdvanceCounter: ok=%v err=%v", ok, err)
	}

	if err := s.Put(ctx, "u1", testCredential(now), testCodes("b", 3)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	res, err := s.ConsumeBackupCode(ctx, "u1", first[0], now)
	if err != nil || res != BackupCodeNotFound {
		t.Fatalf("old code must be gone, got %v err=%v", res, err)
	}
	got, err := s.Get(ctx, "u1")
	if err != nil || got.LastCounter != -1 {
		t.Fatalf("expected counter reset, got %+v err=%v", got, err)
	}
}

func TestConsumeBackupCodeIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewCredentialStore(rdb, "t")
	ctx := context.Background()
	now := time.Now()
	codes := testCodes("a", 2)

	if err := s.Put(ctx, "u1", testCredential(now), codes); err != nil {
		t.Fatalf("Put: %v", err)
	}

	res, err := s.ConsumeBackupCode(ctx, "u1", codes[0], now)
	if err != nil || res != BackupCodeConsumed {
		t.Fatalf("first consume: %v err=%v", res, err)
	}
	res, err = s.ConsumeBackupCode(ctx, "u1", codes[0], now)
	if err != nil || res != BackupCodeAlreadyUsed {
		t.Fatalf("second consume: %v err=%v", res, err)
	}
	res, err = s.ConsumeBackupCode(ctx, "u1", sha256.Sum256([]byte("nope")), now)
	if err != nil || res != BackupCodeNotFound {
		t.Fatalf("unknown code: %v err=%v", res, err)
	}
	if n, _ := s.CountUnusedBackupCodes(ctx, "u1"); n != 1 {
		t.Fatalf("expected 1 unused code, got %d", n)
	}
}

func TestConsumeBackupCodeConcurrentExactlyOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewCredentialStore(rdb, "t")
	ctx := context.Background()
	now := time.Now()
	codes := testCodes("a", 1)

	if err := s.Put(ctx, "u1", testCredential(now), codes); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var consumed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.ConsumeBackupCode(ctx, "u1", codes[0], now)
			if err != nil {
				t.Errorf("ConsumeBackupCode: %v", err)
				return
			}
			if res == BackupCodeConsumed {
				consumed.Add(1)
			}
		}()
	}
	wg.Wait()

	if consumed.Load() != 1 {
		t.Fatalf("expected exactly one consumption, got %d", consumed.Load())
	}
}

func TestReplaceBackupCodesRequiresCredential(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewCredentialStore(rdb, "t")
	ctx := context.Background()

	if err := s.ReplaceBackupCodes(ctx, "ghost", testCodes("a", 2)); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}

	old := testCodes("a", 2)
	if err := s.Put(ctx, "u1", testCredential(time.Now()), old); err != nil {
		t.Fatalf("Put: %v", err)
	}
	fresh := testCodes("z", 4)
	if err := s.ReplaceBackupCodes(ctx, "u1", fresh); err != nil {
		t.Fatalf("ReplaceBackupCodes: %v", err)
	}
	if res, _ := s.ConsumeBackupCode(ctx, "u1", old[1], time.Now()); res != BackupCodeNotFound {
		t.Fatalf("old code survived replacement: %v", res)
	}
	if n, _ := s.CountUnusedBackupCodes(ctx, "u1"); n != 4 {
		t.Fatalf("expected 4 fresh codes, got %d", n)
	}
}

func TestAdvanceCounterRejectsReplay(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewCredentialStore(rdb, "t")
	ctx := context.Background()

	for _, tc := range []struct {
		counter int64
		want    bool
	}{
		{10, true},
		{10, false},
		{9, false},
		{11, true},
	} {
		ok, err := s.AdvanceCounter(ctx, "u1", tc.counter)
		if err != nil || ok != tc.want {
			t.Fatalf("counter %d: expected %v, got %v err=%v", tc.counter, tc.want, ok, err)
		}
	}
}

func TestCredentialBackendFailureIsWrapped(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewCredentialStore(rdb, "t")
	mr.Close()

	if _, err := s.Get(context.Background(), "u1"); !errors.Is(err, ErrCredentialBackend) {
		t.Fatalf("expected ErrCredentialBackend, got %v", err)
	}
	if _, err := s.ConsumeBackupCode(context.Background(), "u1", [32]byte{}, time.Now()); !errors.Is(err, ErrCredentialBackend) {
		t.Fatalf("expected ErrCredentialBackend, got %v", err)
	}
}

func TestDecodeCredentialRejectsCorruptRecords(t *testing.T) {
	for _, data := range [][]byte{nil, {9}, {1, 0, 6}} {
		if _, err := decodeCredential(data); !errors.Is(err, ErrCredentialCorrupt) {
			t.Fatalf("%v: expected ErrCredentialCorrupt, got %v", data, err)
		}
	}
}
