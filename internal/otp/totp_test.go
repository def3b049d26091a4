package otp

import (
	"testing"
	"time"

	pquernaotp "github.com/pquerna/otp"
	pquernatotp "github.com/pquerna/otp/totp"
)

func TestVerifyWindowBoundaries(t *testing.T) {
	key := rfcSeedSHA1
	p := Params{Digits: 6, Period: 30, Algorithm: AlgSHA1, Window: 1}
	issued := time.Unix(1_700_000_000, 0)
	code, err := TOTPAt(key, issued, p)
	if err != nil {
		t.Fatalf("TOTPAt: %v", err)
	}
	c := Counter(issued, 30)

	for _, delta := range []int64{-1, 0, 1} {
		now := time.Unix((c+delta)*30+5, 0)
		matched, ok, err := Verify(key, code, now, p)
		if err != nil || !ok {
			t.Fatalf("delta %d: expected acceptance, ok=%v err=%v", delta, ok, err)
		}
		if matched != c {
			t.Fatalf("delta %d: expected counter %d, got %d", delta, c, matched)
		}
	}

	for _, delta := range []int64{-3, -2, 2, 3} {
		now := time.Unix((c+delta)*30+5, 0)
		if _, ok, err := Verify(key, code, now, p); err != nil || ok {
			t.Fatalf("delta %d: expected rejection, ok=%v err=%v", delta, ok, err)
		}
	}
}

func TestVerifyWindowZeroIsExact(t *testing.T) {
	p := Params{Digits: 6, Period: 30, Window: 0}
	now := time.Unix(1_700_000_000, 0)
	code, err := TOTPAt(rfcSeedSHA1, now, p)
	if err != nil {
		t.Fatalf("TOTPAt: %v", err)
	}
	if _, ok, _ := Verify(rfcSeedSHA1, code, now, p); !ok {
		t.Fatal("expected exact step to verify")
	}
	if _, ok, _ := Verify(rfcSeedSHA1, code, now.Add(30*time.Second), p); ok {
		t.Fatal("expected next step to be rejected with window 0")
	}
}

func TestVerifyRejectsMalformedCandidates(t *testing.T) {
	p := Params{Digits: 6, Period: 30, Window: 1}
	now := time.Unix(1_700_000_000, 0)
	for _, code := range []string{"", "12345", "1234567", "12a456", " 12345"} {
		if _, ok, err := Verify(rfcSeedSHA1, code, now, p); err != nil || ok {
			t.Fatalf("code %q: expected plain mismatch, ok=%v err=%v", code, ok, err)
		}
	}
}

func TestVerifySkipsNegativeCounters(t *testing.T) {
	p := Params{Digits: 6, Period: 30, Window: 2}
	code, err := HOTP(rfcSeedSHA1, 0, 6, AlgSHA1)
	if err != nil {
		t.Fatalf("HOTP: %v", err)
	}
	counter, ok, err := Verify(rfcSeedSHA1, code, time.Unix(10, 0), p)
	if err != nil || !ok || counter != 0 {
		t.Fatalf("expected counter 0 match at epoch, got %d ok=%v err=%v", counter, ok, err)
	}
}

func TestVerifyRejectsInvalidParams(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	if _, _, err := Verify(rfcSeedSHA1, "123456", now, Params{Window: MaxWindow + 1}); err != ErrInvalidWindow {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if _, _, err := Verify(nil, "123456", now, Params{}); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestVerifyAgreesWithIndependentImplementation(t *testing.T) {
	secret, err := GenerateSecret(nil, DefaultSecretBytes)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	encoded := EncodeBase32(secret)
	now := time.Unix(1_720_000_123, 0)

	for _, alg := range []struct {
		ours   Algorithm
		theirs pquernaotp.Algorithm
	}{
		{AlgSHA1, pquernaotp.AlgorithmSHA1},
		{AlgSHA256, pquernaotp.AlgorithmSHA256},
		{AlgSHA512, pquernaotp.AlgorithmSHA512},
	} {
		opts := pquernatotp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    pquernaotp.DigitsSix,
			Algorithm: alg.theirs,
		}
		theirCode, err := pquernatotp.GenerateCodeCustom(encoded, now, opts)
		if err != nil {
			t.Fatalf("reference generate: %v", err)
		}
		ourCode, err := TOTPAt(secret, now, Params{Digits: 6, Period: 30, Algorithm: alg.ours})
		if err != nil {
			t.Fatalf("TOTPAt: %v", err)
		}
		if ourCode != theirCode {
			t.Fatalf("%s: code mismatch ours=%s reference=%s", alg.ours, ourCode, theirCode)
		}

		valid, err := pquernatotp.ValidateCustom(ourCode, encoded, now.Add(30*time.Second), opts)
		if err != nil || !valid {
			t.Fatalf("%s: reference rejected our code, valid=%v err=%v", alg.ours, valid, err)
		}
	}
}
