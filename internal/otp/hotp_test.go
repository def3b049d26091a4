package otp

import (
	"errors"
	"testing"
	"time"
)

var rfcSeedSHA1 = []byte("12345678901234567890")

func TestHOTPRFC4226AppendixD(t *testing.T) {
	want := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}
	for counter, code := range want {
		got, err := HOTP(rfcSeedSHA1, uint64(counter), 6, AlgSHA1)
		if err != nil {
			t.Fatalf("counter %d: %v", counter, err)
		}
		if got != code {
			t.Fatalf("counter %d: expected %s, got %s", counter, code, got)
		}
	}
}

func TestHOTPZeroPadsShortValues(t *testing.T) {
	// counter 1111111109/30 under SHA1 8 digits yields a leading zero.
	got, err := HOTP(rfcSeedSHA1, 1111111109/30, 8, AlgSHA1)
	if err != nil {
		t.Fatalf("HOTP: %v", err)
	}
	if got != "07081804" {
		t.Fatalf("expected 07081804, got %s", got)
	}
}

func TestHOTPRejectsBadInput(t *testing.T) {
	if _, err := HOTP(nil, 0, 6, AlgSHA1); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := HOTP(rfcSeedSHA1, 0, 5, AlgSHA1); !errors.Is(err, ErrInvalidDigits) {
		t.Fatalf("expected ErrInvalidDigits for 5, got %v", err)
	}
	if _, err := HOTP(rfcSeedSHA1, 0, 11, AlgSHA1); !errors.Is(err, ErrInvalidDigits) {
		t.Fatalf("expected ErrInvalidDigits for 11, got %v", err)
	}
	if _, err := HOTP(rfcSeedSHA1, 0, 6, Algorithm("MD5")); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestParseAlgorithm(t *testing.T) {
	cases := map[string]Algorithm{
		"":        AlgSHA1,
		"sha1":    AlgSHA1,
		"SHA-256": AlgSHA256,
		"sha512":  AlgSHA512,
	}
	for in, want := range cases {
		got, err := ParseAlgorithm(in)
		if err != nil || got != want {
			t.Fatalf("ParseAlgorithm(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseAlgorithm("md5"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestTOTPAtRFC6238Vectors(t *testing.T) {
	seeds := map[Algorithm][]byte{
		AlgSHA1:   rfcSeedSHA1,
		AlgSHA256: []byte("12345678901234567890123456789012"),
		AlgSHA512: []byte("1234567890123456789012345678901234567890123456789012345678901234"),
	}
	cases := []struct {
		ts   int64
		alg  Algorithm
		code string
	}{
		{59, AlgSHA1, "94287082"},
		{59, AlgSHA256, "46119246"},
		{59, AlgSHA512, "90693936"},
		{1111111109, AlgSHA1, "07081804"},
		{1111111109, AlgSHA256, "68084774"},
		{1111111109, AlgSHA512, "25091201"},
		{1111111111, AlgSHA1, "14050471"},
		{1111111111, AlgSHA256, "67062674"},
		{1111111111, AlgSHA512, "99943326"},
		{1234567890, AlgSHA1, "89005924"},
		{1234567890, AlgSHA256, "91819424"},
		{1234567890, AlgSHA512, "93441116"},
		{2000000000, AlgSHA1, "69279037"},
		{2000000000, AlgSHA256, "90698825"},
		{2000000000, AlgSHA512, "38618901"},
		{20000000000, AlgSHA1, "65353130"},
		{20000000000, AlgSHA256, "77737706"},
		{20000000000, AlgSHA512, "47863826"},
	}

	for _, tc := range cases {
		p := Params{Digits: 8, Period: 30, Algorithm: tc.alg}
		got, err := TOTPAt(seeds[tc.alg], time.Unix(tc.ts, 0), p)
		if err != nil {
			t.Fatalf("%s t=%d: %v", tc.alg, tc.ts, err)
		}
		if got != tc.code {
			t.Fatalf("%s t=%d: expected %s, got %s", tc.alg, tc.ts, tc.code, got)
		}

		counter, ok, err := Verify(seeds[tc.alg], tc.code, time.Unix(tc.ts, 0), p)
		if err != nil || !ok {
			t.Fatalf("%s t=%d: verify ok=%v err=%v", tc.alg, tc.ts, ok, err)
		}
		if counter != tc.ts/30 {
			t.Fatalf("%s t=%d: expected counter %d, got %d", tc.alg, tc.ts, tc.ts/30, counter)
		}
	}
}
