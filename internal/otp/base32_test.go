package otp

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func TestBase32RoundTrip(t *testing.T) {
	for n := 1; n <= 64; n++ {
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			t.Fatalf("rand: %v", err)
		}
		enc := EncodeBase32(b)
		if strings.Contains(enc, "=") {
			t.Fatalf("len %d: unexpected padding in %q", n, enc)
		}
		dec, err := DecodeBase32(enc)
		if err != nil {
			t.Fatalf("len %d: decode: %v", n, err)
		}
		if !bytes.Equal(dec, b) {
			t.Fatalf("len %d: round trip mismatch", n)
		}
	}
}

func TestBase32DecodeKnownValues(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"MY", "f"},
		{"MZXQ", "fo"},
		{"MZXW6", "foo"},
		{"MZXW6YQ", "foob"},
		{"MZXW6YTB", "fooba"},
		{"MZXW6YTBOI", "foobar"},
		{"MZXW6YTBOI======", "foobar"},
		{"mzxw6ytboi", "foobar"},
		{"  MZXW6YTBOI\n", "foobar"},
		{"GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ", "12345678901234567890"},
	}
	for _, tc := range cases {
		got, err := DecodeBase32(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestBase32DecodeDiscardsTrailingPartialByte(t *testing.T) {
	// 3 characters carry 15 bits: one full byte plus 7 discarded bits.
	got, err := DecodeBase32("MZX")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != "f" {
		t.Fatalf("expected %q, got %q", "f", got)
	}
}

func TestBase32DecodeRejectsInvalidInput(t *testing.T) {
	for _, in := range []string{"", "   ", "====", "A", "MZ1W", "MZ8W", "MZ W6", "MZ=W6", "MZXW6!", "MZXÉ"} {
		_, err := DecodeBase32(in)
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("%q: expected ErrInvalidEncoding, got %v", in, err)
		}
	}
}

func TestBuildProvisioningURI(t *testing.T) {
	got := BuildProvisioningURI(ProvisioningParams{
		Issuer:    "Acme Co",
		Account:   "alice@example.com",
		Secret:    "JBSWY3DPEHPK3PXP",
		Algorithm: AlgSHA256,
		Digits:    8,
		Period:    60,
	})
	want := "otpauth://totp/Acme%20Co:alice@example.com?algorithm=SHA256&digits=8&issuer=Acme%20Co&period=60&secret=JBSWY3DPEHPK3PXP"
	if got != want {
		t.Fatalf("unexpected uri\nwant %s\ngot  %s", want, got)
	}

	bare := BuildProvisioningURI(ProvisioningParams{Account: "bob", Secret: "JBSWY3DPEHPK3PXP"})
	if bare != "otpauth://totp/bob?algorithm=SHA1&digits=6&period=30&secret=JBSWY3DPEHPK3PXP" {
		t.Fatalf("unexpected issuer-less uri %s", bare)
	}
}

func TestGenerateSecretSizes(t *testing.T) {
	s, err := GenerateSecret(nil, 0)
	if err != nil || len(s) != DefaultSecretBytes {
		t.Fatalf("expected default %d bytes, got %d err=%v", DefaultSecretBytes, len(s), err)
	}
	if _, err := GenerateSecret(nil, MinSecretBytes-1); !errors.Is(err, ErrSecretSize) {
		t.Fatalf("expected ErrSecretSize, got %v", err)
	}
	if _, err := GenerateSecret(bytes.NewReader([]byte{1, 2, 3}), 20); err == nil {
		t.Fatal("expected short entropy read to fail")
	}
}

func TestNumericCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := NumericCode(nil, 8)
		if err != nil {
			t.Fatalf("NumericCode: %v", err)
		}
		if len(code) != 8 || !isNumeric(code) {
			t.Fatalf("unexpected code %q", code)
		}
	}
	if _, err := NumericCode(nil, 4); !errors.Is(err, ErrInvalidDigits) {
		t.Fatalf("expected ErrInvalidDigits, got %v", err)
	}
}
