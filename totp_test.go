package goOTP

import (
	"errors"
	"testing"
	"time"

	pquernaotp "github.com/pquerna/otp"
)

func TestHOTPRFC4226Vectors(t *testing.T) {
	key := []byte("12345678901234567890")
	want := []string{"755224", "287082", "359152", "969429", "338314", "254676", "287922", "162583", "399871", "520489"}

	for counter, code := range want {
		got, err := HOTP(key, uint64(counter), 6, "SHA1")
		if err != nil {
			t.Fatalf("HOTP(%d) failed: %v", counter, err)
		}
		if got != code {
			t.Fatalf("HOTP(%d): expected %s, got %s", counter, code, got)
		}
	}
}

func TestTOTPAtRFC6238Vectors(t *testing.T) {
	keys := map[string][]byte{
		"SHA1":   []byte("12345678901234567890"),
		"SHA256": []byte("12345678901234567890123456789012"),
		"SHA512": []byte("1234567890123456789012345678901234567890123456789012345678901234"),
	}
	tests := []struct {
		unix int64
		alg  string
		want string
	}{
		{59, "SHA1", "94287082"},
		{59, "SHA256", "46119246"},
		{59, "SHA512", "90693936"},
		{1111111109, "SHA1", "07081804"},
		{1234567890, "SHA256", "91819424"},
		{2000000000, "SHA512", "38618901"},
		{20000000000, "SHA1", "65353130"},
	}
	for _, tc := range tests {
		got, err := TOTPAt(keys[tc.alg], time.Unix(tc.unix, 0), 8, 30, tc.alg)
		if err != nil {
			t.Fatalf("TOTPAt(%d, %s) failed: %v", tc.unix, tc.alg, err)
		}
		if got != tc.want {
			t.Fatalf("TOTPAt(%d, %s): expected %s, got %s", tc.unix, tc.alg, tc.want, got)
		}
	}
}

func TestVerifyTOTPCodeReturnsMatchedStep(t *testing.T) {
	key := []byte("12345678901234567890")
	now := time.Unix(1_700_000_015, 0)

	code, err := TOTPAt(key, now.Add(-30*time.Second), 6, 30, "SHA1")
	if err != nil {
		t.Fatalf("TOTPAt failed: %v", err)
	}
	counter, ok, err := VerifyTOTPCode(key, code, now, 6, 30, 1, "SHA1")
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	if want := now.Unix()/30 - 1; counter != want {
		t.Fatalf("expected counter %d, got %d", want, counter)
	}

	if _, ok, _ := VerifyTOTPCode(key, code, now, 6, 30, 0, "SHA1"); ok {
		t.Fatal("window 0 must reject the previous step")
	}
}

func TestBase32RoundTripAndStrictness(t *testing.T) {
	raw := []byte("hello, authenticator")
	enc := EncodeBase32(raw)
	dec, err := DecodeBase32(enc)
	if err != nil || string(dec) != string(raw) {
		t.Fatalf("round trip failed: %q (%v)", dec, err)
	}

	for _, bad := range []string{"JBSW Y3DP", "JBSWY3D1", "JBSW-Y3DP"} {
		if _, err := DecodeBase32(bad); !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("%q: expected ErrInvalidEncoding, got %v", bad, err)
		}
	}
}

func TestBuildProvisioningURIParsesWithAuthenticatorLibrary(t *testing.T) {
	secret, err := GenerateSecret(nil, 0)
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	uri, err := BuildProvisioningURI(ProvisioningParams{
		Issuer:    "Acme Corp",
		Account:   "bob",
		Secret:    EncodeBase32(secret),
		Algorithm: "SHA512",
		Digits:    8,
		Period:    60,
	})
	if err != nil {
		t.Fatalf("BuildProvisioningURI failed: %v", err)
	}

	key, err := pquernaotp.NewKeyFromURL(uri)
	if err != nil {
		t.Fatalf("NewKeyFromURL failed: %v", err)
	}
	if key.Issuer() != "Acme Corp" || key.AccountName() != "bob" {
		t.Fatalf("unexpected label: %s / %s", key.Issuer(), key.AccountName())
	}
	if key.Algorithm() != pquernaotp.AlgorithmSHA512 || key.Digits() != pquernaotp.DigitsEight || key.Period() != 60 {
		t.Fatalf("unexpected parameters in %s", uri)
	}

	if _, err := BuildProvisioningURI(ProvisioningParams{Algorithm: "MD5"}); err == nil {
		t.Fatal("expected unsupported algorithm to fail")
	}
}
