package goOTP

import (
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/goOTP/internal/flows"
	"github.com/MrEthical07/goOTP/internal/otp"
)

// EncodeBase32 encodes b with the RFC 4648 alphabet and no padding.
func EncodeBase32(b []byte) string {
	return otp.EncodeBase32(b)
}

// DecodeBase32 decodes s case-insensitively, ignoring surrounding whitespace
// and trailing padding. Any other character outside the alphabet yields
// ErrInvalidEncoding.
func DecodeBase32(s string) ([]byte, error) {
	return otp.DecodeBase32(s)
}

// GenerateSecret draws n bytes from r (crypto/rand when nil). n = 0 selects
// the default of 20 bytes.
func GenerateSecret(r io.Reader, n int) ([]byte, error) {
	return otp.GenerateSecret(r, n)
}

// ProvisioningParams are the inputs of BuildProvisioningURI.
type ProvisioningParams struct {
	Issuer    string
	Account   string
	Secret    string // base32
	Algorithm string
	Digits    int
	Period    int
}

// BuildProvisioningURI returns the otpauth://totp/ key URI for p.
func BuildProvisioningURI(p ProvisioningParams) (string, error) {
	alg, err := otp.ParseAlgorithm(p.Algorithm)
	if err != nil {
		return "", err
	}
	return otp.BuildProvisioningURI(otp.ProvisioningParams{
		Issuer:    p.Issuer,
		Account:   p.Account,
		Secret:    p.Secret,
		Algorithm: alg,
		Digits:    p.Digits,
		Period:    p.Period,
	}), nil
}

// HOTP computes the RFC 4226 code for counter.
func HOTP(key []byte, counter uint64, digits int, algorithm string) (string, error) {
	alg, err := otp.ParseAlgorithm(algorithm)
	if err != nil {
		return "", err
	}
	return otp.HOTP(key, counter, digits, alg)
}

// TOTPAt computes the RFC 6238 code valid at t.
func TOTPAt(key []byte, t time.Time, digits, period int, algorithm string) (string, error) {
	alg, err := otp.ParseAlgorithm(algorithm)
	if err != nil {
		return "", err
	}
	return otp.TOTPAt(key, t, otp.Params{Digits: digits, Period: period, Algorithm: alg})
}

// VerifyTOTPCode checks code against key for every step within window of
// now and returns the matched step counter. It is stateless: no lockout and
// no replay tracking.
func VerifyTOTPCode(key []byte, code string, now time.Time, digits, period, window int, algorithm string) (int64, bool, error) {
	alg, err := otp.ParseAlgorithm(algorithm)
	if err != nil {
		return 0, false, err
	}
	return otp.Verify(key, normalizeNumericCode(code), now, otp.Params{
		Digits:    digits,
		Period:    period,
		Algorithm: alg,
		Window:    window,
	})
}

// GenerateBackupCodes draws count distinct codes of length characters from
// the unambiguous alphabet ABCDEFGHJKLMNPQRSTUVWXYZ23456789. Codes of 8 or
// more characters are split by a hyphen for display.
func GenerateBackupCodes(r io.Reader, count, length int) ([]string, error) {
	codes, _, err := flows.GenerateBackupCodeSet("", count, length, func(n int) (int, error) {
		return otp.RandomIndex(r, n)
	})
	return codes, err
}

type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = string(otp.AlgSHA1)
	}
	return &totpManager{config: cfg}
}

// resolve fills unset per-enrollment overrides from the engine defaults.
func (m *totpManager) resolve(o enrollOptions) (otp.Params, error) {
	algName := o.algorithm
	if algName == "" {
		algName = m.config.Algorithm
	}
	alg, err := otp.ParseAlgorithm(algName)
	if err != nil {
		return otp.Params{}, ErrInvalidEnrollOption
	}
	p := otp.Params{
		Digits:    m.config.Digits,
		Period:    m.config.Period,
		Algorithm: alg,
		Window:    m.config.Window,
	}
	if o.digits != 0 {
		if o.digits < otp.MinDigits || o.digits > otp.MaxDigits {
			return otp.Params{}, ErrInvalidEnrollOption
		}
		p.Digits = o.digits
	}
	if o.period != 0 {
		if o.period < 0 || o.period > 300 {
			return otp.Params{}, ErrInvalidEnrollOption
		}
		p.Period = o.period
	}
	return p, nil
}

// paramsFor rebuilds verification parameters from a stored record.
func (m *totpManager) paramsFor(rec *CredentialRecord) (otp.Params, error) {
	alg, err := otp.ParseAlgorithm(rec.Algorithm)
	if err != nil {
		return otp.Params{}, err
	}
	p := otp.Params{
		Digits:    rec.Digits,
		Period:    rec.Period,
		Algorithm: alg,
		Window:    m.config.Window,
	}
	if p.Digits == 0 {
		p.Digits = otp.DefaultDigits
	}
	if p.Period == 0 {
		p.Period = otp.DefaultPeriod
	}
	return p, nil
}

func (m *totpManager) provisionURI(account, secret string, p otp.Params) string {
	return otp.BuildProvisioningURI(otp.ProvisioningParams{
		Issuer:    m.config.Issuer,
		Account:   account,
		Secret:    secret,
		Algorithm: p.Algorithm,
		Digits:    p.Digits,
		Period:    p.Period,
	})
}

func (m *totpManager) verify(secret []byte, code string, now time.Time, p otp.Params) (int64, bool, error) {
	return otp.Verify(secret, normalizeNumericCode(code), now, p)
}

// normalizeNumericCode drops surrounding whitespace and the separators
// authenticator apps display ("123 456", "123-456").
func normalizeNumericCode(code string) string {
	code = strings.TrimSpace(code)
	if strings.ContainsAny(code, " -") {
		code = strings.NewReplacer(" ", "", "-", "").Replace(code)
	}
	return code
}
