package otp

import (
	"net/url"
	"strconv"
	"strings"
)

// ProvisioningParams are the inputs of an otpauth:// key URI.
type ProvisioningParams struct {
	Issuer    string
	Account   string
	Secret    string // base32, unpadded
	Algorithm Algorithm
	Digits    int
	Period    int
}

// BuildProvisioningURI assembles the Key Uri Format understood by
// authenticator apps. It performs no I/O and is deterministic.
func BuildProvisioningURI(p ProvisioningParams) string {
	p.Issuer = strings.TrimSpace(p.Issuer)
	if p.Algorithm == "" {
		p.Algorithm = AlgSHA1
	}
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}

	label := p.Account
	if p.Issuer != "" {
		label = p.Issuer + ":" + p.Account
	}

	v := url.Values{}
	v.Set("secret", strings.TrimRight(p.Secret, "="))
	if p.Issuer != "" {
		v.Set("issuer", p.Issuer)
	}
	v.Set("algorithm", string(p.Algorithm))
	v.Set("digits", strconv.Itoa(p.Digits))
	v.Set("period", strconv.Itoa(p.Period))

	// spaces must be %20 in both label and query
	return "otpauth://totp/" + url.PathEscape(label) + "?" + strings.ReplaceAll(v.Encode(), "+", "%20")
}
