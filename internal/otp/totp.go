package otp

import (
	"crypto/subtle"
	"errors"
	"time"
)

const (
	DefaultDigits = 6
	DefaultPeriod = 30
	DefaultWindow = 1
	MaxWindow     = 10
)

var (
	ErrInvalidPeriod = errors.New("otp period must be positive")
	ErrInvalidWindow = errors.New("otp window out of range")
)

// Params describes one TOTP credential.
type Params struct {
	Digits    int
	Period    int // seconds
	Algorithm Algorithm
	Window    int
}

func (p Params) withDefaults() Params {
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	if p.Algorithm == "" {
		p.Algorithm = AlgSHA1
	}
	return p
}

// Counter returns floor(unix(t) / period). Times before the epoch map to a
// negative counter, which never verifies.
func Counter(t time.Time, period int) int64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	unix := t.Unix()
	if unix < 0 {
		return -1
	}
	return unix / int64(period)
}

// TOTPAt returns the code valid at t.
func TOTPAt(key []byte, t time.Time, p Params) (string, error) {
	p = p.withDefaults()
	if p.Period < 0 {
		return "", ErrInvalidPeriod
	}
	c := Counter(t, p.Period)
	if c < 0 {
		return "", ErrInvalidPeriod
	}
	return HOTP(key, uint64(c), p.Digits, p.Algorithm)
}

// Verify checks code against every step in [now-window, now+window].
//
// All candidates are generated and compared regardless of an earlier match so
// the running time does not reveal which step matched. The returned counter is
// the earliest matching step and is meaningful only when ok is true.
func Verify(key []byte, code string, now time.Time, p Params) (counter int64, ok bool, err error) {
	p = p.withDefaults()
	if p.Period < 0 {
		return 0, false, ErrInvalidPeriod
	}
	if p.Window < 0 || p.Window > MaxWindow {
		return 0, false, ErrInvalidWindow
	}
	if p.Digits < MinDigits || p.Digits > MaxDigits {
		return 0, false, ErrInvalidDigits
	}
	if len(key) == 0 {
		return 0, false, ErrEmptyKey
	}
	if len(code) != p.Digits || !isNumeric(code) {
		return 0, false, nil
	}

	current := Counter(now, p.Period)
	candidate := make([]byte, p.Digits)
	submitted := []byte(code)

	var found int
	var matched uint64
	for i := -p.Window; i <= p.Window; i++ {
		c := current + int64(i)
		if c < 0 {
			continue
		}
		if _, err := hotpInto(candidate, key, uint64(c), p.Digits, p.Algorithm); err != nil {
			return 0, false, err
		}
		eq := subtle.ConstantTimeCompare(candidate, submitted)
		first := eq & (1 - found)
		mask := -uint64(first)
		matched = (matched &^ mask) | (uint64(c) & mask)
		found |= eq
	}

	if found == 0 {
		return 0, false, nil
	}
	return int64(matched), true, nil
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
