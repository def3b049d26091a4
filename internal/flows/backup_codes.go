package flows

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strconv"
	"strings"
)

const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// maxBackupCodeRedraws bounds collision redraws for one set.
const maxBackupCodeRedraws = 64

var errBackupCodeCollisions = errors.New("backup code generation kept colliding")

type BackupCodeMetrics struct {
	BackupCodeRegenerated int
}

type BackupCodeEvents struct {
	BackupCodesGenerated string
}

type BackupCodeErrors struct {
	EngineNotReady   error
	PrincipalMissing error
	InvalidConfig    error
}

type BackupCodeDeps struct {
	BackupCodeCount  int
	BackupCodeLength int

	ReplaceBackupCodes func(context.Context, string, [][32]byte) error

	RandomIndex func(int) (int, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics BackupCodeMetrics
	Events  BackupCodeEvents
	Errors  BackupCodeErrors
}

// RunRegenerateBackupCodes draws a fresh set and atomically replaces the
// stored one. The plaintext codes are returned once and never persisted.
func RunRegenerateBackupCodes(ctx context.Context, principal string, deps BackupCodeDeps) ([]string, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.ReplaceBackupCodes == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if principal == "" {
		return nil, deps.Errors.PrincipalMissing
	}

	codes, hashes, err := GenerateBackupCodeSet(principal, deps.BackupCodeCount, deps.BackupCodeLength, deps.RandomIndex)
	if err != nil {
		if deps.Errors.InvalidConfig != nil {
			return nil, errors.Join(deps.Errors.InvalidConfig, err)
		}
		return nil, err
	}

	if err := deps.ReplaceBackupCodes(ctx, principal, hashes); err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.BackupCodeRegenerated)
	deps.EmitAudit(ctx, deps.Events.BackupCodesGenerated, true, principal, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(codes))}
	})
	return codes, nil
}

// GenerateBackupCodeSet draws count pairwise distinct codes. It returns the
// display form and the principal-bound hashes to persist.
func GenerateBackupCodeSet(principal string, count, length int, randomIndex func(int) (int, error)) ([]string, [][32]byte, error) {
	if count <= 0 || length <= 0 {
		return nil, nil, errors.New("backup code count and length must be positive")
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	redraws := 0

	for len(codes) < count {
		raw, err := NewBackupCode(length, randomIndex)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[raw]; dup {
			redraws++
			if redraws > maxBackupCodeRedraws {
				return nil, nil, errBackupCodeCollisions
			}
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, FormatBackupCode(raw))
		hashes = append(hashes, BackupCodeHash(principal, raw))
	}
	return codes, hashes, nil
}

func NewBackupCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// ValidBackupCodeShape reports whether a canonical code could have been
// issued with the given length.
func ValidBackupCodeShape(canonical string, length int) bool {
	if len(canonical) != length {
		return false
	}
	for i := 0; i < len(canonical); i++ {
		if strings.IndexByte(BackupCodeAlphabet, canonical[i]) < 0 {
			return false
		}
	}
	return true
}

func BackupCodeHash(principal, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(principal)+1+len(canonicalCode))
	data = append(data, principal...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

func normalizeBackupCodeDeps(deps *BackupCodeDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.RandomIndex == nil {
		deps.RandomIndex = cryptoRandomIndex
	}
}
