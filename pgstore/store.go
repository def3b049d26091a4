package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements goOTP.CredentialStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ goOTP.CredentialStore = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var backupCodeColumns = []string{"principal", "code_hash"}

func (s *Store) PutCredential(ctx context.Context, principal string, rec *goOTP.CredentialRecord, backupHashes [][32]byte) error {
	if rec == nil {
		return errors.New("pgstore: nil credential record")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO otp_credentials
				(principal, secret, algorithm, digits, period, confirmed, last_counter, created_at, updated_at, confirmed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (principal) DO UPDATE SET
				secret = EXCLUDED.secret,
				algorithm = EXCLUDED.algorithm,
				digits = EXCLUDED.digits,
				period = EXCLUDED.period,
				confirmed = EXCLUDED.confirmed,
				last_counter = EXCLUDED.last_counter,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at,
				confirmed_at = EXCLUDED.confirmed_at`,
			principal, rec.Secret, rec.Algorithm, rec.Digits, rec.Period, rec.Confirmed,
			rec.LastUsedCounter, rec.CreatedAt, rec.UpdatedAt, nullTime(rec.ConfirmedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert credential: %w", err)
		}
		return replaceCodes(ctx, tx, principal, backupHashes)
	})
}

func (s *Store) GetCredential(ctx context.Context, principal string) (*goOTP.CredentialRecord, error) {
	var (
		rec         goOTP.CredentialRecord
		confirmedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT secret, algorithm, digits, period, confirmed, last_counter, created_at, updated_at, confirmed_at
		FROM otp_credentials WHERE principal = $1`, principal,
	).Scan(&rec.Secret, &rec.Algorithm, &rec.Digits, &rec.Period, &rec.Confirmed,
		&rec.LastUsedCounter, &rec.CreatedAt, &rec.UpdatedAt, &confirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goOTP.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if confirmedAt != nil {
		rec.ConfirmedAt = *confirmedAt
	}
	return &rec, nil
}

func (s *Store) ConfirmCredential(ctx context.Context, principal string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE otp_credentials
		SET confirmed = TRUE, confirmed_at = COALESCE(confirmed_at, $2), updated_at = $2
		WHERE principal = $1`, principal, at)
	if err != nil {
		return fmt.Errorf("confirm credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return goOTP.ErrCredentialNotFound
	}
	return nil
}

// DeleteCredential removes the credential; backup codes follow by cascade.
func (s *Store) DeleteCredential(ctx context.Context, principal string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM otp_credentials WHERE principal = $1`, principal)
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, principal string, backupHashes [][32]byte) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM otp_credentials WHERE principal = $1 FOR UPDATE`, principal).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return goOTP.ErrCredentialNotFound
		}
		if err != nil {
			return fmt.Errorf("lock credential: %w", err)
		}
		return replaceCodes(ctx, tx, principal, backupHashes)
	})
}

func (s *Store) ConsumeBackupCode(ctx context.Context, principal string, hash [32]byte, usedAt time.Time) (goOTP.BackupConsumeResult, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE otp_backup_codes SET used_at = $3
		WHERE principal = $1 AND code_hash = $2 AND used_at IS NULL`,
		principal, hash[:], usedAt)
	if err != nil {
		return goOTP.BackupCodeNotFound, fmt.Errorf("consume backup code: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return goOTP.BackupCodeConsumed, nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM otp_backup_codes WHERE principal = $1 AND code_hash = $2)`,
		principal, hash[:]).Scan(&exists)
	if err != nil {
		return goOTP.BackupCodeNotFound, fmt.Errorf("lookup backup code: %w", err)
	}
	if exists {
		return goOTP.BackupCodeAlreadyUsed, nil
	}
	return goOTP.BackupCodeNotFound, nil
}

func (s *Store) CountUnusedBackupCodes(ctx context.Context, principal string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM otp_backup_codes WHERE principal = $1 AND used_at IS NULL`,
		principal).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return n, nil
}

// AdvanceCounter reports false when counter is not newer than the stored
// step or when the principal has no credential.
func (s *Store) AdvanceCounter(ctx context.Context, principal string, counter int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE otp_credentials SET last_counter = $2
		WHERE principal = $1 AND last_counter < $2`, principal, counter)
	if err != nil {
		return false, fmt.Errorf("advance counter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func replaceCodes(ctx context.Context, tx pgx.Tx, principal string, hashes [][32]byte) error {
	if _, err := tx.Exec(ctx, `DELETE FROM otp_backup_codes WHERE principal = $1`, principal); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}
	if len(hashes) == 0 {
		return nil
	}
	rows := make([][]any, len(hashes))
	for i := range hashes {
		rows[i] = []any{principal, hashes[i][:]}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"otp_backup_codes"}, backupCodeColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
