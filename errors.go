package goOTP

import (
	"errors"

	"github.com/MrEthical07/goOTP/internal/otp"
)

var (
	// ErrInvalidEncoding reports a secret or code that is not valid base32.
	ErrInvalidEncoding = otp.ErrInvalidEncoding
	// ErrNotEnrolled reports a principal without an active TOTP credential.
	ErrNotEnrolled = errors.New("principal not enrolled")
	// ErrLocked reports a principal whose attempt tracker is in the locked state.
	ErrLocked = errors.New("principal locked")
	// ErrExpired reports a code whose validity period has elapsed.
	ErrExpired = errors.New("code expired")
	// ErrAlreadyUsed reports a single-use code presented a second time.
	ErrAlreadyUsed = errors.New("code already used")
	// ErrMismatch reports a code that matches nothing on record.
	ErrMismatch = errors.New("code mismatch")
	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("otp storage unavailable")

	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrPrincipalRequired is returned when an empty principal id is passed.
	ErrPrincipalRequired = errors.New("principal id required")
	// ErrInvalidChannel is returned for an alternate channel that is not configured.
	ErrInvalidChannel = errors.New("invalid alternate otp channel")
	// ErrDestinationRequired is returned when an alternate code is issued without a destination.
	ErrDestinationRequired = errors.New("alternate otp destination required")
	// ErrAlternateOTPDisabled is returned when alternate-channel codes are turned off.
	ErrAlternateOTPDisabled = errors.New("alternate otp disabled")
	// ErrAlternateOTPCooldown is returned when a code was issued too recently.
	ErrAlternateOTPCooldown = errors.New("alternate otp resend cooldown active")
	// ErrAlternateOTPRateLimited is returned when the issuance cap for the window is reached.
	ErrAlternateOTPRateLimited = errors.New("alternate otp issuance rate limited")
	// ErrBackupCodesDisabled is returned by RegenerateBackupCodes when BackupCodes.Count is 0.
	ErrBackupCodesDisabled = errors.New("backup codes disabled")
	// ErrCredentialNotFound is returned by CredentialStore implementations for a missing principal.
	ErrCredentialNotFound = errors.New("otp credential not found")
	// ErrInvalidEnrollOption is returned when an EnrollOption carries an unsupported value.
	ErrInvalidEnrollOption = errors.New("invalid enroll option")
)

// StorageError wraps a persistence failure. It is never turned into a
// successful verification.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ErrStorage.Error()
	}
	if e.Op == "" {
		return "otp storage: " + e.errText()
	}
	return "otp storage: " + e.Op + ": " + e.errText()
}

func (e *StorageError) errText() string {
	if e.Err == nil {
		return "unavailable"
	}
	return e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
