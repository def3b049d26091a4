// Package goOTP is a one-time-password authentication engine: TOTP
// enrollment and verification (RFC 4226 / RFC 6238), single-use backup
// codes, numeric codes for SMS or email delivery, and a brute-force lockout
// shared by all of them.
//
// The engine works on opaque principal ids. It never sends messages, renders
// QR codes or manages sessions; callers take a VerifyResult and act on it.
//
// # Architecture boundaries
//
// goOTP is the public surface: [Engine], [Builder], [Config], [VerifyResult]
// and the [CredentialStore] and [SecretSealer] interfaces. Code generation,
// Redis scripts, flow orchestration and audit dispatch live under internal/.
// A Postgres CredentialStore is provided by the pgstore sub-package.
//
// # Results and errors
//
// Verification never reports a rejected code through the error return.
// VerifyResult.Status is one of VerifySuccess, VerifyFailure, VerifyLocked or
// VerifyNotEnrolled, and Reason carries the sentinel (ErrMismatch,
// ErrAlreadyUsed, ErrExpired, ErrInvalidEncoding, ErrLocked, ErrNotEnrolled).
// The error return carries *StorageError, which matches ErrStorage, and misuse
// errors such as ErrPrincipalRequired.
//
// # Concurrency
//
// Engine methods are safe for concurrent use. Per-principal atomicity comes
// from Redis Lua scripts (lockout, backup codes, replay counter) and
// WATCH/MULTI transactions (alternate challenges). The only background
// goroutine is the audit dispatcher, stopped by [Engine.Close].
package goOTP
