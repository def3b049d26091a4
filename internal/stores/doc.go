// Package stores provides the Redis-backed records of the OTP engine: TOTP
// credentials with their backup code sets, and short-lived alternate-channel
// (SMS/email) challenges.
//
// # Design
//
// Records are versioned and binary-encoded. Single-record state transitions
// (backup code consumption, replay counter advance, code set replacement) run
// as Lua scripts; multi-record reads followed by a write (challenge consume,
// enrollment confirmation) use WATCH/MULTI optimistic transactions with
// bounded retry. Backup codes and alternate codes are only ever stored as
// SHA-256 hashes and challenge hashes are compared in constant time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT generate
// codes, track lockout, or decide verification outcomes; those belong to the
// engine and internal/flows.
//
// # What this package must NOT do
//
//   - Import goOTP or any sibling internal package.
//   - Log or expose plaintext secrets or codes.
//   - Use non-constant-time comparisons for secret matching.
package stores
