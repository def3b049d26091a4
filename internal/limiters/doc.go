// Package limiters provides the OTP engine's attempt and delivery throttles.
//
// # Limiters
//
//   - [LockoutTracker]: shared attempt counter per principal. Every attempt
//     is reserved before its code is evaluated; Normal(n) moves to
//     Locked(until) when a reservation reaches the threshold and back to
//     Normal(0) once the lock lapses or a verification succeeds. Attempts that
//     were not guesses are refunded. Each transition is one Lua script, so a
//     burst of parallel requests is capped at the threshold.
//   - [AlternateIssueLimiter]: resend cooldown plus a fixed-window cap on
//     SMS/email code issuance, built on internal/rate.
//
// All limiters are nil-safe: calling any method on a nil receiver is a no-op.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy
// thresholds come from Config structs supplied at construction time, and the
// current time is always supplied by the caller.
//
// # What this package must NOT do
//
//   - Import goOTP or any sibling internal package except internal/rate.
//   - Decide verification outcomes; flow functions decide consequences.
package limiters
