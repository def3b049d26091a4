// Package rate provides internal primitives used to build Redis-backed
// throttles for OTP delivery.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional PEXPIRE on first hit.
// Cooldown slots: SET NX PX; the slot frees itself when the key expires.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goOTP module.
package rate
