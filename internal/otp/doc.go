// Package otp implements the one-time-password primitives: RFC4648 base32,
// RFC4226 HOTP, RFC6238 TOTP window verification, secret and numeric code
// generation, and otpauth:// provisioning URIs.
//
// # Architecture boundaries
//
// Everything here is pure computation over caller-supplied keys, clocks and
// random sources. Persistence, lockout and replay tracking belong to the
// engine.
//
// # What this package must NOT do
//
//   - Perform I/O other than reading from the supplied random source.
//   - Log or retain key material.
//   - Import goOTP or any sibling internal package.
package otp
