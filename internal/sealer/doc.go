// Package sealer encrypts OTP shared secrets at rest.
//
// # What this package must NOT do
//
//   - Log or cache plaintext secrets or key material.
//   - Import goOTP or any sibling internal package.
package sealer
