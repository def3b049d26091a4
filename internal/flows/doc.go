// Package flows contains pure-function orchestrators for the verification
// paths of the Engine.
//
// [RunGatedVerify] is shared by TOTP, backup code and alternate-channel
// verification: an attempt slot is reserved first, then the channel's
// evaluator runs, then the slot is settled (cleared on success, refunded when
// the attempt was not a guess). [RunRegenerateBackupCodes] and the backup code
// helpers produce, normalise and hash recovery codes.
//
// # Architecture boundaries
//
// Flow functions coordinate the attempt tracker, stores, audit dispatcher and
// metrics through the function fields of their dependency structs. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goOTP (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
