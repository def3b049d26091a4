// Package internal holds the engine's private building blocks.
//
// # Sub-packages
//
//   - otp: base32, HOTP/TOTP, secret generation and key URIs
//   - sealer: AES-256-GCM sealing of TOTP secrets
//   - stores: Redis credential and alternate-challenge storage
//   - limiters: shared lockout tracker and alternate issuance throttle
//   - rate: Redis fixed-window counters and cooldown slots
//   - flows: gated verification and backup code orchestration
//   - audit: async event dispatch
//   - metrics: lock-free counters and the latency histogram
//   - security: configuration posture report
package internal
