// Package security derives a read-only posture report from engine
// configuration. It has no side effects and is safe to call at any time.
package security
