package goOTP

import (
	"github.com/MrEthical07/goOTP/internal/security"
)

// SecurityReport is the effective security posture of an engine, including
// warnings for settings weaker than the hardened profile.
type SecurityReport = security.Report

// SecurityReport summarizes the engine's configuration. It performs no I/O.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	_, builtinStore := e.store.(*redisCredentialStore)

	return security.BuildReport(security.ReportInput{
		ProductionMode:       e.config.Security.ProductionMode,
		Issuer:               e.config.TOTP.Issuer,
		Algorithm:            e.config.TOTP.Algorithm,
		Digits:               e.config.TOTP.Digits,
		Period:               e.config.TOTP.Period,
		Window:               e.config.TOTP.Window,
		SecretBytes:          e.config.TOTP.SecretBytes,
		SealerConfigured:     e.sealer != nil,
		RequireConfirmation:  e.config.TOTP.RequireConfirmation,
		ReplayProtection:     e.config.TOTP.EnforceReplayProtection,
		BackupCodeCount:      e.config.BackupCodes.Count,
		BackupCodeLength:     e.config.BackupCodes.Length,
		LockoutThreshold:     e.config.Lockout.Threshold,
		LockoutDuration:      e.config.Lockout.Duration,
		FailureWindow:        e.config.Lockout.FailureWindow,
		AlternateEnabled:     e.config.AlternateOTP.Enabled,
		AlternateChannels:    e.config.AlternateOTP.Channels,
		AlternateTTL:         e.config.AlternateOTP.TTL,
		InvalidatePrevious:   e.config.AlternateOTP.InvalidatePrevious,
		ResendCooldown:       e.config.AlternateOTP.ResendCooldown,
		AuditEnabled:         e.audit != nil,
		MetricsEnabled:       e.metrics.Enabled(),
		ExternalCredentialDB: e.store != nil && !builtinStore,
	})
}
