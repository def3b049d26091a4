package security

import "time"

// Report summarizes the effective security posture of an engine.
type Report struct {
	ProductionMode        bool
	Issuer                string
	Algorithm             string
	Digits                int
	Period                int
	Window                int
	SecretBytes           int
	SecretsSealed         bool
	ConfirmationRequired  bool
	ReplayProtection      bool
	BackupCodesEnabled    bool
	BackupCodeCount       int
	BackupCodeLength      int
	LockoutThreshold      int
	LockoutDuration       time.Duration
	LockoutDecays         bool
	AlternateOTPEnabled   bool
	AlternateChannels     []string
	AlternateOTPTTL       time.Duration
	InvalidatePrevious    bool
	ResendCooldown        time.Duration
	AuditEnabled          bool
	MetricsEnabled        bool
	DurableCredentialPath bool
	Warnings              []string
}

// ReportInput carries the raw configuration values BuildReport inspects.
type ReportInput struct {
	ProductionMode       bool
	Issuer               string
	Algorithm            string
	Digits               int
	Period               int
	Window               int
	SecretBytes          int
	SealerConfigured     bool
	RequireConfirmation  bool
	ReplayProtection     bool
	BackupCodeCount      int
	BackupCodeLength     int
	LockoutThreshold     int
	LockoutDuration      time.Duration
	FailureWindow        time.Duration
	AlternateEnabled     bool
	AlternateChannels    []string
	AlternateTTL         time.Duration
	InvalidatePrevious   bool
	ResendCooldown       time.Duration
	AuditEnabled         bool
	MetricsEnabled       bool
	ExternalCredentialDB bool
}

func BuildReport(input ReportInput) Report {
	r := Report{
		ProductionMode:        input.ProductionMode,
		Issuer:                input.Issuer,
		Algorithm:             input.Algorithm,
		Digits:                input.Digits,
		Period:                input.Period,
		Window:                input.Window,
		SecretBytes:           input.SecretBytes,
		SecretsSealed:         input.SealerConfigured,
		ConfirmationRequired:  input.RequireConfirmation,
		ReplayProtection:      input.ReplayProtection,
		BackupCodesEnabled:    input.BackupCodeCount > 0,
		BackupCodeCount:       input.BackupCodeCount,
		BackupCodeLength:      input.BackupCodeLength,
		LockoutThreshold:      input.LockoutThreshold,
		LockoutDuration:       input.LockoutDuration,
		LockoutDecays:         input.FailureWindow > 0,
		AlternateOTPEnabled:   input.AlternateEnabled,
		AlternateOTPTTL:       input.AlternateTTL,
		InvalidatePrevious:    input.InvalidatePrevious,
		ResendCooldown:        input.ResendCooldown,
		AuditEnabled:          input.AuditEnabled,
		MetricsEnabled:        input.MetricsEnabled,
		DurableCredentialPath: input.ExternalCredentialDB,
	}
	if input.AlternateEnabled {
		r.AlternateChannels = append([]string(nil), input.AlternateChannels...)
	}

	if !input.SealerConfigured {
		r.Warnings = append(r.Warnings, "totp secrets are stored unsealed")
	}
	if input.Window > 1 {
		r.Warnings = append(r.Warnings, "totp window wider than one step")
	}
	if !input.ReplayProtection {
		r.Warnings = append(r.Warnings, "totp codes may be reused within their window")
	}
	if input.LockoutThreshold > 5 {
		r.Warnings = append(r.Warnings, "lockout threshold above 5")
	}
	if input.AlternateEnabled && !input.InvalidatePrevious {
		r.Warnings = append(r.Warnings, "earlier alternate codes stay valid after reissue")
	}
	if input.AlternateEnabled && input.ResendCooldown <= 0 {
		r.Warnings = append(r.Warnings, "alternate otp issuance has no resend cooldown")
	}
	return r
}
