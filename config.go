package goOTP

import (
	"errors"
	"time"

	"github.com/MrEthical07/goOTP/internal/otp"
)

// Alternate delivery channels understood by the engine.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override fields; the Builder validates it on Build.
type Config struct {
	TOTP         TOTPConfig
	BackupCodes  BackupCodeConfig
	Lockout      LockoutConfig
	AlternateOTP AlternateOTPConfig
	Storage      StorageConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Security     SecurityConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig holds enrollment and verification parameters for authenticator
// app codes. Algorithm, Digits and Period are the defaults for new
// enrollments; each credential keeps the values it was enrolled with.
type TOTPConfig struct {
	Issuer                  string
	Algorithm               string // "SHA1" (default), "SHA256", "SHA512"
	Digits                  int
	Period                  int // seconds
	Window                  int // accepted steps either side of now
	SecretBytes             int
	RequireConfirmation     bool
	EnforceReplayProtection bool
}

/*
====================================
BACKUP CODE CONFIG
====================================
*/

// BackupCodeConfig sizes the recovery code set. Count 0 disables backup
// codes.
type BackupCodeConfig struct {
	Count  int
	Length int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig drives the attempt tracker shared by every verification
// channel.
type LockoutConfig struct {
	Threshold     int
	Duration      time.Duration
	FailureWindow time.Duration // 0 = failures never decay
}

/*
====================================
ALTERNATE OTP CONFIG
====================================
*/

// AlternateOTPConfig controls numeric codes delivered by the caller over SMS
// or email.
type AlternateOTPConfig struct {
	Enabled            bool
	Channels           []string
	Digits             int
	TTL                time.Duration
	InvalidatePrevious bool
	ResendCooldown     time.Duration
	MaxPerWindow       int
	Window             time.Duration
	Retention          time.Duration // how long used/expired challenges are remembered
}

// StorageConfig holds key layout settings for the built-in Redis stores.
type StorageConfig struct {
	RedisPrefix string
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// FlushTimeout bounds how long Engine.Close waits for queued events.
	// 0 waits until the queue is empty.
	FlushTimeout time.Duration
}

// MetricsConfig toggles in-process counters and the verify latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds hardening switches. SecretKey, when set and no sealer
// is supplied to the Builder, enables AES-256-GCM sealing of stored secrets.
type SecurityConfig struct {
	ProductionMode bool
	SecretKey      []byte
	SecretKeySalt  []byte
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:                  "",
			Algorithm:               "SHA1",
			Digits:                  6,
			Period:                  30,
			Window:                  1,
			SecretBytes:             otp.DefaultSecretBytes,
			RequireConfirmation:     false,
			EnforceReplayProtection: false,
		},
		BackupCodes: BackupCodeConfig{
			Count:  10,
			Length: 8,
		},
		Lockout: LockoutConfig{
			Threshold:     5,
			Duration:      5 * time.Minute,
			FailureWindow: 0,
		},
		AlternateOTP: AlternateOTPConfig{
			Enabled:            true,
			Channels:           []string{ChannelSMS, ChannelEmail},
			Digits:             6,
			TTL:                5 * time.Minute,
			InvalidatePrevious: true,
			ResendCooldown:     30 * time.Second,
			MaxPerWindow:       0,
			Window:             0,
			Retention:          15 * time.Minute,
		},
		Storage: StorageConfig{
			RedisPrefix: "otp",
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			FlushTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.AlternateOTP.Channels = append([]string(nil), cfg.AlternateOTP.Channels...)
	out.Security.SecretKey = cloneBytes(cfg.Security.SecretKey)
	out.Security.SecretKeySalt = cloneBytes(cfg.Security.SecretKeySalt)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks ranges and cross-field constraints. With
// Security.ProductionMode it additionally enforces the hardened profile:
// an issuer, a window of at most one step, a lockout threshold of at most 5
// and a backup code set of at least 8 codes of length 8 or more.
func (c *Config) Validate() error {
	// TOTP
	if _, err := otp.ParseAlgorithm(c.TOTP.Algorithm); err != nil {
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.Digits < otp.MinDigits || c.TOTP.Digits > otp.MaxDigits {
		return errors.New("TOTP Digits must be between 6 and 10")
	}
	if c.TOTP.Period <= 0 || c.TOTP.Period > 300 {
		return errors.New("TOTP Period must be in (0, 300] seconds")
	}
	if c.TOTP.Window < 0 || c.TOTP.Window > otp.MaxWindow {
		return errors.New("TOTP Window must be between 0 and 10")
	}
	if c.TOTP.SecretBytes < otp.MinSecretBytes || c.TOTP.SecretBytes > otp.MaxSecretBytes {
		return errors.New("TOTP SecretBytes must be between 20 and 64")
	}

	// Backup codes
	if c.BackupCodes.Count < 0 || c.BackupCodes.Count > 64 {
		return errors.New("BackupCodes Count must be between 0 and 64")
	}
	if c.BackupCodes.Count > 0 && (c.BackupCodes.Length < 6 || c.BackupCodes.Length > 32) {
		return errors.New("BackupCodes Length must be between 6 and 32")
	}

	// Lockout
	if c.Lockout.Threshold < 3 || c.Lockout.Threshold > 10 {
		return errors.New("Lockout Threshold must be between 3 and 10")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.FailureWindow < 0 {
		return errors.New("Lockout FailureWindow must be >= 0")
	}

	// Alternate OTP
	if c.AlternateOTP.Enabled {
		if len(c.AlternateOTP.Channels) == 0 {
			return errors.New("AlternateOTP requires at least one channel")
		}
		for _, ch := range c.AlternateOTP.Channels {
			if ch != ChannelSMS && ch != ChannelEmail {
				return errors.New("AlternateOTP Channels may only contain sms and email")
			}
		}
		if c.AlternateOTP.Digits < otp.MinDigits || c.AlternateOTP.Digits > otp.MaxDigits {
			return errors.New("AlternateOTP Digits must be between 6 and 10")
		}
		if c.AlternateOTP.TTL <= 0 || c.AlternateOTP.TTL > time.Hour {
			return errors.New("AlternateOTP TTL must be in (0, 1h]")
		}
		if c.AlternateOTP.ResendCooldown < 0 {
			return errors.New("AlternateOTP ResendCooldown must be >= 0")
		}
		if c.AlternateOTP.MaxPerWindow < 0 {
			return errors.New("AlternateOTP MaxPerWindow must be >= 0")
		}
		if c.AlternateOTP.MaxPerWindow > 0 && c.AlternateOTP.Window <= 0 {
			return errors.New("AlternateOTP MaxPerWindow requires Window > 0")
		}
		if c.AlternateOTP.Retention < 0 {
			return errors.New("AlternateOTP Retention must be >= 0")
		}
	}

	if c.Storage.RedisPrefix == "" {
		return errors.New("Storage RedisPrefix must not be empty")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.FlushTimeout < 0 {
		return errors.New("Audit FlushTimeout must be >= 0")
	}

	if len(c.Security.SecretKey) > 0 && len(c.Security.SecretKey) < 32 {
		return errors.New("Security SecretKey must be at least 32 bytes")
	}

	if c.Security.ProductionMode {
		if c.TOTP.Issuer == "" {
			return errors.New("ProductionMode requires TOTP Issuer")
		}
		if c.TOTP.Window > 1 {
			return errors.New("ProductionMode requires TOTP Window <= 1")
		}
		if c.Lockout.Threshold > 5 {
			return errors.New("ProductionMode requires Lockout Threshold <= 5")
		}
		if c.BackupCodes.Count < 8 {
			return errors.New("ProductionMode requires BackupCodes Count >= 8")
		}
		if c.BackupCodes.Length < 8 {
			return errors.New("ProductionMode requires BackupCodes Length >= 8")
		}
	}

	return nil
}

func (c *Config) channelAllowed(channel string) bool {
	for _, ch := range c.AlternateOTP.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}
