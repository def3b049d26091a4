package goOTP

import (
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/internal/limiters"
	"github.com/MrEthical07/goOTP/internal/rate"
	"github.com/MrEthical07/goOTP/internal/stores"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single-use: Build fails on the
// second call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     CredentialStore
	sealer    SecretSealer
	clock     Clock
	random    io.Reader
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used by the lockout tracker, the alternate
// challenge store, issuance throttling and, unless WithCredentialStore is
// used, credential storage. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore replaces the built-in Redis credential store, e.g.
// with pgstore.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithSecretSealer sets the sealer applied to TOTP secrets before they are
// stored. It takes precedence over Security.SecretKey.
func (b *Builder) WithSecretSealer(s SecretSealer) *Builder {
	b.sealer = s
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithRandom replaces crypto/rand as the source for secrets and codes.
// Intended for tests.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. In ProductionMode
// a secret sealer (WithSecretSealer or Security.SecretKey) is mandatory.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sealer := b.sealer
	if sealer == nil && len(cfg.Security.SecretKey) > 0 {
		s, err := NewAESSealer(cfg.Security.SecretKey, cfg.Security.SecretKeySalt)
		if err != nil {
			return nil, err
		}
		sealer = s
	}
	if cfg.Security.ProductionMode && sealer == nil {
		return nil, errors.New("ProductionMode requires a secret sealer")
	}

	store := b.store
	if store == nil {
		store = NewRedisCredentialStore(b.redis, cfg.Storage.RedisPrefix)
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config: cloneConfig(cfg),
		store:  store,
		sealer: sealer,
		clock:  clock,
		random: b.random,
		logger: logger.With("component", "goOTP"),
	}

	engine.lockout = limiters.NewLockoutTracker(b.redis, cfg.Storage.RedisPrefix, limiters.LockoutConfig{
		Threshold:     cfg.Lockout.Threshold,
		Duration:      cfg.Lockout.Duration,
		FailureWindow: cfg.Lockout.FailureWindow,
	})
	if cfg.AlternateOTP.Enabled {
		engine.challenges = stores.NewAlternateChallengeStore(b.redis, cfg.Storage.RedisPrefix, cfg.AlternateOTP.Retention)
		engine.issueLimiter = limiters.NewAlternateIssueLimiter(
			rate.New(b.redis, cfg.Storage.RedisPrefix),
			limiters.AlternateIssueConfig{
				ResendCooldown: cfg.AlternateOTP.ResendCooldown,
				MaxPerWindow:   cfg.AlternateOTP.MaxPerWindow,
				Window:         cfg.AlternateOTP.Window,
			},
		)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		FlushTimeout: cfg.Audit.FlushTimeout,
		Logger:       engine.logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	b.built = true

	return engine, nil
}
