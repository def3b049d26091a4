package pgstore

import "time"

// Config is read from the environment with github.com/caarlos0/env.
type Config struct {
	ConnectionString  string        `env:"OTP_PG_URL,required"`
	MaxConns          int32         `env:"OTP_PG_MAX_CONNS" envDefault:"10"`
	MinConns          int32         `env:"OTP_PG_MIN_CONNS" envDefault:"2"`
	HealthCheckPeriod time.Duration `env:"OTP_PG_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"OTP_PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"OTP_PG_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts int           `env:"OTP_PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"OTP_PG_RETRY_INTERVAL" envDefault:"2s"`
}
