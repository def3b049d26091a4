package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

type config struct {
	Principals  int    `env:"OTP_LOADTEST_PRINCIPALS" envDefault:"10000"`
	Concurrency int    `env:"OTP_LOADTEST_CONCURRENCY" envDefault:"128"`
	Ops         int    `env:"OTP_LOADTEST_OPS" envDefault:"100000"`
	RedisAddr   string `env:"REDIS_ADDR"`
	Prefix      string `env:"OTP_REDIS_PREFIX" envDefault:"otp"`
	Replay      bool   `env:"OTP_LOADTEST_REPLAY" envDefault:"false"`
}

type principalState struct {
	id     string
	secret string
	opts   totp.ValidateOpts
	codes  []string
	next   atomic.Int32
}

// codeOpts maps an enrollment's parameters onto pquerna's generator options.
func codeOpts(enr *goOTP.Enrollment) totp.ValidateOpts {
	alg := otp.AlgorithmSHA1
	switch enr.Algorithm {
	case "SHA256":
		alg = otp.AlgorithmSHA256
	case "SHA512":
		alg = otp.AlgorithmSHA512
	}
	return totp.ValidateOpts{
		Period:    uint(enr.Period),
		Digits:    otp.Digits(enr.Digits),
		Algorithm: alg,
	}
}

func main() {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[config]()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	flag.IntVar(&cfg.Principals, "principals", cfg.Principals, "number of principals to enroll")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "number of concurrent workers")
	flag.IntVar(&cfg.Ops, "ops", cfg.Ops, "operations per phase")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address; miniredis when empty")
	flag.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "redis key prefix")
	flag.BoolVar(&cfg.Replay, "replay", cfg.Replay, "enable TOTP replay protection")
	flag.Parse()

	if cfg.Principals <= 0 || cfg.Concurrency <= 0 || cfg.Ops <= 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency and ops must be > 0")
		os.Exit(2)
	}

	client, cleanup, err := openRedis(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engineCfg := goOTP.DefaultConfig()
	engineCfg.TOTP.Issuer = "otp-loadtest"
	engineCfg.TOTP.EnforceReplayProtection = cfg.Replay
	engineCfg.Storage.RedisPrefix = cfg.Prefix
	engineCfg.Lockout.Threshold = 10

	engine, err := goOTP.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	states := make([]*principalState, cfg.Principals)
	fmt.Printf("enrolling %d principals...\n", cfg.Principals)
	startSeed := time.Now()
	for i := range states {
		id := fmt.Sprintf("lt-%d", i)
		enr, err := engine.Enroll(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "enroll failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = &principalState{id: id, secret: enr.Secret, opts: codeOpts(enr), codes: enr.BackupCodes}
	}
	fmt.Printf("enrolled in %s\n", time.Since(startSeed).Round(time.Millisecond))

	totpStats := runPhase(cfg.Ops, cfg.Concurrency, func(r *rand.Rand) bool {
		st := states[r.Intn(len(states))]
		code, err := totp.GenerateCodeCustom(st.secret, time.Now(), st.opts)
		if err != nil {
			return false
		}
		res, err := engine.VerifyTOTP(ctx, st.id, code)
		// With replay protection a second hit in the same step is expected to fail.
		return err == nil && (res.OK() || (cfg.Replay && res.Status == goOTP.VerifyFailure))
	})

	backupStats := runPhase(cfg.Ops, cfg.Concurrency, func(r *rand.Rand) bool {
		st := states[r.Intn(len(states))]
		i := int(st.next.Add(1)) - 1
		if i >= len(st.codes) {
			res, err := engine.VerifyBackupCode(ctx, st.id, st.codes[0])
			return err == nil && res.Status != goOTP.VerifySuccess
		}
		res, err := engine.VerifyBackupCode(ctx, st.id, st.codes[i])
		return err == nil && res.OK()
	})

	fmt.Println("---- results ----")
	printStats("totp", totpStats)
	printStats("backup", backupStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: totp_success=%d totp_failure=%d backup_used=%d backup_failed=%d locked=%d storage_errors=%d\n",
		snap.Counters[goOTP.MetricTOTPSuccess],
		snap.Counters[goOTP.MetricTOTPFailure],
		snap.Counters[goOTP.MetricBackupCodeUsed],
		snap.Counters[goOTP.MetricBackupCodeFailed],
		snap.Counters[goOTP.MetricLockedRejected],
		snap.Counters[goOTP.MetricStorageError],
	)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runPhase spreads ops calls of op over concurrency workers. op reports
// whether the outcome matched expectations.
func runPhase(ops, concurrency int, op func(r *rand.Rand) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				ok := op(r)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d unexpected=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
