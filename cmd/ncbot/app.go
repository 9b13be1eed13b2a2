package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ncbot/internal/audit"
	"ncbot/internal/farcaster"
	"ncbot/internal/recast"
	"ncbot/internal/registry"
	"ncbot/internal/runlock"
	"ncbot/pkg/auth"
	"ncbot/pkg/clients"
	"ncbot/pkg/config"
	"ncbot/pkg/database"
	"ncbot/pkg/kafka"
	"ncbot/pkg/logging"
	"ncbot/pkg/monitoring"
	"ncbot/pkg/redis"
	"ncbot/pkg/version"
)

// newFarcasterClient configures the upstream client from env. With mc set,
// breaker state changes are exported as circuit_breaker_state{name}.
func newFarcasterClient(logger logging.Logger, mc *monitoring.MetricsCollector) *farcaster.Client {
	var breaker *clients.CircuitBreakerConfig
	if config.GetEnvBool("FARCASTER_BREAKER_ENABLED", true) {
		cb := clients.DefaultCircuitBreakerConfig("farcaster")
		cb.FailureThreshold = uint(config.GetEnvInt("FARCASTER_BREAKER_FAILURES", int(cb.FailureThreshold)))
		cb.FailureExecutions = uint(config.GetEnvInt("FARCASTER_BREAKER_WINDOW", int(cb.FailureExecutions)))
		cb.Delay = config.GetEnvDuration("FARCASTER_BREAKER_DELAY", cb.Delay)
		if mc != nil {
			state := mc.NewGauge("circuit_breaker_state", "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)", []string{"name"})
			cb.OnStateChange = func(name string, _, to clients.CircuitBreakerState) {
				state.WithLabelValues(name).Set(float64(to))
			}
		}
		breaker = &cb
	}
	return farcaster.NewClient(
		config.GetEnv("FARCASTER_API_URL", farcaster.DefaultBaseURL),
		farcaster.WithTimeout(config.GetEnvDuration("FARCASTER_HTTP_TIMEOUT", 10*time.Second)),
		farcaster.WithCircuitBreaker(breaker),
		farcaster.WithLogger(logger),
	)
}

// credentials are the operator secrets, in order of preference.
type credentials struct {
	BearerToken string
	SeedPhrase  string
	PrivateKey  string
}

func credentialsFromEnv() credentials {
	return credentials{
		BearerToken: config.GetEnv("FARCASTER_BEARER_TOKEN", ""),
		SeedPhrase:  config.GetEnv("FARCASTER_SEED_PHRASE", ""),
		PrivateKey:  config.GetEnv("FARCASTER_PRIVATE_KEY", ""),
	}
}

// signer builds the custody key signer, or returns auth.ErrNoCredential.
func (c credentials) signer() (*auth.Signer, error) {
	if c.SeedPhrase != "" {
		return auth.NewSignerFromMnemonic(c.SeedPhrase, "")
	}
	return auth.NewSignerFromHex(c.PrivateKey)
}

// resolveMode picks the dispatch mode once at startup. A configured token is
// used as is; otherwise a signing key mints one. With neither, or when
// forceDryRun is set, recasts are only logged. It also returns the signer's
// address when a key was available.
func resolveMode(ctx context.Context, fc *farcaster.Client, creds credentials, forceDryRun bool, logger logging.Logger) (recast.Mode, string, error) {
	signer, err := creds.signer()
	if err != nil && !errors.Is(err, auth.ErrNoCredential) {
		return recast.Mode{}, "", fmt.Errorf("load signing key: %w", err)
	}
	var address string
	if signer != nil {
		address = signer.Address()
	}

	if forceDryRun {
		logger.Info("Dry run requested; recasts will only be logged")
		return recast.DryRun(), address, nil
	}
	if creds.BearerToken != "" {
		return recast.Live(fc.WithToken(creds.BearerToken)), address, nil
	}
	if signer == nil {
		logger.Warn("No Farcaster credential configured; running in dry-run mode")
		return recast.DryRun(), "", nil
	}

	tok, err := fc.GenerateToken(ctx, signer, time.Now())
	if err != nil {
		return recast.Mode{}, address, fmt.Errorf("generate bearer token: %w", err)
	}
	logger.WithFields(logging.Fields{
		"address":    address,
		"expires_at": tok.ExpiresAt,
	}).Info("Generated Farcaster bearer token")
	return recast.Live(fc.WithToken(tok.Secret)), address, nil
}

// app owns every long-lived resource of one process.
type app struct {
	logger  logging.Logger
	cfg     recast.Config
	engine  *recast.Engine
	metrics *monitoring.MetricsCollector
	db      *sql.DB
	kafka   *kafka.Producer
	redis   *goredis.Client
	locker  *runlock.Locker

	pushgateway string
}

type appOptions struct {
	dryRun bool
}

func newApp(ctx context.Context, logger logging.Logger, opts appOptions) (_ *app, err error) {
	a := &app{
		logger:      logger,
		cfg:         recast.ConfigFromEnv(),
		metrics:     monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit),
		pushgateway: config.GetEnv("PUSHGATEWAY_URL", ""),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	fc := newFarcasterClient(logger, a.metrics)
	mode, address, err := resolveMode(ctx, fc, credentialsFromEnv(), opts.dryRun, logger)
	if err != nil {
		return nil, err
	}
	if address != "" && config.GetEnv("SELF_ACCOUNT_ID", "") == "" {
		a.cfg.SelfAccountID = address
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = config.GetEnv("DATABASE_URL", "")
	if a.db, err = database.Connect(ctx, dbCfg, logger); err != nil {
		return nil, err
	}
	accounts := registry.NewStore(a.db, logger, registry.WithView(config.GetEnv("ACCOUNT_VIEW", registry.DefaultView)))

	sinks := audit.Multi{audit.NewLogSink(logger)}
	if brokers := config.GetEnvList("KAFKA_BROKERS", nil); len(brokers) > 0 {
		if a.kafka, err = kafka.NewProducer(brokers, serviceName, logger); err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewKafkaSink(a.kafka, config.GetEnv("RECAST_EVENTS_TOPIC", "recast_events"), serviceName))
	}

	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		if a.redis, err = redis.NewClientFromURL(ctx, redisURL); err != nil {
			return nil, err
		}
		a.locker = runlock.New(a.redis,
			config.GetEnv("RUN_LOCK_KEY", runlock.DefaultKey),
			config.GetEnvDuration("RUN_LOCK_TTL", 30*time.Minute),
			logger)
	}

	a.engine, err = recast.NewEngine(a.cfg, accounts, fc, mode, logger,
		recast.WithEventSink(sinks),
		recast.WithMetrics(recast.NewMetrics(a.metrics)),
	)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"mode":         mode.String(),
		"self_account": a.cfg.SelfAccountID,
		"kafka":        a.kafka != nil,
		"run_lock":     a.locker != nil,
	}).Info("ncbot initialized")
	return a, nil
}

// runOnce executes one engine pass under the run lock, if configured, and
// pushes metrics afterwards. A held lock yields runlock.ErrLocked. A run is
// never cancelled once started: a signal only stops the process after it.
func (a *app) runOnce(ctx context.Context) (*recast.Summary, error) {
	ctx = context.WithoutCancel(ctx)
	var sum *recast.Summary
	run := func(ctx context.Context) error {
		var err error
		sum, err = a.engine.Run(ctx)
		return err
	}

	var err error
	if a.locker != nil {
		err = a.locker.Do(ctx, run)
	} else {
		err = run(ctx)
	}

	if a.pushgateway != "" && !errors.Is(err, runlock.ErrLocked) {
		if perr := a.metrics.Push(ctx, a.pushgateway, serviceName); perr != nil {
			a.logger.WithError(perr).Warn("Failed to push metrics")
		}
	}
	return sum, err
}

func (a *app) Close() {
	if a.kafka != nil {
		_ = a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
