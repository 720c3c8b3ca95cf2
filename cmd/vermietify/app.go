package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"vermietify/internal/config"
	"vermietify/internal/domain"
	"vermietify/internal/infra/auth"
	cryptoinfra "vermietify/internal/infra/crypto"
	"vermietify/internal/infra/db"
	"vermietify/internal/infra/drafting"
	"vermietify/internal/infra/export"
	"vermietify/internal/infra/gateway"
	httpinfra "vermietify/internal/infra/http"
	"vermietify/internal/infra/lease"
	"vermietify/internal/infra/logging"
	"vermietify/internal/infra/memstore"
	"vermietify/internal/infra/policyopa"
	"vermietify/internal/infra/ratelimit"
	"vermietify/internal/infra/redisclient"
	"vermietify/internal/infra/telemetry"
	"vermietify/internal/usecase"
)

const redisConnectWait = 10 * time.Second

// app holds the wired process. Commands build one, use the parts they need
// and close it.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	dbMode string

	engine    *usecase.Engine
	audit     *usecase.AuditRecorder
	backups   *usecase.BackupService
	migrator  *usecase.YearMigrator
	batch     *usecase.BatchService
	scheduler *usecase.Scheduler

	authenticator domain.Authenticator
	authorizer    domain.Authorizer
	limiter       domain.RateLimiter

	closers []func(context.Context) error
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if configPath == "" {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return config.Config{}, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func(context.Context) error {
		_ = logger.Sync()
		return nil
	})
	if err := a.wire(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	var (
		subs    usecase.SubmissionRepository
		events  usecase.AuditRepository
		backups usecase.BackupRepository
	)
	store, err := db.NewStore(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if store.Connected() {
		a.dbMode = "db"
		subs, events, backups = store.Submissions(), store.Audit(), store.Backups()
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	} else {
		a.dbMode = "no-db"
		a.logger.Warn("no database configured, state is kept in memory")
		mem := memstore.New()
		subs, events, backups = mem.Submissions(), mem.Audit(), mem.Backups()
	}

	gw, err := newGateway(cfg, a.logger)
	if err != nil {
		return err
	}

	validator, err := drafting.NewSchemaValidator(cfg.SchemaDir)
	if err != nil {
		return fmt.Errorf("load validation schemas: %w", err)
	}

	deadlines, err := usecase.ParseDeadlines(cfg.Deadlines)
	if err != nil {
		return fmt.Errorf("parse deadlines: %w", err)
	}
	queues := usecase.DefaultQueuePolicy()
	if def, ok := deadlines["default"]; ok {
		queues.DefaultDeadline = def
		delete(deadlines, "default")
	}
	if len(deadlines) > 0 {
		queues.Deadlines = deadlines
	}
	if cfg.PriorityWindowDays > 0 {
		queues.PriorityWindowDays = cfg.PriorityWindowDays
	}
	if cfg.StalledAfterDays > 0 {
		queues.StalledAfterDays = cfg.StalledAfterDays
	}

	provider, shutdown, err := telemetry.Setup(ctx, cfg.OTelEnabled, cfg.OTelExportInterval)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)
	metrics, err := telemetry.NewEngineMetrics(provider)
	if err != nil {
		return err
	}

	canon := cryptoinfra.NewService()
	registry, err := usecase.NewRegistry(subs, events, backups)
	if err != nil {
		return err
	}
	a.audit = usecase.NewAuditRecorder(events, subs, canon, export.Renderers())
	a.audit.Logger = a.logger
	a.backups = usecase.NewBackupService(backups, a.audit, registry, canon)
	a.backups.Logger = a.logger

	engine := usecase.NewEngine(subs, gw, usecase.NewGate(usecase.Thresholds{
		AutoSubmitMinConfidence: cfg.AutoSubmitMinConfidence,
		PerFormType:             cfg.FormThresholds,
	}))
	engine.Backups = a.backups
	engine.Validator = validator
	engine.Renderer = drafting.XMLRenderer{}
	engine.Queues = queues
	engine.Metrics = metrics
	engine.Logger = a.logger
	if cfg.ClaimTTL > 0 {
		engine.ClaimTTL = cfg.ClaimTTL
	}
	if cfg.DraftingURL != "" {
		engine.Drafter = drafting.NewClient(cfg.DraftingURL, cfg.DraftingTimeout)
	} else {
		a.logger.Warn("drafting service not configured, process is unavailable")
	}
	a.engine = engine

	a.migrator = usecase.NewYearMigrator(subs)
	a.migrator.Logger = a.logger
	a.batch = usecase.NewBatchService(engine, a.migrator, a.backups, cfg.BatchConcurrency)
	a.batch.Metrics = metrics
	a.batch.Logger = a.logger

	jobLease, limiter, err := a.coordination(ctx)
	if err != nil {
		return err
	}
	a.limiter = limiter

	host, _ := os.Hostname()
	a.scheduler = usecase.NewScheduler(jobLease, fmt.Sprintf("%s-%d", host, os.Getpid()))
	a.scheduler.Logger = a.logger
	for _, job := range usecase.StandardJobs(engine, a.backups, cfg.SweepInterval, cfg.PollInterval, cfg.RetentionInterval, cfg.BackupRetention()) {
		if err := a.scheduler.Register(job); err != nil {
			return err
		}
	}

	a.authenticator, err = auth.New(cfg)
	if err != nil {
		return fmt.Errorf("init authenticator: %w", err)
	}
	authorizer, err := policyopa.NewEngine(ctx, a.logger)
	if err != nil {
		return fmt.Errorf("init policy engine: %w", err)
	}
	a.authorizer = authorizer
	return nil
}

func newGateway(cfg config.Config, logger *zap.Logger) (usecase.Gateway, error) {
	if cfg.GatewaySandbox || cfg.GatewayURL == "" {
		logger.Warn("using sandbox gateway, nothing is sent to the tax authority")
		return gateway.NewSandbox(), nil
	}
	client, err := gateway.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init gateway: %w", err)
	}
	return client, nil
}

// coordination returns the job lease and rate limiter. With Redis both are
// shared across instances; without it they only cover this process.
func (a *app) coordination(ctx context.Context) (domain.Lease, domain.RateLimiter, error) {
	if a.cfg.RedisAddr == "" {
		return lease.NewMemory(nil), ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: a.cfg.RateLimitMaxKeys}), nil
	}
	client, err := redisclient.Open(ctx, redisclient.Config{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, redisConnectWait)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	jobLease, err := lease.NewRedis(client)
	if err != nil {
		return nil, nil, err
	}
	limiter, err := ratelimit.NewRedisLimiter(client, nil)
	if err != nil {
		return nil, nil, err
	}
	return jobLease, limiter, nil
}

func (a *app) server() *httpinfra.Server {
	return httpinfra.NewServer(a.cfg, httpinfra.ServerDeps{
		Engine:        a.engine,
		Audit:         a.audit,
		Backups:       a.backups,
		Migrator:      a.migrator,
		Batch:         a.batch,
		Authenticator: a.authenticator,
		Authorizer:    a.authorizer,
		RateLimiter:   a.limiter,
		Logger:        a.logger,
		DBMode:        a.dbMode,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
