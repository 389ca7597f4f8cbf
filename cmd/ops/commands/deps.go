package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/tradeops/backend/internal/alert"
	"github.com/wonny/tradeops/backend/internal/artifact"
	"github.com/wonny/tradeops/backend/internal/confirmation"
	"github.com/wonny/tradeops/backend/internal/contracts"
	"github.com/wonny/tradeops/backend/internal/execution"
	"github.com/wonny/tradeops/backend/internal/facts"
	"github.com/wonny/tradeops/backend/internal/pipeline"
	"github.com/wonny/tradeops/backend/internal/policy"
	"github.com/wonny/tradeops/backend/internal/portfolio"
	"github.com/wonny/tradeops/backend/internal/riskgate"
	"github.com/wonny/tradeops/backend/internal/store/postgres"
	"github.com/wonny/tradeops/backend/internal/store/sqlite"
	"github.com/wonny/tradeops/backend/internal/ticket"
	"github.com/wonny/tradeops/backend/pkg/config"
	"github.com/wonny/tradeops/backend/pkg/database"
	"github.com/wonny/tradeops/backend/pkg/logger"
	"github.com/wonny/tradeops/backend/pkg/redis"
)

const alertOutboxMaxLen = 1000

// backend is a storage driver serving both repositories and facts
type backend interface {
	contracts.Store
	contracts.Facts
}

// deps holds the wired components shared by commands
type deps struct {
	cfg        *config.Config
	log        *logger.Logger
	policy     *policy.Policy
	policyHash string
	store      contracts.Store
	db         *database.DB // postgres 드라이버일 때만
	facts      contracts.Facts
	redis      *redis.Client
	artifacts  *artifact.Writer
	alerts     *alert.Emitter
	closers    []func()
}

// loadBase loads config, logger and policy (no storage)
func loadBase() (*config.Config, *logger.Logger, *policy.Policy, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	path := policyPath
	if path == "" {
		path = cfg.Ops.PolicyPath
	}
	p, _, err := policy.Load(path)
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("load policy: %w", err)
	}
	hash, err := policy.Hash(p)
	if err != nil {
		return nil, nil, nil, "", err
	}
	return cfg, log, p, hash, nil
}

// newDeps wires storage, cache, artifacts and alerts per config
func newDeps(ctx context.Context) (*deps, error) {
	cfg, log, p, hash, err := loadBase()
	if err != nil {
		return nil, err
	}

	d := &deps{
		cfg:        cfg,
		log:        log,
		policy:     p,
		policyHash: hash,
		artifacts:  artifact.NewWriter(cfg.Ops.ArtifactsDir, log),
	}

	// 1. 저장소
	var store backend
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store = s
		d.closers = append(d.closers, func() { _ = s.Close() })
	default:
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		store = postgres.New(db.Pool)
		d.db = db
		d.closers = append(d.closers, db.Close)
	}
	d.store = store

	// 2. Redis (비활성화 시 no-op)
	client, err := redis.New(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	d.redis = client
	d.closers = append(d.closers, func() { _ = client.Close() })

	// 3. 종가 캐시를 얹은 facts
	d.facts = facts.NewCachedFacts(store, redis.NewCache(client), redis.ClosePriceKey, cfg.Redis.PriceCacheTTL, log)

	// 4. 알림
	d.alerts = alert.NewEmitter(d.artifacts, redis.NewOutbox(client, "alerts", alertOutboxMaxLen), log)

	log.WithFields(map[string]interface{}{
		"store":       cfg.StoreDriver,
		"redis":       client.Enabled(),
		"artifacts":   cfg.Ops.ArtifactsDir,
		"policy_id":   p.Meta.PolicyID,
		"config_hash": hash,
	}).Debug("Dependencies initialized")

	return d, nil
}

// Close releases connections in reverse order
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (d *deps) allocator() *portfolio.Allocator {
	return portfolio.NewAllocator(portfolio.ConfigFromPolicy(d.policy), d.facts, d.store, d.log)
}

func (d *deps) tradeBuilder() *execution.TradeBuilder {
	cfg := execution.SizingConfigFromPolicy(d.policy, d.cfg.Ops.TradesEnabled)
	if d.cfg.Ops.ReconcileMaxAgeDays >= 0 {
		cfg.ReconcileMaxAgeDays = d.cfg.Ops.ReconcileMaxAgeDays
	}
	return execution.NewTradeBuilder(cfg, d.facts, d.store, d.store, d.artifacts, d.log)
}

func (d *deps) evaluator() *riskgate.Evaluator {
	cfg := riskgate.ConfigFromPolicy(d.policy, d.cfg.Ops.ReconcileMaxAgeDays, d.cfg.Ops.VerifiedMarker)
	return riskgate.NewEvaluator(cfg, d.facts, d.store, d.tradeBuilder(), d.artifacts, d.alerts, d.log)
}

func (d *deps) materializer() *ticket.Materializer {
	cfg := ticket.DefaultConfig()
	cfg.BaseCurrency = d.policy.Meta.BaseCurrency
	return ticket.NewMaterializer(cfg, d.facts, d.store, d.artifacts, d.log)
}

func (d *deps) reconciler() *confirmation.Reconciler {
	return confirmation.NewReconciler(d.store, d.artifacts, d.alerts, d.log)
}

func (d *deps) orchestrator() *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(
		d.store,
		d.facts,
		redis.NewRunLock(d.redis, d.cfg.Redis.RunLockTTL),
		d.allocator(),
		d.evaluator(),
		d.materializer(),
		d.artifacts,
		d.log,
	)
}

// runConfig is the base RunConfig of manual and scheduled runs
func (d *deps) runConfig() pipeline.RunConfig {
	return pipeline.RunConfig{
		ConfigHash: d.policyHash,
		GitCommit:  gitCommit,
		Cadence:    d.cfg.Ops.Cadence,
	}
}

func (d *deps) retentionPolicy() artifact.RetentionPolicy {
	return retentionPolicyFrom(d.cfg)
}

func retentionPolicyFrom(cfg *config.Config) artifact.RetentionPolicy {
	return artifact.RetentionPolicy{
		RunDays:      cfg.Ops.RetentionRunDays,
		ReportDays:   cfg.Ops.RetentionReportDays,
		PruneCadence: cfg.Ops.RetentionKeepCadence,
	}
}

// resolveAsOf returns the run's as-of date, or nil when none can be determined
func (d *deps) resolveAsOf(ctx context.Context, runID string) (*time.Time, error) {
	asof, err := d.facts.ResolveAsOf(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resolve as-of date: %w", err)
	}
	return asof, nil
}
