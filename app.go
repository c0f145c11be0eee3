package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/battlesim/cache"
	"github.com/kasuganosora/battlesim/config"
	dbadapter "github.com/kasuganosora/battlesim/db"
	"github.com/kasuganosora/battlesim/game/battle"
	"github.com/kasuganosora/battlesim/game/script"
	"github.com/kasuganosora/battlesim/model"
	"github.com/kasuganosora/battlesim/report"
	"github.com/kasuganosora/battlesim/scheduler"
	"github.com/kasuganosora/battlesim/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app holds the long-lived components shared by the serve and eval commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	pool     *scheduler.Pool
	cache    cache.Cache
	pubsub   cache.PubSub
	reports  *report.Service
	sim      *sim.Service
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newApp wires every component from cfg. On error, whatever was already
// started is shut down again.
func newApp(cfg *config.Config, logger *zap.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.pool = scheduler.NewPool(cfg.Engine.Workers, logger)
	metrics := scheduler.NewMetrics(a.registry, a.pool.Pending)

	sandbox := script.NewSandbox(cfg.Script.VMPoolSize, cfg.Script.Timeout, logger)
	damage, err := damagePolicy(cfg.Battle.DamageFormula, sandbox, logger)
	if err != nil {
		return nil, err
	}

	cacheCfg := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
	}
	if a.cache, err = cache.NewCache(cacheCfg); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	if a.pubsub, err = cache.NewPubSub(cacheCfg); err != nil {
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	logger.Info("cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	deps := sim.Deps{
		Pool:    a.pool,
		Cache:   a.cache,
		PubSub:  a.pubsub,
		Sandbox: sandbox,
		Metrics: metrics,
		Logger:  logger,
	}
	if db != nil {
		if err := model.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		a.reports = report.New(db, logger, report.Options{
			BatchSize:  cfg.Database.BatchSize,
			FlushEvery: cfg.Database.FlushEvery,
		})
		deps.Reports = a.reports
		logger.Info("report storage initialized", zap.String("mode", cfg.Database.Mode))
	} else {
		logger.Warn("report storage disabled")
	}

	a.sim = sim.NewService(deps, sim.Options{
		MaxDepth:    cfg.Engine.MaxDepth,
		MaxTurns:    cfg.Engine.MaxTurns,
		WaitTimeout: cfg.Engine.WaitTimeout,
		Parallel:    cfg.Engine.Parallel,
		ResultTTL:   cfg.Cache.ResultTTL,
		ProgressLog: cfg.Engine.ProgressLog,
		Damage:      damage,
	})
	return a, nil
}

// damagePolicy resolves the configured default damage policy.
func damagePolicy(formula string, sb *script.Sandbox, logger *zap.Logger) (battle.DamagePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(formula)) {
	case "", "none":
		return battle.NoDamage{}, nil
	case "raw":
		return battle.RawDamage{}, nil
	}
	p, err := battle.NewFormulaPolicy(formula, sb, logger)
	if err != nil {
		return nil, fmt.Errorf("battle.damage_formula: %w", err)
	}
	return p, nil
}

// close stops components in reverse start order. Queued reports are flushed.
func (a *app) close() {
	if a.reports != nil {
		a.reports.Stop(context.Background())
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
