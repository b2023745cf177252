package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-hotspot/internal/cache"
	"github.com/miradorstack/mirador-hotspot/internal/config"
	"github.com/miradorstack/mirador-hotspot/internal/engine"
	"github.com/miradorstack/mirador-hotspot/internal/llm"
	"github.com/miradorstack/mirador-hotspot/internal/metrics"
	"github.com/miradorstack/mirador-hotspot/internal/patterns"
	"github.com/miradorstack/mirador-hotspot/internal/repo"
	"github.com/miradorstack/mirador-hotspot/internal/services"
	"github.com/miradorstack/mirador-hotspot/internal/store"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

// app holds the wired service and everything that needs closing.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *services.HotspotService
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON), nil
}

// newApp wires storage, cache, clients and engines into a HotspotService and
// restores the last committed snapshot.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, st.Close)

	var cacheProvider cache.Provider = cache.NewMemoryProvider()
	if cfg.Cache.Enabled {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			KeyPrefix:    cfg.Cache.KeyPrefix,
			PoolSize:     cfg.Cache.PoolSize,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, using in-process cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	a.closers = append(a.closers, cacheProvider.Close)

	source := repo.NewSignalSource(
		cfg.Source.BaseURL,
		cfg.Source.ExportPath,
		cfg.Source.APIKey,
		cfg.Source.PageSize,
		cfg.Source.Timeout,
		cacheProvider,
		cfg.Cache.SourceTTL,
	)
	index := repo.NewVectorIndex(
		cfg.Weaviate.Endpoint,
		cfg.Weaviate.APIKey,
		cfg.Weaviate.Timeout,
		cacheProvider,
		cfg.Cache.SimilarTTL,
	)

	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load rule pack: %w", err)
	}

	classifier := engine.NewClassifier()
	features := engine.NewFeatureEngine(logger, classifier, cfg.Features.SignalBudget)
	integrator := engine.NewIntegrator(logger, classifier, features,
		engine.WithReadiness(cfg.Readiness()),
		engine.WithBatchBudget(cfg.Features.BatchBudget),
		engine.WithBatchSize(cfg.Pipeline.BatchSize),
	)

	svc, err := services.NewHotspotService(logger, services.Deps{
		Store:      st,
		Classifier: classifier,
		Integrator: integrator,
		Generator:  engine.NewGenerator(logger, rules, cfg.GeneratorConfig()),
		Tagger: llm.NewTagger(llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			MaxTags:  cfg.LLM.MaxTags,
		}, logger),
		Miner:  patterns.NewMiner(logger, st),
		Source: source,
		Index:  index,
		Cache:  cacheProvider,
	}, services.RunConfig{
		Timeout: cfg.Clustering.RunTimeout,
		LockTTL: cfg.Clustering.LockTTL,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := svc.Restore(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("restore state: %w", err)
	}
	a.service = svc
	return a, nil
}
