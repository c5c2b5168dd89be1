package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/cache"
	"github.com/palantir/company-dataitem-enricher/internal/catalog"
	"github.com/palantir/company-dataitem-enricher/internal/config"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/reconcile"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
	"github.com/palantir/company-dataitem-enricher/internal/oracle/gemini"
	"github.com/palantir/company-dataitem-enricher/internal/sources"
	"github.com/palantir/company-dataitem-enricher/internal/store"
)

// Runtime is an Enricher plus the backing resources Build opened for it.
type Runtime struct {
	Enricher *Enricher
	Cache    *cache.Cache
	Store    *store.Store

	closers []func() error
}

// Close releases backing resources in reverse order of opening.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build assembles the production pipeline from configuration: the Gemini oracle behind tracing
// and retry wrappers, the source catalog and its fetchers, and the optional Redis cache and
// Postgres store.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.RequireOracle(); err != nil {
		return nil, err
	}

	gem, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini config error: %w", err)
	}
	o := oracle.WithRetry(oracle.WithTracing(gem, logger, m), oracle.RetryOptions{
		MaxRetries:     cfg.Pipeline.MaxRetries,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
		RateLimitRPS:   cfg.Pipeline.RateLimitRPS,
	})

	cat, err := loadCatalog(cfg.Pipeline.CatalogFile)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{}
	var (
		lookups   chainLookup
		recorders fanoutRecorder
	)
	if cfg.CacheEnabled() {
		c := cache.New(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		rt.Cache = c
		rt.closers = append(rt.closers, c.Close)
		lookups = append(lookups, c)
		recorders = append(recorders, c)
		logger.Info("answer cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}
	if cfg.StoreEnabled() {
		s, err := store.Open(ctx, cfg.Database.URL)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Store = s
		rt.closers = append(rt.closers, s.Close)
		lookups = append(lookups, s)
		recorders = append(recorders, s)
		logger.Info("answer store enabled")
	}

	deps := Deps{
		Oracle:   o,
		Catalog:  cat,
		Fetchers: buildFetchers(cfg, cat),
		Logger:   logger,
		Metrics:  m,
	}
	if len(lookups) > 0 {
		deps.Lookup = lookups
		deps.Recorder = recorders
	}
	enricher, err := NewEnricher(deps, Options{
		Workers:         cfg.Pipeline.Workers,
		MaxPayloadBytes: cfg.Pipeline.MaxPayloadBytes,
		Prefetch:        cfg.Pipeline.Prefetch,
		FetchWorkers:    cfg.Pipeline.FetchWorkers,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Enricher = enricher
	return rt, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

// buildFetchers returns a fetcher for every catalog source with credentials configured.
func buildFetchers(cfg *config.Config, cat *catalog.Catalog) []sources.Fetcher {
	var out []sources.Fetcher
	if cat.Contains(catalog.LinkedIn) && cfg.Sources.LinkedIn.APIKey != "" {
		out = append(out, sources.NewLinkedIn(sources.LinkedInConfig{
			APIKey:  cfg.Sources.LinkedIn.APIKey,
			BaseURL: cfg.Sources.LinkedIn.BaseURL,
		}))
	}
	if cat.Contains(catalog.Crunchbase) && cfg.Sources.Crunchbase.APIKey != "" {
		out = append(out, sources.NewCrunchbase(sources.CrunchbaseConfig{
			APIKey:  cfg.Sources.Crunchbase.APIKey,
			BaseURL: cfg.Sources.Crunchbase.BaseURL,
		}))
	}
	if cat.Contains(catalog.CompaniesHouse) && cfg.Sources.CompaniesHouse.APIKey != "" {
		out = append(out, sources.NewCompaniesHouse(sources.CompaniesHouseConfig{
			APIKey:  cfg.Sources.CompaniesHouse.APIKey,
			BaseURL: cfg.Sources.CompaniesHouse.BaseURL,
		}))
	}
	return out
}

var (
	_ reconcile.Lookup   = chainLookup(nil)
	_ reconcile.Recorder = fanoutRecorder(nil)
)
