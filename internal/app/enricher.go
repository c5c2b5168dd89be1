package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/catalog"
	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/derive"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/extract"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/fallback"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/reconcile"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/relevance"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
	"github.com/palantir/company-dataitem-enricher/internal/pipeline"
	"github.com/palantir/company-dataitem-enricher/internal/sources"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/core"
)

// Deps are the collaborators an Enricher is assembled from. Oracle and Catalog are required.
type Deps struct {
	Oracle   oracle.Oracle
	Catalog  *catalog.Catalog
	Fetchers []sources.Fetcher
	Lookup   reconcile.Lookup
	Recorder reconcile.Recorder
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type Options struct {
	Workers         int
	MaxPayloadBytes int
	// Prefetch fetches every (company, source) pair before resolving instead of fetching only the
	// sources the classifier allowed. FetchWorkers bounds those fetches.
	Prefetch     bool
	FetchWorkers int
}

// Request is one enrichment run. When Attributes is empty they are derived from Query. An
// empty RunID is generated.
type Request struct {
	RunID      string
	Query      string
	Attributes []enrich.Attribute
	Companies  []enrich.Company
}

type Result struct {
	RunID      string
	Attributes []enrich.Attribute
	Failures   []derive.Failure
	Answers    []enrich.ResolvedAnswer
}

// Enricher runs derive, fetch and resolve for a request. It implements
// core.Processor[Request, Result] and is safe for concurrent use.
type Enricher struct {
	deriver    *derive.Deriver
	reconciler *reconcile.Reconciler
	fetchers   []sources.Fetcher
	catalog    *catalog.Catalog
	logger     *zap.Logger
	metrics    *metrics.Metrics

	prefetch     bool
	fetchWorkers int
}

var _ core.Processor[Request, Result] = (*Enricher)(nil)

func NewEnricher(deps Deps, opts Options) (*Enricher, error) {
	if deps.Oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var extractOpts []extract.Option
	if opts.MaxPayloadBytes > 0 {
		extractOpts = append(extractOpts, extract.WithMaxPayloadBytes(opts.MaxPayloadBytes))
	}
	recOpts := []reconcile.Option{
		reconcile.WithWorkers(opts.Workers),
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(deps.Metrics),
	}
	if deps.Lookup != nil {
		recOpts = append(recOpts, reconcile.WithLookup(deps.Lookup))
	}
	if deps.Recorder != nil {
		recOpts = append(recOpts, reconcile.WithRecorder(deps.Recorder))
	}

	for _, name := range deps.Catalog.Names() {
		if !hasFetcher(deps.Fetchers, name) {
			logger.Warn("no fetcher configured for catalog source; it will always be absent", zap.String("source", name))
		}
	}

	return &Enricher{
		deriver: derive.New(deps.Oracle, derive.WithLogger(logger)),
		reconciler: reconcile.New(
			deps.Catalog,
			relevance.New(deps.Oracle, deps.Catalog, logger),
			extract.New(deps.Oracle, extractOpts...),
			fallback.New(deps.Oracle),
			recOpts...,
		),
		fetchers: deps.Fetchers,
		catalog:  deps.Catalog,
		logger:   logger,
		metrics:  deps.Metrics,

		prefetch:     opts.Prefetch,
		fetchWorkers: opts.FetchWorkers,
	}, nil
}

func hasFetcher(fetchers []sources.Fetcher, name string) bool {
	for _, f := range fetchers {
		if f.Source() == name {
			return true
		}
	}
	return false
}

// Derive runs only the attribute derivation step.
func (e *Enricher) Derive(ctx context.Context, query string) (derive.Derivation, error) {
	return e.deriver.Derive(ctx, query)
}

// Process implements core.Processor.
func (e *Enricher) Process(ctx context.Context, req Request) (Result, error) {
	return e.Enrich(ctx, req)
}

// Enrich derives attributes (unless given) and resolves them for every company. Only a failed
// derivation is an error; per-unit failures come back as UNRESOLVED answers.
func (e *Enricher) Enrich(ctx context.Context, req Request) (Result, error) {
	res := Result{RunID: req.RunID}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	logger := e.logger.With(zap.String("run_id", res.RunID))
	runStart := time.Now()

	attrs := req.Attributes
	if len(attrs) == 0 {
		if strings.TrimSpace(req.Query) == "" {
			return res, errors.New("query or attributes are required")
		}
		deriveStart := time.Now()
		d, err := e.deriver.Derive(ctx, req.Query)
		if err != nil {
			return res, fmt.Errorf("derive attributes: %w", err)
		}
		attrs = d.Attributes
		res.Failures = d.Failures
		logger.Debug("derive step done", zap.Duration("duration", time.Since(deriveStart).Round(time.Millisecond)))
	}
	res.Attributes = attrs

	logger.Info("enrichment start",
		zap.Int("companies", len(req.Companies)),
		zap.Int("attributes", len(attrs)),
		zap.Strings("catalog", e.catalog.Names()),
	)
	records := e.records(ctx, logger, req.Companies)
	res.Answers = e.reconciler.Resolve(ctx, attrs, req.Companies, records)

	s := pipeline.Summarize(res.Answers)
	logger.Info("enrichment complete",
		zap.Int("answers", s.Total),
		zap.Int("resolved_from_source", s.ResolvedFromSource),
		zap.Int("resolved_from_fallback", s.ResolvedByFallback),
		zap.Int("unresolved", s.Unresolved),
		zap.Duration("duration", time.Since(runStart).Round(time.Millisecond)),
	)
	return res, nil
}

func (e *Enricher) records(ctx context.Context, logger *zap.Logger, companies []enrich.Company) enrich.RecordSource {
	if !e.prefetch {
		return sources.NewLazy(e.fetchers, e.metrics)
	}
	start := time.Now()
	recs, failures, err := sources.Collect(ctx, companies, e.fetchers, sources.Options{
		Workers: e.fetchWorkers,
		Logger:  logger,
		Metrics: e.metrics,
	})
	if err != nil {
		// Units still resolve; the canceled context makes them UNRESOLVED.
		logger.Warn("prefetch interrupted", zap.Error(err))
	}
	logger.Info("sources prefetched",
		zap.Int("records", len(recs)),
		zap.Int("fetch_failures", len(failures)),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
	)
	return recs
}
