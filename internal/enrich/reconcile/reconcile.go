// Package reconcile drives each (company, attribute) unit through source extraction and the
// generative fallback to exactly one ResolvedAnswer.
package reconcile

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/catalog"
	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/worker"
)

const tracerName = "github.com/palantir/company-dataitem-enricher/internal/enrich/reconcile"

type Classifier interface {
	Classify(ctx context.Context, attr enrich.Attribute) ([]string, error)
}

type Extractor interface {
	Extract(ctx context.Context, attr enrich.Attribute, rec enrich.SourceRecord) (enrich.ExtractionOutcome, error)
}

type Inferencer interface {
	Infer(ctx context.Context, attribute, company string) (string, bool, error)
}

// Lookup is an optional pre-check for answers computed by an earlier run. A hit skips the
// unit entirely.
type Lookup interface {
	Lookup(ctx context.Context, company, attribute string) (enrich.ResolvedAnswer, bool, error)
}

// Recorder receives every answer resolved from a source or the fallback (write-back).
type Recorder interface {
	Save(ctx context.Context, answer enrich.ResolvedAnswer) error
}

type Reconciler struct {
	catalog    *catalog.Catalog
	classifier Classifier
	extractor  Extractor
	inferencer Inferencer

	lookup   Lookup
	recorder Recorder
	workers  int
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Reconciler)

func WithLookup(l Lookup) Option {
	return func(r *Reconciler) { r.lookup = l }
}

func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// WithWorkers bounds how many units run at once. <=0 keeps the worker pool default.
func WithWorkers(n int) Option {
	return func(r *Reconciler) { r.workers = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Reconciler) {
		if t != nil {
			r.tracer = t
		}
	}
}

func New(cat *catalog.Catalog, cl Classifier, ex Extractor, inf Inferencer, opts ...Option) *Reconciler {
	r := &Reconciler{
		catalog:    cat,
		classifier: cl,
		extractor:  ex,
		inferencer: inf,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type unit struct {
	idx     int
	company enrich.Company
	attr    enrich.Attribute
}

// Resolve returns one answer per (company, attribute) pair, companies outer and attributes
// inner, both in input order. It never fails: units that hit an oracle failure or
// cancellation come back UNRESOLVED with Error set.
func (r *Reconciler) Resolve(
	ctx context.Context,
	attrs []enrich.Attribute,
	companies []enrich.Company,
	records enrich.RecordSource,
) []enrich.ResolvedAnswer {
	r.warnDuplicates(attrs)
	if records == nil {
		records = enrich.SourceRecords{}
	}

	units := make([]unit, 0, len(attrs)*len(companies))
	for _, c := range companies {
		for _, a := range attrs {
			units = append(units, unit{idx: len(units), company: c, attr: a})
		}
	}

	answers := make([]enrich.ResolvedAnswer, len(units))
	filled := make([]bool, len(units))
	_, err := worker.ProcessAllWithCallback(
		ctx,
		units,
		func(ctx context.Context, u unit) (enrich.ResolvedAnswer, error) {
			return r.ResolveOne(ctx, u.company, u.attr, records), nil
		},
		func(res worker.Result[unit, enrich.ResolvedAnswer]) error {
			answers[res.Input.idx] = res.Output
			filled[res.Input.idx] = true
			return nil
		},
		worker.Options{Workers: r.workers, FailurePolicy: worker.FailurePolicyPartialOutput},
	)

	// Units the pool never reached (the run was canceled) still get an answer.
	for i, ok := range filled {
		if ok {
			continue
		}
		cause := err
		if cause == nil {
			cause = ctx.Err()
		}
		if cause == nil {
			cause = context.Canceled
		}
		u := units[i]
		answers[i] = unresolved(u.company.Name, u.attr.Name, cause)
		r.metrics.ObserveAnswer(string(enrich.StateUnresolved))
	}
	return answers
}

// ResolveOne runs the state machine for a single unit.
func (r *Reconciler) ResolveOne(
	ctx context.Context,
	company enrich.Company,
	attr enrich.Attribute,
	records enrich.RecordSource,
) enrich.ResolvedAnswer {
	ctx, span := r.tracer.Start(ctx, "reconcile.unit")
	defer span.End()
	span.SetAttributes(
		attribute.String("company", company.Name),
		attribute.String("attribute", attr.Name),
	)

	logger := r.logger.With(zap.String("company", company.Name), zap.String("attribute", attr.Name))
	ans, cached := r.resolve(ctx, logger, company, attr, records)

	span.SetAttributes(
		attribute.String("state", string(ans.State)),
		attribute.String("provenance", ans.Provenance),
		attribute.Bool("cached", cached),
	)
	if ans.Error != "" {
		span.SetStatus(codes.Error, ans.Error)
	}
	r.metrics.ObserveAnswer(string(ans.State))

	if !cached && r.recorder != nil && ans.Content != nil {
		if err := r.recorder.Save(ctx, ans); err != nil {
			logger.Warn("answer write-back failed", zap.String("error", redact.Secrets(err.Error())))
		}
	}

	logger.Debug("unit resolved",
		zap.String("state", string(ans.State)),
		zap.String("provenance", ans.Provenance),
		zap.Bool("cached", cached),
	)
	return ans
}

func (r *Reconciler) resolve(
	ctx context.Context,
	logger *zap.Logger,
	company enrich.Company,
	attr enrich.Attribute,
	records enrich.RecordSource,
) (enrich.ResolvedAnswer, bool) {
	if err := ctx.Err(); err != nil {
		return unresolved(company.Name, attr.Name, err), false
	}

	if r.lookup != nil {
		prev, ok, err := r.lookup.Lookup(ctx, company.Name, attr.Name)
		switch {
		case err != nil:
			logger.Warn("answer lookup failed; resolving afresh", zap.String("error", redact.Secrets(err.Error())))
		case ok:
			prev.Company = company.Name
			prev.Attribute = attr.Name
			return prev, true
		}
	}

	allowed, err := r.classifier.Classify(ctx, attr)
	if err != nil {
		logger.Warn("source classification failed", zap.String("error", redact.Secrets(err.Error())))
		return unresolved(company.Name, attr.Name, err), false
	}
	allowed = r.catalog.Filter(allowed)

	for _, source := range allowed {
		rec, ok, err := records.Record(ctx, company, source)
		if err != nil {
			if enrich.IsCanceled(err) && ctx.Err() != nil {
				return unresolved(company.Name, attr.Name, err), false
			}
			var fe *enrich.FetchError
			if !errors.As(err, &fe) {
				err = &enrich.FetchError{Company: company.Name, Source: source, Err: err}
			}
			logger.Warn("source fetch failed; treating as absent",
				zap.String("source", source),
				zap.String("error", redact.Secrets(err.Error())),
			)
			continue
		}
		if !ok {
			continue
		}
		if rec.Source == "" {
			rec.Source = source
		}

		outcome, err := r.extractor.Extract(ctx, attr, rec)
		if err != nil {
			if enrich.IsCanceled(err) || errors.Is(err, enrich.ErrOracleUnavailable) {
				logger.Warn("extraction failed", zap.String("source", source), zap.String("error", redact.Secrets(err.Error())))
				return unresolved(company.Name, attr.Name, err), false
			}
			logger.Warn("extraction error; treating source as absent",
				zap.String("source", source),
				zap.String("error", redact.Secrets(err.Error())),
			)
			continue
		}
		if !outcome.Found {
			continue
		}

		content := outcome.Content
		origin := outcome.Origin
		if origin == "" {
			origin = rec.Origin
		}
		return enrich.ResolvedAnswer{
			Company:    company.Name,
			Attribute:  attr.Name,
			Content:    &content,
			Provenance: source,
			Origin:     origin,
			State:      enrich.StateResolvedFromSource,
		}, false
	}

	logger.Debug("sources exhausted",
		zap.String("state", string(enrich.StateSourcesExhausted)),
		zap.Strings("consulted", allowed),
	)

	content, ok, err := r.inferencer.Infer(ctx, attr.Name, company.Name)
	if err != nil {
		logger.Warn("fallback inference failed", zap.String("error", redact.Secrets(err.Error())))
		return unresolved(company.Name, attr.Name, err), false
	}
	if !ok {
		return enrich.ResolvedAnswer{
			Company:    company.Name,
			Attribute:  attr.Name,
			Provenance: enrich.FallbackMarker,
			State:      enrich.StateUnresolved,
		}, false
	}
	return enrich.ResolvedAnswer{
		Company:    company.Name,
		Attribute:  attr.Name,
		Content:    &content,
		Provenance: enrich.FallbackMarker,
		State:      enrich.StateResolvedFromFallback,
	}, false
}

func unresolved(company, attr string, err error) enrich.ResolvedAnswer {
	return enrich.ResolvedAnswer{
		Company:    company,
		Attribute:  attr,
		Provenance: enrich.FallbackMarker,
		State:      enrich.StateUnresolved,
		Error:      redact.Secrets(err.Error()),
	}
}

func (r *Reconciler) warnDuplicates(attrs []enrich.Attribute) {
	seen := make(map[string]int, len(attrs))
	for _, a := range attrs {
		seen[a.Name]++
	}
	for name, n := range seen {
		if n > 1 {
			r.logger.Warn("duplicate attribute name in request",
				zap.String("attribute", name),
				zap.Int("count", n),
			)
		}
	}
}
