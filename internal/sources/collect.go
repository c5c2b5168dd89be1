package sources

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
)

type Options struct {
	// Workers bounds concurrent fetches. <=0 means 8.
	Workers int
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Collect fetches every (company, source) pair up front. Fetch failures are logged, counted and
// returned alongside the records; the pair is simply missing from the records, i.e. absent.
// The returned error is non-nil only when ctx ends before all fetches complete.
func Collect(ctx context.Context, companies []enrich.Company, fetchers []Fetcher, opts Options) (enrich.SourceRecords, []*enrich.FetchError, error) {
	opts = opts.withDefaults()

	records := enrich.SourceRecords{}
	var failures []*enrich.FetchError
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, c := range companies {
		for _, f := range fetchers {
			g.Go(func() error {
				rec, ok, err := fetchOne(gctx, f, c, opts.Metrics)
				if err != nil {
					var fe *enrich.FetchError
					if !errors.As(err, &fe) {
						// Cancellation: stop the whole collection.
						return err
					}
					opts.Logger.Warn("source fetch failed; treating as absent",
						zap.String("company", c.Name),
						zap.String("source", f.Source()),
						zap.String("error", redact.Secrets(fe.Error())),
					)
					mu.Lock()
					failures = append(failures, fe)
					mu.Unlock()
					return nil
				}
				if ok {
					mu.Lock()
					records.Put(c, rec)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return records, failures, err
	}
	return records, failures, nil
}

type lazyResult struct {
	rec enrich.SourceRecord
	ok  bool
	err error
}

// Lazy fetches records on first use, so only sources the classifier allowed are ever called.
// Results (including failures) are memoized per (company, source); concurrent requests for
// the same pair share one fetch.
type Lazy struct {
	fetchers map[string]Fetcher
	metrics  *metrics.Metrics

	group singleflight.Group
	mu    sync.Mutex
	memo  map[enrich.RecordKey]lazyResult
}

func NewLazy(fetchers []Fetcher, m *metrics.Metrics) *Lazy {
	byName := make(map[string]Fetcher, len(fetchers))
	for _, f := range fetchers {
		byName[f.Source()] = f
	}
	return &Lazy{
		fetchers: byName,
		metrics:  m,
		memo:     make(map[enrich.RecordKey]lazyResult),
	}
}

func (l *Lazy) Record(ctx context.Context, company enrich.Company, source string) (enrich.SourceRecord, bool, error) {
	f, ok := l.fetchers[source]
	if !ok {
		return enrich.SourceRecord{}, false, nil
	}

	key := enrich.KeyFor(company, source)
	l.mu.Lock()
	if r, hit := l.memo[key]; hit {
		l.mu.Unlock()
		return r.rec, r.ok, r.err
	}
	l.mu.Unlock()

	v, _, _ := l.group.Do(company.Name+"\x00"+company.ProfileID+"\x00"+source, func() (any, error) {
		rec, ok, err := fetchOne(ctx, f, company, l.metrics)
		r := lazyResult{rec: rec, ok: ok, err: err}
		if err == nil || !enrich.IsCanceled(err) {
			l.mu.Lock()
			l.memo[key] = r
			l.mu.Unlock()
		}
		return r, nil
	})
	r := v.(lazyResult)
	return r.rec, r.ok, r.err
}
