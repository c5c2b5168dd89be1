// Package sources fetches per-company source records from the external data sources named in
// the catalog.
package sources

import (
	"context"
	"errors"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
)

// Fetcher retrieves one source's record for a company. A nil record with a nil error means the
// source has nothing for the company.
type Fetcher interface {
	Source() string
	Fetch(ctx context.Context, company enrich.Company) (*enrich.SourceRecord, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc struct {
	Name string
	Fn   func(ctx context.Context, company enrich.Company) (*enrich.SourceRecord, error)
}

func (f FetchFunc) Source() string { return f.Name }

func (f FetchFunc) Fetch(ctx context.Context, company enrich.Company) (*enrich.SourceRecord, error) {
	return f.Fn(ctx, company)
}

const (
	resultFound  = "found"
	resultAbsent = "absent"
	resultError  = "error"
)

// fetchOne calls f, stamps the record with the source name and records the outcome metric.
// Errors other than cancellation come back as *enrich.FetchError.
func fetchOne(ctx context.Context, f Fetcher, company enrich.Company, m *metrics.Metrics) (enrich.SourceRecord, bool, error) {
	source := f.Source()
	rec, err := f.Fetch(ctx, company)
	if err != nil {
		if enrich.IsCanceled(err) && ctx.Err() != nil {
			return enrich.SourceRecord{}, false, ctx.Err()
		}
		m.ObserveFetch(source, resultError)
		var fe *enrich.FetchError
		if errors.As(err, &fe) {
			return enrich.SourceRecord{}, false, err
		}
		return enrich.SourceRecord{}, false, &enrich.FetchError{Company: company.Name, Source: source, Err: err}
	}
	if rec == nil {
		m.ObserveFetch(source, resultAbsent)
		return enrich.SourceRecord{}, false, nil
	}
	m.ObserveFetch(source, resultFound)
	out := *rec
	out.Source = source
	return out, true, nil
}
