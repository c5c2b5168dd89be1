package app

import (
	"context"
	"errors"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/reconcile"
)

// chainLookup consults lookups in order and returns the first hit. Errors from one lookup do
// not hide a hit from a later one; they are joined and returned only when nothing matched.
type chainLookup []reconcile.Lookup

func (c chainLookup) Lookup(ctx context.Context, company, attribute string) (enrich.ResolvedAnswer, bool, error) {
	var errs []error
	for _, l := range c {
		ans, ok, err := l.Lookup(ctx, company, attribute)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return ans, true, nil
		}
	}
	return enrich.ResolvedAnswer{}, false, errors.Join(errs...)
}

// fanoutRecorder saves to every recorder; all are attempted.
type fanoutRecorder []reconcile.Recorder

func (f fanoutRecorder) Save(ctx context.Context, ans enrich.ResolvedAnswer) error {
	var errs []error
	for _, r := range f {
		if err := r.Save(ctx, ans); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
