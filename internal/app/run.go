package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/pipeline"
	"github.com/palantir/company-dataitem-enricher/internal/store"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/core"
	localio "github.com/palantir/company-dataitem-enricher/pkg/pipeline/io/local"
)

// LocalRun names the files of a local batch run.
type LocalRun struct {
	Query      string
	InputPath  string
	OutputPath string
	// Format is "csv" (default) or "json".
	Format string
}

// RunLocal reads companies from a local CSV, enriches them and writes the answer rows. When st
// is non-nil the same answers are upserted into it after the file is written.
func RunLocal(ctx context.Context, e *Enricher, run LocalRun, st *store.Store) (Result, error) {
	runID := uuid.NewString()
	input := core.LoadFunc[enrich.Company](func(context.Context) ([]enrich.Company, error) {
		return localio.ReadCompaniesFile(run.InputPath)
	})
	outputs := []core.OutputAdapter[enrich.ResolvedAnswer]{fileOutput(run.OutputPath, run.Format)}
	if st != nil {
		outputs = append(outputs, st.WithRunID(runID))
	}
	return Run(ctx, e, runID, run.Query, input, outputs...)
}

// Run loads companies from input, enriches them and hands the answers to every output in order.
func Run(
	ctx context.Context,
	e *Enricher,
	runID string,
	query string,
	input core.InputAdapter[enrich.Company],
	outputs ...core.OutputAdapter[enrich.ResolvedAnswer],
) (Result, error) {
	readStart := time.Now()
	companies, err := input.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load companies: %w", err)
	}
	e.logger.Info("loaded companies",
		zap.Int("companies", len(companies)),
		zap.Duration("duration", time.Since(readStart).Round(time.Millisecond)),
	)

	res, err := e.Enrich(ctx, Request{RunID: runID, Query: query, Companies: companies})
	if err != nil {
		return res, err
	}

	writeStart := time.Now()
	for _, out := range outputs {
		if err := out.Store(ctx, res.Answers); err != nil {
			return res, fmt.Errorf("write output: %w", err)
		}
	}
	e.logger.Info("run complete",
		zap.String("run_id", res.RunID),
		zap.Int("outputs", len(outputs)),
		zap.Duration("write_duration", time.Since(writeStart).Round(time.Millisecond)),
	)
	return res, nil
}

func fileOutput(path, format string) core.OutputAdapter[enrich.ResolvedAnswer] {
	return core.StoreFunc[enrich.ResolvedAnswer](func(_ context.Context, answers []enrich.ResolvedAnswer) error {
		f, err := localio.CreateOutput(path)
		if err != nil {
			return err
		}
		if err := pipeline.Write(f, format, pipeline.Rows(answers)); err != nil {
			return errors.Join(err, f.Close())
		}
		return f.Close()
	})
}
