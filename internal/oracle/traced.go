package oracle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
)

type traced struct {
	next    Oracle
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithTracing logs every call (step, prompt and reply sizes, deadline, duration) and records
// call metrics. Wrap it inside WithRetry so each attempt is observed.
func WithTracing(next Oracle, logger *zap.Logger, m *metrics.Metrics) Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &traced{next: next, logger: logger, metrics: m}
}

func (t *traced) Complete(ctx context.Context, req Request) (string, error) {
	step := req.Step
	if step == "" {
		step = "unlabeled"
	}

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	fields := []zap.Field{
		zap.String("step", step),
		zap.Stringer("kind", req.Kind),
		zap.Int("prompt_bytes", len(req.System)+len(req.User)),
		zap.String("deadline_in", deadlineIn),
	}

	start := time.Now()
	out, err := t.next.Complete(ctx, req)
	elapsed := time.Since(start)
	fields = append(fields, zap.Duration("elapsed", elapsed.Round(time.Millisecond)))

	switch {
	case err == nil:
		t.metrics.ObserveOracleCall(step, "ok", elapsed)
		t.logger.Debug("oracle call", append(fields, zap.Int("reply_bytes", len(out)))...)
	case enrich.IsCanceled(err):
		t.metrics.ObserveOracleCall(step, "canceled", elapsed)
		t.logger.Debug("oracle call canceled", append(fields, zap.String("error", redact.Secrets(err.Error())))...)
	default:
		t.metrics.ObserveOracleCall(step, "error", elapsed)
		t.logger.Warn("oracle call failed", append(fields,
			zap.Bool("transient", isTransient(err)),
			zap.String("error", redact.Secrets(err.Error())),
		)...)
	}
	return out, err
}
