package oracle

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/core"
)

type RetryOptions struct {
	MaxRetries     int
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all callers of the wrapped oracle. Set to <=0 to
	// disable.
	RateLimitRPS float64

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.2
	}
	return o
}

type retrying struct {
	next    Oracle
	limiter *rate.Limiter
	opts    RetryOptions
}

// WithRetry wraps next with a per-call timeout, a shared rate limiter and retries of transient
// failures (core.TransientError, core.LimitedTransientError, deadline and network timeouts) with
// exponential backoff. Non-transient errors are returned after the first attempt.
func WithRetry(next Oracle, opts RetryOptions) Oracle {
	opts = opts.withDefaults()
	r := &retrying{next: next, opts: opts}
	if opts.RateLimitRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return r
}

func (r *retrying) Complete(ctx context.Context, req Request) (string, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
		out, err := r.next.Complete(reqCtx, req)
		cancel()
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isTransient(err) || attempt >= maxExtraRetries(r.opts.MaxRetries, err) {
			return "", err
		}

		sleep := backoffSleep(r.opts.BackoffInitial, r.opts.BackoffMax, r.opts.BackoffJitterFrac, attempt)
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
	}
}

type retryCap interface {
	MaxExtraRetries() int
}

func maxExtraRetries(defaultRetries int, err error) int {
	if defaultRetries < 0 {
		defaultRetries = 0
	}
	var capErr retryCap
	if errors.As(err, &capErr) {
		limited := capErr.MaxExtraRetries()
		if limited < 0 {
			limited = 0
		}
		if limited < defaultRetries {
			return limited
		}
	}
	return defaultRetries
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *core.TransientError
	if errors.As(err, &te) {
		return true
	}
	var lte *core.LimitedTransientError
	if errors.As(err, &lte) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
