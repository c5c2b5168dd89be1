package oracle_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/core"
)

var itemsSchema = oracle.MustSchema(`{
	"type": "object",
	"required": ["data_items"],
	"properties": {
		"data_items": {"type": "array", "items": {"type": "string"}}
	}
}`)

type itemsReply struct {
	DataItems []string `json:"data_items"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      []string
		malformed bool
	}{
		{name: "plain", raw: `{"data_items": ["Headquarters", "Funding"]}`, want: []string{"Headquarters", "Funding"}},
		{name: "fenced", raw: "```json\n{\"data_items\": [\"Headquarters\"]}\n```", want: []string{"Headquarters"}},
		{name: "empty_list", raw: `{"data_items": []}`, want: []string{}},
		{name: "not_json", raw: "Sure! Here are the data items: HQ", malformed: true},
		{name: "missing_key", raw: `{"items": ["HQ"]}`, malformed: true},
		{name: "wrong_type", raw: `{"data_items": "HQ"}`, malformed: true},
		{name: "empty", raw: "  ", malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got itemsReply
			err := oracle.Decode("derive.items", tt.raw, itemsSchema, &got)
			if tt.malformed {
				require.ErrorIs(t, err, enrich.ErrMalformedModelResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.DataItems)
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, oracle.StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, oracle.StripFences("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, oracle.StripFences(`  {"a":1} `))
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	next := oracle.Func(func(context.Context, oracle.Request) (string, error) {
		if calls.Add(1) < 3 {
			return "", &core.TransientError{Err: errors.New("429 resource exhausted")}
		}
		return "Austin, Texas", nil
	})

	o := oracle.WithRetry(next, oracle.RetryOptions{
		MaxRetries:     3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	})
	out, err := o.Complete(context.Background(), oracle.Request{Step: "fallback"})
	require.NoError(t, err)
	assert.Equal(t, "Austin, Texas", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithRetry_DoesNotRetryPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	permanent := errors.New("401 unauthorized")
	o := oracle.WithRetry(oracle.Func(func(context.Context, oracle.Request) (string, error) {
		calls.Add(1)
		return "", permanent
	}), oracle.RetryOptions{MaxRetries: 5, BackoffInitial: time.Millisecond})

	_, err := o.Complete(context.Background(), oracle.Request{})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithRetry_LimitedTransientCapsBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	o := oracle.WithRetry(oracle.Func(func(context.Context, oracle.Request) (string, error) {
		calls.Add(1)
		return "", &core.LimitedTransientError{Err: errors.New("quota"), ExtraRetries: 1}
	}), oracle.RetryOptions{MaxRetries: 5, BackoffInitial: time.Millisecond, BackoffMax: time.Millisecond})

	_, err := o.Complete(context.Background(), oracle.Request{})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWithRetry_AppliesRequestTimeout(t *testing.T) {
	t.Parallel()

	o := oracle.WithRetry(oracle.Func(func(ctx context.Context, _ oracle.Request) (string, error) {
		if _, ok := ctx.Deadline(); !ok {
			return "", errors.New("expected a deadline")
		}
		return "ok", nil
	}), oracle.RetryOptions{RequestTimeout: time.Second})

	out, err := o.Complete(context.Background(), oracle.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestWithRetry_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := oracle.WithRetry(oracle.Func(func(context.Context, oracle.Request) (string, error) {
		t.Fatal("oracle must not be called with a canceled context")
		return "", nil
	}), oracle.RetryOptions{})

	_, err := o.Complete(ctx, oracle.Request{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithTracing_LogsAndCounts(t *testing.T) {
	obsCore, logs := observer.New(zap.DebugLevel)
	m := metrics.New(nil)

	o := oracle.WithTracing(oracle.Func(func(_ context.Context, req oracle.Request) (string, error) {
		if req.Step == "extract" {
			return "", errors.New("upstream failed: api_key=sk-123")
		}
		return "reply", nil
	}), zap.New(obsCore), m)

	_, err := o.Complete(context.Background(), oracle.Request{Step: "classify", Kind: oracle.Structured})
	require.NoError(t, err)
	_, err = o.Complete(context.Background(), oracle.Request{Step: "extract"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCalls.WithLabelValues("classify", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCalls.WithLabelValues("extract", "error")))

	failed := logs.FilterMessage("oracle call failed").All()
	require.Len(t, failed, 1)
	msg, _ := failed[0].ContextMap()["error"].(string)
	assert.NotContains(t, msg, "sk-123")
	assert.Equal(t, 1, logs.FilterMessage("oracle call").Len())
}
