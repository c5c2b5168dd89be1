package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/company-dataitem-enricher/internal/metrics"
)

func TestMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveAnswer("RESOLVED_FROM_SOURCE")
	m.ObserveAnswer("RESOLVED_FROM_SOURCE")
	m.ObserveAnswer("UNRESOLVED")
	m.ObserveOracleCall("extract", "ok", 120*time.Millisecond)
	m.ObserveFetch("linkedin_search_results", "found")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Answers.WithLabelValues("RESOLVED_FROM_SOURCE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Answers.WithLabelValues("UNRESOLVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleCalls.WithLabelValues("extract", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetches.WithLabelValues("linkedin_search_results", "found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OracleDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveAnswer("UNRESOLVED")
	m.ObserveOracleCall("derive", "error", time.Second)
	m.ObserveFetch("x", "error")
}

func TestMetrics_NilRegistry(t *testing.T) {
	m := metrics.New(nil)
	m.ObserveAnswer("UNRESOLVED")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Answers.WithLabelValues("UNRESOLVED")))
}
