// Package metrics defines the Prometheus instruments the enricher records. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Answers        *prometheus.CounterVec
	OracleCalls    *prometheus.CounterVec
	OracleDuration *prometheus.HistogramVec
	SourceFetches  *prometheus.CounterVec
}

// New builds the instruments and registers them with reg. reg may be nil (tests, one-off CLI
// runs), in which case the instruments are created but not exported.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Answers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_answers_total",
				Help: "Resolved answers emitted, by terminal state",
			},
			[]string{"state"},
		),
		OracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_oracle_calls_total",
				Help: "Inference oracle calls, by pipeline step and status",
			},
			[]string{"step", "status"},
		),
		OracleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enricher_oracle_call_duration_seconds",
				Help:    "Duration of inference oracle calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"step"},
		),
		SourceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_source_fetches_total",
				Help: "Source record fetches, by source and result (found, absent, error)",
			},
			[]string{"source", "result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Answers, m.OracleCalls, m.OracleDuration, m.SourceFetches)
	}
	return m
}

func (m *Metrics) ObserveAnswer(state string) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveOracleCall(step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.OracleCalls.WithLabelValues(step, status).Inc()
	m.OracleDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *Metrics) ObserveFetch(source, result string) {
	if m == nil {
		return
	}
	m.SourceFetches.WithLabelValues(source, result).Inc()
}
