// Package metrics exposes Prometheus counters and histograms for the
// session coordination engine.
//
// Metrics exposed (all namespaced with "duo_"):
//
//   - exchanges_total (counter): exchanges persisted. Labels: kind.
//   - conflicts_total (counter): compare-and-save attempts lost to another
//     writer. Labels: operation.
//   - conflicts_exhausted_total (counter): operations that gave up after
//     the retry budget. Labels: operation.
//   - wait_duration_seconds (histogram): time spent waiting for a
//     counterpart exchange. Labels: outcome (found, timeout, canceled, error).
//
// duo commands are short-lived processes, so there is no scrape endpoint.
// WriteTextfile dumps the registry in the text exposition format for the
// node_exporter textfile collector. Each invocation replaces the file, so
// every value describes the most recent invocation only; the help text of
// each metric says so.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "duo"

// Metrics holds the engine's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	exchanges          *prometheus.CounterVec
	conflicts          *prometheus.CounterVec
	conflictsExhausted *prometheus.CounterVec
	waitDuration       *prometheus.HistogramVec
}

// New creates the engine metrics in a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Exchanges persisted by the last duo invocation, by kind",
		}, []string{"kind"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Compare-and-save attempts lost to a concurrent writer, per invocation",
		}, []string{"operation"}),
		conflictsExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_exhausted_total",
			Help:      "Operations abandoned after exhausting the conflict retry budget, per invocation",
		}, []string{"operation"}),
		waitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for a counterpart exchange, per invocation",
			// 100ms to ~1.7h; reviews by an agent typically take minutes
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
		}, []string{"outcome"}),
	}
}

// Registry returns the registry holding the engine metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordExchange counts a persisted exchange.
func (m *Metrics) RecordExchange(kind string) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(kind).Inc()
}

// RecordConflict counts a lost compare-and-save.
func (m *Metrics) RecordConflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

// RecordConflictsExhausted counts an operation that ran out of retries.
func (m *Metrics) RecordConflictsExhausted(operation string) {
	if m == nil {
		return
	}
	m.conflictsExhausted.WithLabelValues(operation).Inc()
}

// ObserveWait records how long a wait took and how it ended.
func (m *Metrics) ObserveWait(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// WriteTextfile atomically writes all metrics to path in the Prometheus
// text format. An existing file is replaced, not merged.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
