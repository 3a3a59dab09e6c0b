// Package metrics holds the Prometheus instrumentation for the crawl
// pipeline. Collectors are registered once on the default registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline collectors.
type Metrics struct {
	runs             *prometheus.CounterVec
	recordsCommitted *prometheus.CounterVec
	recordsSkipped   *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	publishRetries   prometheus.Counter
}

var (
	once sync.Once
	std  *Metrics
)

// Default returns the process-wide metrics, registering the collectors
// on first use.
func Default() *Metrics {
	once.Do(func() {
		std = newMetrics(prometheus.DefaultRegisterer)
	})
	return std
}

// NewForRegistry builds an isolated metrics set, used in tests.
func NewForRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickerchronik",
			Name:      "runs_total",
			Help:      "Crawl runs by source and outcome.",
		}, []string{"source", "outcome"}),
		recordsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickerchronik",
			Name:      "records_committed_total",
			Help:      "New records appended to the corpus.",
		}, []string{"source"}),
		recordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickerchronik",
			Name:      "records_skipped_total",
			Help:      "Entries dropped as individually malformed.",
		}, []string{"source"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tickerchronik",
			Name:      "fetch_duration_seconds",
			Help:      "Snapshot capture latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"source"}),
		publishRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tickerchronik",
			Name:      "publish_retries_total",
			Help:      "Publish attempts repeated after the remote moved.",
		}),
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(source, outcome string) {
	m.runs.WithLabelValues(source, outcome).Inc()
}

// ObserveCommitted records appended records.
func (m *Metrics) ObserveCommitted(source string, count int) {
	m.recordsCommitted.WithLabelValues(source).Add(float64(count))
}

// ObserveSkipped records malformed entries dropped during extraction.
func (m *Metrics) ObserveSkipped(source string, count int) {
	m.recordsSkipped.WithLabelValues(source).Add(float64(count))
}

// ObserveFetch records the snapshot capture latency.
func (m *Metrics) ObserveFetch(source string, d time.Duration) {
	m.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObservePublishRetry records one repeated publish attempt.
func (m *Metrics) ObservePublishRetry() {
	m.publishRetries.Inc()
}
