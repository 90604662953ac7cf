// Package telemetry exposes service metrics through Prometheus.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bnema/catalogd/internal/boundaries/out"
	"github.com/bnema/catalogd/internal/domain"
)

// Namespace prefixes every metric name.
const Namespace = "catalogd"

// Ensure HashMetrics implements out.HashMetrics.
var _ out.HashMetrics = (*HashMetrics)(nil)

// HashMetrics records digest job activity.
type HashMetrics struct {
	started   prometheus.Counter
	joined    prometheus.Counter
	cacheHits prometheus.Counter
	running   prometheus.Gauge
	finished  *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewHashMetrics registers the digest job instruments on reg. A nil reg
// registers on the default registry.
func NewHashMetrics(reg prometheus.Registerer) *HashMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &HashMetrics{
		started: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "hash_jobs",
			Name:      "started_total",
			Help:      "Total number of digest jobs scheduled",
		}),
		joined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "hash_jobs",
			Name:      "joined_total",
			Help:      "Total number of requests that joined a running digest job",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "hash_jobs",
			Name:      "cache_hits_total",
			Help:      "Total number of digest requests answered from the cache",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "hash_jobs",
			Name:      "running",
			Help:      "Number of digest jobs scheduled or in progress",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "hash_jobs",
			Name:      "finished_total",
			Help:      "Total number of digest jobs finished, by terminal state",
		}, []string{"state"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "hash_jobs",
			Name:      "duration_seconds",
			Help:      "Duration of digest computations in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

func (m *HashMetrics) JobStarted() {
	m.started.Inc()
	m.running.Inc()
}

func (m *HashMetrics) JobJoined() { m.joined.Inc() }

func (m *HashMetrics) CacheHit() { m.cacheHits.Inc() }

func (m *HashMetrics) JobFinished(state domain.JobState, seconds float64) {
	m.running.Dec()
	m.finished.WithLabelValues(string(state)).Inc()
	m.duration.Observe(seconds)
}
