package cache

import (
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "cache"

// Metrics represents the cache metrics
type Metrics struct {
	// Hot layer hits
	hotHit prometheus.Counter
	// Hot layer misses
	hotMiss prometheus.Counter
	// Lookups that found nothing on disk
	diskMiss prometheus.Counter
	// Entries written
	writes prometheus.Counter
	// Puts skipped because the entry already existed
	skippedWrites prometheus.Counter
	// Duration of each disk read
	diskReadSeconds prometheus.Histogram
}

func (m *Metrics) hotHitInc() {
	metrics.CounterInc(m.hotHit)
}

func (m *Metrics) hotMissInc() {
	metrics.CounterInc(m.hotMiss)
}

func (m *Metrics) diskMissInc() {
	metrics.CounterInc(m.diskMiss)
}

func (m *Metrics) writesInc() {
	metrics.CounterInc(m.writes)
}

func (m *Metrics) skippedWritesInc() {
	metrics.CounterInc(m.skippedWrites)
}

func (m *Metrics) diskReadObserve(d time.Duration) {
	metrics.ObserveDuration(m.diskReadSeconds, d)
}

// GetPrometheusMetrics return the cache metrics instance
func GetPrometheusMetrics(namespace string, labelsWithValues ...string) *Metrics {
	constLabels := metrics.ParseLabels(labelsWithValues...)

	m := &Metrics{
		hotHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "hot_hit",
			Help:        "lookups served by the in-memory layer",
			ConstLabels: constLabels,
		}),
		hotMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "hot_miss",
			Help:        "lookups that went to disk",
			ConstLabels: constLabels,
		}),
		diskMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "disk_miss",
			Help:        "lookups not found on disk",
			ConstLabels: constLabels,
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "writes",
			Help:        "entries written to disk",
			ConstLabels: constLabels,
		}),
		skippedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "skipped_writes",
			Help:        "puts of entries already present",
			ConstLabels: constLabels,
		}),
		diskReadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "disk_read_seconds",
			Help:        "time spent reading one entry from disk",
			ConstLabels: constLabels,
		}),
	}

	prometheus.MustRegister(
		m.hotHit,
		m.hotMiss,
		m.diskMiss,
		m.writes,
		m.skippedWrites,
		m.diskReadSeconds,
	)

	return m
}

// NilMetrics will return the non operational cache metrics
func NilMetrics() *Metrics {
	return &Metrics{}
}

// NewDummyMetrics will return the no nil cache metrics
func NewDummyMetrics(metrics *Metrics) *Metrics {
	if metrics != nil {
		return metrics
	}

	return NilMetrics()
}
