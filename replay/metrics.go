package replay

import (
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "replay"

// Metrics represents the replay engine metrics
type Metrics struct {
	// Replays started
	replays prometheus.Counter
	// Attempts executed across all replays
	attempts prometheus.Counter
	// Replays finished, by outcome class
	outcomes *prometheus.CounterVec
	// Children added by prefetching
	prefetched prometheus.Counter
	// Duration of each replay
	replaySeconds prometheus.Histogram
	// Duration of each attempt
	attemptSeconds prometheus.Histogram
}

func (m *Metrics) replaysInc() {
	metrics.CounterInc(m.replays)
}

func (m *Metrics) attemptsInc() {
	metrics.CounterInc(m.attempts)
}

func (m *Metrics) outcomeInc(class Class) {
	metrics.CounterVecInc(m.outcomes, class.label())
}

func (m *Metrics) prefetchedAdd(n int) {
	metrics.AddCounter(m.prefetched, float64(n))
}

func (m *Metrics) replayObserve(d time.Duration) {
	metrics.ObserveDuration(m.replaySeconds, d)
}

func (m *Metrics) attemptObserve(d time.Duration) {
	metrics.ObserveDuration(m.attemptSeconds, d)
}

// GetPrometheusMetrics return the replay metrics instance
func GetPrometheusMetrics(namespace string, labelsWithValues ...string) *Metrics {
	constLabels := metrics.ParseLabels(labelsWithValues...)

	m := &Metrics{
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "replays",
			Help:        "replays started",
			ConstLabels: constLabels,
		}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "attempts",
			Help:        "replay attempts executed",
			ConstLabels: constLabels,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "outcomes",
			Help:        "finished replays by outcome",
			ConstLabels: constLabels,
		}, []string{"class"}),
		prefetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "prefetched_children",
			Help:        "dynamic field children added by prefetching",
			ConstLabels: constLabels,
		}),
		replaySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "replay_seconds",
			Help:        "time spent on one replay",
			ConstLabels: constLabels,
		}),
		attemptSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "attempt_seconds",
			Help:        "time spent on one attempt",
			ConstLabels: constLabels,
		}),
	}

	prometheus.MustRegister(
		m.replays,
		m.attempts,
		m.outcomes,
		m.prefetched,
		m.replaySeconds,
		m.attemptSeconds,
	)

	return m
}

// NilMetrics will return the non operational replay metrics
func NilMetrics() *Metrics {
	return &Metrics{}
}

// NewDummyMetrics will return the no nil replay metrics
func NewDummyMetrics(metrics *Metrics) *Metrics {
	if metrics != nil {
		return metrics
	}

	return NilMetrics()
}
