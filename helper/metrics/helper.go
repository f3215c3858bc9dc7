package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ParseLabels pairs up label names and values. It panics on an odd count.
func ParseLabels(labelsWithValues ...string) prometheus.Labels {
	if len(labelsWithValues)%2 != 0 {
		panic("invalid labels")
	}

	constLabels := prometheus.Labels{}

	for i := 1; i < len(labelsWithValues); i += 2 {
		constLabels[labelsWithValues[i-1]] = labelsWithValues[i]
	}

	return constLabels
}

// The helpers below accept nil collectors, which NilMetrics values carry.

func CounterInc(counter prometheus.Counter) {
	if counter != nil {
		counter.Inc()
	}
}

func AddCounter(counter prometheus.Counter, v float64) {
	if counter != nil {
		counter.Add(v)
	}
}

func CounterVecInc(vec *prometheus.CounterVec, labels ...string) {
	if vec != nil {
		vec.WithLabelValues(labels...).Inc()
	}
}

func ObserveDuration(histogram prometheus.Histogram, d time.Duration) {
	if histogram != nil {
		histogram.Observe(d.Seconds())
	}
}
