package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels detections that produced results.
	OutcomeSuccess = "success"
	// OutcomeError labels rejected or failed detections.
	OutcomeError = "error"
	// OutcomeUnavailable labels detections refused because models are degraded.
	OutcomeUnavailable = "unavailable"
)

var (
	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "selfheal",
			Name:      "detections_total",
			Help:      "Total number of detection requests handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	detectionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "selfheal",
			Name:      "detection_seconds",
			Help:      "Detection latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "selfheal",
			Name:      "anomalies_total",
			Help:      "Anomalous results returned, partitioned by result kind and label.",
		},
		[]string{"kind", "label"},
	)

	modelBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "selfheal",
			Name:      "model_builds_total",
			Help:      "Model slots made ready at startup, partitioned by slot and source.",
		},
		[]string{"slot", "source"},
	)

	modelBuildSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "selfheal",
			Name:      "model_build_seconds",
			Help:      "Time spent loading or training a model slot.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"slot"},
	)

	modelsDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "selfheal",
			Name:      "models_degraded",
			Help:      "1 when the service runs on placeholder models, 0 otherwise.",
		},
	)
)

// Register attaches self-heal collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		detectionsTotal,
		detectionDurationSeconds,
		anomaliesTotal,
		modelBuildsTotal,
		modelBuildSeconds,
		modelsDegraded,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDetection records a detection duration and outcome label.
func ObserveDetection(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError && label != OutcomeUnavailable {
		label = OutcomeSuccess
	}
	detectionsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	detectionDurationSeconds.Observe(duration.Seconds())
}

// ObserveAnomaly counts one anomalous result.
func ObserveAnomaly(kind, label string) {
	anomaliesTotal.WithLabelValues(kind, label).Inc()
}

// ObserveModelBuild records how a slot became ready and how long it took.
func ObserveModelBuild(slot, source string, duration time.Duration) {
	modelBuildsTotal.WithLabelValues(slot, source).Inc()
	if duration < 0 {
		duration = 0
	}
	modelBuildSeconds.WithLabelValues(slot).Observe(duration.Seconds())
}

// SetDegraded flips the degraded gauge.
func SetDegraded(degraded bool) {
	if degraded {
		modelsDegraded.Set(1)
		return
	}
	modelsDegraded.Set(0)
}
