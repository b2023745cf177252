package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels committed clustering runs.
	OutcomeSuccess = "success"
	// OutcomeReused labels incremental runs that kept the previous snapshot.
	OutcomeReused = "reused"
	// OutcomeError labels failed runs.
	OutcomeError = "error"
	// OutcomeCancelled labels runs abandoned by the caller or a timeout.
	OutcomeCancelled = "cancelled"

	// StageFeatures labels single-signal feature generation budget checks.
	StageFeatures = "features"
	// StageBatch labels batch processing budget checks.
	StageBatch = "batch"
)

var (
	signalsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_hotspot",
			Name:      "signals_processed_total",
			Help:      "Signals processed by the pipeline, partitioned by readiness verdict.",
		},
		[]string{"action"},
	)

	featureGenerationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_hotspot",
			Name:      "feature_generation_seconds",
			Help:      "Feature generation latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	budgetViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_hotspot",
			Name:      "budget_violations_total",
			Help:      "Latency budget overruns, partitioned by stage.",
		},
		[]string{"stage"},
	)

	clusteringRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_hotspot",
			Name:      "clustering_runs_total",
			Help:      "Clustering runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	clusteringRunSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_hotspot",
			Name:      "clustering_run_seconds",
			Help:      "Clustering run latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	hotspotsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_hotspot",
			Name:      "hotspots_active",
			Help:      "Hotspots in the currently committed snapshot.",
		},
	)
)

// Register attaches mirador-hotspot collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		signalsProcessedTotal,
		featureGenerationSeconds,
		budgetViolationsTotal,
		clusteringRunsTotal,
		clusteringRunSeconds,
		hotspotsActive,
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

// ObserveSignal counts a processed signal by its readiness verdict.
func ObserveSignal(action string) {
	if action == "" {
		action = "failed"
	}
	signalsProcessedTotal.WithLabelValues(action).Inc()
}

// ObserveFeatureGeneration records one feature generation latency.
func ObserveFeatureGeneration(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	featureGenerationSeconds.Observe(duration.Seconds())
}

// BudgetViolation counts a latency budget overrun for the stage.
func BudgetViolation(stage string) {
	budgetViolationsTotal.WithLabelValues(stage).Inc()
}

// ObserveClusteringRun records a clustering run duration and outcome label.
func ObserveClusteringRun(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeReused, OutcomeCancelled:
	default:
		outcome = OutcomeError
	}
	clusteringRunsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	clusteringRunSeconds.Observe(duration.Seconds())
}

// SetActiveHotspots publishes the committed hotspot count.
func SetActiveHotspots(n int) {
	hotspotsActive.Set(float64(n))
}
