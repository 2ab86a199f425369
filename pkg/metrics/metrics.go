package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Offer processing metrics
	OffersReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_offers_received_total",
			Help: "Total number of resource offers received from the master",
		},
	)

	OffersDeclinedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_offers_declined_total",
			Help: "Total number of offers declined, by refuse-interval class",
		},
		[]string{"interval"},
	)

	OffersQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_offer_queue_depth",
			Help: "Current number of offer batches waiting in the OfferProcessor queue",
		},
	)

	// Recommendation metrics
	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_recommendations_total",
			Help: "Total number of OfferRecommendations produced, by kind",
		},
		[]string{"kind"},
	)

	RecommendationsAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_recommendations_accepted_total",
			Help: "Total number of OfferRecommendations accepted by the driver, by kind",
		},
		[]string{"kind"},
	)

	// Evaluator metrics
	EvaluatorDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_evaluator_duration_seconds",
			Help:    "Time taken to evaluate one pending step against an offer batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	EvaluatorMismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_evaluator_mismatches_total",
			Help: "Total number of offer/requirement mismatches, by reason",
		},
		[]string{"reason"},
	)

	// Recorder metrics
	LaunchRecordDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_launch_record_duration_seconds",
			Help:    "Time taken to persist one accepted recommendation set",
			Buckets: prometheus.DefBuckets,
		},
	)

	LaunchRecordFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_launch_record_failures_total",
			Help: "Total number of launch-record failures (tick abandoned, retried next tick)",
		},
	)

	// Plan / step metrics
	StepsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_steps_by_state",
			Help: "Current number of steps in each state, by plan",
		},
		[]string{"plan", "state"},
	)

	// Reconciler metrics
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_reconciliation_cycles_total",
			Help: "Total number of implicit reconciliation cycles completed",
		},
	)

	ReconciliationBackoffSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_reconciliation_backoff_seconds",
			Help: "Current backoff interval used by the implicit reconciler",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OffersReceivedTotal,
		OffersDeclinedTotal,
		OffersQueueDepth,
		RecommendationsTotal,
		RecommendationsAcceptedTotal,
		EvaluatorDuration,
		EvaluatorMismatchesTotal,
		LaunchRecordDuration,
		LaunchRecordFailuresTotal,
		StepsByState,
		ReconciliationCyclesTotal,
		ReconciliationBackoffSeconds,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to the histogram of vec
// selected by labels.
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labels ...string) {
	vec.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
