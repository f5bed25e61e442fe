package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rule evaluation metrics
	RulesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insightful_orders_rules_evaluated_total",
			Help: "Total number of alert rules evaluated",
		},
	)

	RulesMatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insightful_orders_rules_matched_total",
			Help: "Total number of alert rules that triggered",
		},
	)

	RulesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insightful_orders_rules_skipped_total",
			Help: "Total number of rules skipped because their metric is unknown",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insightful_orders_evaluation_duration_seconds",
			Help:    "Duration of one rule evaluation batch",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Alert publishing metrics
	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightful_orders_alerts_published_total",
			Help: "Total number of alert publish attempts",
		},
		[]string{"status"}, // success, error
	)

	// Analytics API metrics
	AnalyticsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightful_orders_analytics_requests_total",
			Help: "Total number of analytics API requests",
		},
		[]string{"endpoint", "status"}, // aov/rfm/cohorts, ok/client_error/server_error/rate_limited
	)

	AnalyticsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insightful_orders_analytics_request_duration_seconds",
			Help:    "Duration of analytics API requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"endpoint"},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightful_orders_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"},
	)
)

// RecordEvaluation records one evaluation batch.
func RecordEvaluation(duration time.Duration, evaluated, matched int) {
	RulesEvaluated.Add(float64(evaluated))
	RulesMatched.Add(float64(matched))
	EvaluationDuration.Observe(duration.Seconds())
}

// RecordAlertPublish records one alert publish attempt.
func RecordAlertPublish(status string) {
	AlertsPublished.WithLabelValues(status).Inc()
}

// RecordAnalyticsRequest records one analytics API request.
func RecordAnalyticsRequest(endpoint, status string, duration time.Duration) {
	AnalyticsRequests.WithLabelValues(endpoint, status).Inc()
	AnalyticsRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
