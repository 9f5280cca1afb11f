// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the governance loop's Prometheus metrics,
// grouped by domain: evaluation, penalty, appeal, retraining, throttle,
// eventing, archiving, and the HTTP surface.
type Collector struct {
	// evaluation
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	triggersFired      *prometheus.CounterVec

	// penalty lifecycle
	penaltiesApplied *prometheus.CounterVec
	penaltiesLifted  *prometheus.CounterVec
	activePenalties  *prometheus.GaugeVec
	escalationsTotal *prometheus.CounterVec

	// appeals
	appealsFiled  *prometheus.CounterVec
	appealReviews *prometheus.CounterVec

	// retraining
	retrainingSessions *prometheus.CounterVec

	// throttle
	throttleDenials *prometheus.CounterVec

	// eventing and archiving
	publishFailures prometheus.Counter
	archiveOps      *prometheus.CounterVec

	// HTTP surface
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a Collector with all metrics registered under the
// given namespace via promauto.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of agent evaluations by resulting action",
		},
		[]string{"action"},
	)

	c.evaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Agent evaluation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	c.triggersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_fired_total",
			Help:      "Total number of performance triggers fired",
		},
		[]string{"kind"},
	)

	c.penaltiesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "penalties_applied_total",
			Help:      "Total number of penalties applied",
		},
		[]string{"level"},
	)

	c.penaltiesLifted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "penalties_lifted_total",
			Help:      "Total number of penalties lifted",
		},
		[]string{"reason"},
	)

	c.activePenalties = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_penalties",
			Help:      "Number of currently active penalties",
		},
		[]string{"level"},
	)

	c.escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Total number of triggers fired during active retraining",
		},
		[]string{"mode"},
	)

	c.appealsFiled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appeals_filed_total",
			Help:      "Total number of appeals filed",
		},
		[]string{"source"}, // source: manual, anomaly
	)

	c.appealReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appeal_reviews_total",
			Help:      "Total number of appeal reviews",
		},
		[]string{"decision"},
	)

	c.retrainingSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retraining_sessions_total",
			Help:      "Total number of retraining session transitions",
		},
		[]string{"status"}, // status: started, completed, failed
	)

	c.throttleDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_denials_total",
			Help:      "Total number of denied token-bucket consumptions",
		},
		[]string{"agent_id"},
	)

	c.publishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Total number of failed event-bus publishes",
		},
	)

	c.archiveOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_operations_total",
			Help:      "Total number of history-store archive operations",
		},
		[]string{"entity", "status"},
	)

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordEvaluation records one completed agent evaluation.
func (c *Collector) RecordEvaluation(action string, duration time.Duration) {
	c.evaluationsTotal.WithLabelValues(action).Inc()
	c.evaluationDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordTrigger records one fired performance trigger.
func (c *Collector) RecordTrigger(kind string) {
	c.triggersFired.WithLabelValues(kind).Inc()
}

// RecordPenaltyApplied records a newly applied penalty and raises the active
// gauge for its level.
func (c *Collector) RecordPenaltyApplied(level int) {
	l := strconv.Itoa(level)
	c.penaltiesApplied.WithLabelValues(l).Inc()
	c.activePenalties.WithLabelValues(l).Inc()
}

// RecordPenaltyLifted records a lifted penalty and lowers the active gauge
// for its level.
func (c *Collector) RecordPenaltyLifted(level int, reason string) {
	c.penaltiesLifted.WithLabelValues(reason).Inc()
	c.activePenalties.WithLabelValues(strconv.Itoa(level)).Dec()
}

// RecordEscalation records a trigger that fired while the agent was in
// retraining, labeled with the configured escalation policy.
func (c *Collector) RecordEscalation(mode string) {
	c.escalationsTotal.WithLabelValues(mode).Inc()
}

// RecordAppealFiled records a filed appeal. Source is "manual" for
// agent-filed appeals and "anomaly" for auto-filed ones.
func (c *Collector) RecordAppealFiled(source string) {
	c.appealsFiled.WithLabelValues(source).Inc()
}

// RecordAppealReview records a reviewed appeal by decision.
func (c *Collector) RecordAppealReview(decision string) {
	c.appealReviews.WithLabelValues(decision).Inc()
}

// RecordRetraining records a retraining session transition
// (started/completed/failed).
func (c *Collector) RecordRetraining(status string) {
	c.retrainingSessions.WithLabelValues(status).Inc()
}

// RecordThrottleDenial records one denied token consumption.
func (c *Collector) RecordThrottleDenial(agentID string) {
	c.throttleDenials.WithLabelValues(agentID).Inc()
}

// RecordPublishFailure records one failed event-bus publish.
func (c *Collector) RecordPublishFailure() {
	c.publishFailures.Inc()
}

// RecordArchive records one archive operation against the history store.
func (c *Collector) RecordArchive(entity, status string) {
	c.archiveOps.WithLabelValues(entity, status).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// statusCode buckets an HTTP status code into its class.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
