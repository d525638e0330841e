package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clientRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governance_gateway_client_retries_total",
		Help: "Backend HTTP calls that were retried, grouped by method",
	}, []string{"method"})

	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "governance_gateway_probe_duration_seconds",
		Help:    "Duration of health probes against backend endpoints",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"group", "outcome"})

	integrationScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "governance_gateway_integration_score",
		Help: "Most recent integration health score per service group",
	}, []string{"group"})

	streamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "governance_gateway_stream_reconnects_total",
		Help: "Reconnect attempts made by the event stream client",
	})

	streamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governance_gateway_stream_events_total",
		Help: "Events received on the backend stream grouped by outcome",
	}, []string{"outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "governance_gateway_job_duration_seconds",
		Help:    "Duration of asynchronous jobs executed by the worker",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"type", "status"})

	jobStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "governance_gateway_job_status_total",
		Help: "Total jobs completed grouped by type and status",
	}, []string{"type", "status"})
)

// ObserveClientRetry counts a retried backend HTTP call.
func ObserveClientRetry(method string) {
	clientRetriesTotal.WithLabelValues(method).Inc()
}

// ObserveProbe records the duration and outcome of a single health probe.
func ObserveProbe(group, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "ok"
	}
	probeDuration.WithLabelValues(group, outcome).Observe(duration.Seconds())
}

// SetIntegrationScore publishes the latest score for a group.
func SetIntegrationScore(group string, score int) {
	integrationScore.WithLabelValues(group).Set(float64(score))
}

// ObserveStreamReconnect counts a reconnect attempt.
func ObserveStreamReconnect() {
	streamReconnectsTotal.Inc()
}

// ObserveStreamEvent counts a received stream message by outcome
// ("relayed" or "dropped").
func ObserveStreamEvent(outcome string) {
	streamEventsTotal.WithLabelValues(outcome).Inc()
}

// ObserveJobCompletion records the duration and status of a completed job.
func ObserveJobCompletion(jobType, status string, duration time.Duration) {
	if jobType == "" {
		jobType = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	jobDuration.WithLabelValues(jobType, status).Observe(duration.Seconds())
	jobStatusTotal.WithLabelValues(jobType, status).Inc()
}
