package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes reported by ObserveDispatch.
const (
	DispatchAccepted  = "accepted"
	DispatchRejected  = "rejected"
	DispatchTransport = "transport_error"
)

// Outbox publish outcomes reported by IncOutboxPublish.
const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxTerminal  = "terminal"
)

// PipelineMetrics covers quota admission, worker dispatch and job lifecycle.
// A nil receiver records nothing.
type PipelineMetrics struct {
	quotaDecisions   *prometheus.CounterVec
	dispatchOutcomes *prometheus.CounterVec
	dispatchLatency  prometheus.Histogram
	jobTransitions   *prometheus.CounterVec
	staleJobs        prometheus.Gauge
	outboxPublishes  *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	m := &PipelineMetrics{
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota checks by usage type and outcome.",
		}, []string{"usage_type", "allowed", "reserve"}),
		dispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Worker dispatch attempts by outcome.",
		}, []string{"job_type", "outcome"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Latency of the outbound worker dispatch call.",
			Buckets:   prometheus.DefBuckets,
		}),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Applied processing job status transitions.",
		}, []string{"status"}),
		staleJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_processing_jobs",
			Help:      "Unfinished jobs older than the stale threshold at the last sweep.",
		}),
		outboxPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publishes_total",
			Help:      "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.quotaDecisions, m.dispatchOutcomes, m.dispatchLatency, m.jobTransitions, m.staleJobs, m.outboxPublishes)
	return m
}

// ObserveQuotaDecision counts a quota check.
func (m *PipelineMetrics) ObserveQuotaDecision(usageType string, allowed, reserve bool) {
	if m == nil || m.quotaDecisions == nil {
		return
	}
	m.quotaDecisions.WithLabelValues(label(usageType), strconv.FormatBool(allowed), strconv.FormatBool(reserve)).Inc()
}

// ObserveDispatch records a dispatch attempt and its latency.
func (m *PipelineMetrics) ObserveDispatch(jobType, outcome string, duration time.Duration) {
	if m == nil || m.dispatchOutcomes == nil {
		return
	}
	m.dispatchOutcomes.WithLabelValues(label(jobType), label(outcome)).Inc()
	m.dispatchLatency.Observe(duration.Seconds())
}

// IncJobTransition counts a status change that was actually applied.
func (m *PipelineMetrics) IncJobTransition(status string) {
	if m == nil || m.jobTransitions == nil {
		return
	}
	m.jobTransitions.WithLabelValues(label(status)).Inc()
}

// SetStaleJobs publishes the size of the last stale-job sweep.
func (m *PipelineMetrics) SetStaleJobs(count int) {
	if m == nil || m.staleJobs == nil {
		return
	}
	m.staleJobs.Set(float64(count))
}

// IncOutboxPublish counts one outbox row handled by the publisher.
func (m *PipelineMetrics) IncOutboxPublish(eventType, outcome string) {
	if m == nil || m.outboxPublishes == nil {
		return
	}
	m.outboxPublishes.WithLabelValues(label(eventType), label(outcome)).Inc()
}
