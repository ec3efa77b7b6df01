// Package metrics exposes Prometheus instrumentation for the lead
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors for the service.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	DeliveryAttempts *prometheus.CounterVec
	VisitsRecorded   prometheus.Counter
	OutboxDepth      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lead_capture",
			Name:      "submissions_total",
			Help:      "Lead submissions by source and outcome.",
		}, []string{"source", "outcome"}),

		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lead_capture",
			Name:      "delivery_attempts_total",
			Help:      "Individual delivery attempts by target and outcome.",
		}, []string{"target", "outcome"}),

		VisitsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lead_capture",
			Name:      "visits_recorded_total",
			Help:      "Page visits recorded by the tracker.",
		}),

		OutboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lead_capture",
			Name:      "outbox_pending_entries",
			Help:      "Outbox entries awaiting delivery.",
		}),
	}

	reg.MustRegister(m.Submissions, m.DeliveryAttempts, m.VisitsRecorded, m.OutboxDepth)
	return m
}

// Attempt outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeQueued  = "queued"
)

// Delivery target labels.
const (
	TargetPrimary  = "primary_webhook"
	TargetFallback = "fallback_webhook"
	TargetCRM      = "crm"
)

// RecordSubmission counts one completed submission.
func (m *Metrics) RecordSubmission(source, outcome string) {
	m.Submissions.WithLabelValues(source, outcome).Inc()
}

// RecordAttempt counts one delivery attempt.
func (m *Metrics) RecordAttempt(target string, success bool) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	m.DeliveryAttempts.WithLabelValues(target, outcome).Inc()
}
