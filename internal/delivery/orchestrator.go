// Package delivery orchestrates lead submission across the webhook
// endpoints, the CRM, and the durable outbox.
package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/metrics"
)

// WebhookSubmitter posts leads to the configured webhook endpoints.
type WebhookSubmitter interface {
	PostPrimary(ctx context.Context, lead domain.LeadRecord) (int, error)
	PostFallback(ctx context.Context, lead domain.LeadRecord) (int, error)
	HasFallback() bool
}

// CRMCreator creates lead records in the CRM.
type CRMCreator interface {
	CreateLead(ctx context.Context, lead domain.LeadRecord) (int64, error)
}

// OutboxEnqueuer persists leads whose inline delivery failed.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, entry *domain.OutboxEntry) error
}

// Orchestrator attempts delivery through the primary webhook, then the
// fallback webhook, then (when enabled) the CRM. A submission that
// exhausts every path is enqueued into the outbox for background retry.
// The caller always sees an accepted submission; failures surface only
// in logs, metrics, and the outbox.
type Orchestrator struct {
	webhooks    WebhookSubmitter
	crm         CRMCreator
	outbox      OutboxEnqueuer
	crmFallback bool
	metrics     *metrics.Metrics
	log         logger.Logger
}

// NewOrchestrator creates an orchestrator. crm may be nil when
// crmFallback is false; metrics may be nil in tests.
func NewOrchestrator(
	webhooks WebhookSubmitter,
	crm CRMCreator,
	outbox OutboxEnqueuer,
	crmFallback bool,
	m *metrics.Metrics,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		webhooks:    webhooks,
		crm:         crm,
		outbox:      outbox,
		crmFallback: crmFallback,
		metrics:     m,
		log:         log,
	}
}

// Submit delivers a lead with best-effort redundancy. It never returns
// an error: a lead that cannot be delivered inline is enqueued for
// background retry, and even an enqueue failure is swallowed after
// logging the full payload for manual follow-up.
func (o *Orchestrator) Submit(ctx context.Context, lead domain.LeadRecord, source string) {
	err := o.Deliver(ctx, lead, source)
	if err == nil {
		o.recordSubmission(source, metrics.OutcomeSuccess)
		return
	}

	o.logExhausted(lead, source, err)

	entry, entryErr := domain.NewOutboxEntry(lead, source)
	if entryErr != nil {
		o.log.Error("Cannot enqueue invalid lead",
			logger.String("source", source),
			logger.Error(entryErr),
		)
		o.recordSubmission(source, metrics.OutcomeFailure)
		return
	}

	if enqueueErr := o.outbox.Enqueue(ctx, entry); enqueueErr != nil {
		o.log.Error("Outbox enqueue failed, lead is log-only",
			logger.String("source", source),
			logger.Error(enqueueErr),
		)
		o.recordSubmission(source, metrics.OutcomeFailure)
		return
	}

	o.recordSubmission(source, metrics.OutcomeQueued)
}

// Deliver runs the delivery chain once without touching the outbox.
// The dispatcher uses it for redelivery; Submit wraps it with enqueue
// semantics.
func (o *Orchestrator) Deliver(ctx context.Context, lead domain.LeadRecord, source string) error {
	status, err := o.webhooks.PostPrimary(ctx, lead)
	o.recordAttempt(metrics.TargetPrimary, err == nil)
	if err == nil {
		return nil
	}
	o.log.Warn("Primary webhook failed",
		logger.String("source", source),
		logger.Int("status", status),
		logger.Error(err),
	)

	if o.webhooks.HasFallback() {
		status, err = o.webhooks.PostFallback(ctx, lead)
		o.recordAttempt(metrics.TargetFallback, err == nil)
		if err == nil {
			return nil
		}
		o.log.Warn("Fallback webhook failed",
			logger.String("source", source),
			logger.Int("status", status),
			logger.Error(err),
		)
	}

	if o.crmFallback && o.crm != nil {
		leadID, crmErr := o.crm.CreateLead(ctx, lead)
		o.recordAttempt(metrics.TargetCRM, crmErr == nil)
		if crmErr == nil {
			o.log.Info("Lead delivered via CRM fallback",
				logger.String("source", source),
				logger.Int64("lead_id", leadID),
			)
			return nil
		}
		o.log.Warn("CRM fallback failed",
			logger.String("source", source),
			logger.Error(crmErr),
		)
	}

	return domain.ErrAllDeliveryPathsExhausted
}

// logExhausted emits the diagnostic for a fully failed submission: the
// complete original payload and an ISO-8601 timestamp, so the lead can
// be recovered by hand even if the outbox is unavailable.
func (o *Orchestrator) logExhausted(lead domain.LeadRecord, source string, err error) {
	payload, marshalErr := json.Marshal(lead)
	if marshalErr != nil {
		payload = []byte(`{"marshal_error":"` + marshalErr.Error() + `"}`)
	}

	o.log.Error("All delivery paths exhausted",
		logger.String("source", source),
		logger.String("payload", string(payload)),
		logger.String("failed_at", time.Now().UTC().Format(time.RFC3339)),
		logger.Error(err),
	)
}

func (o *Orchestrator) recordSubmission(source, outcome string) {
	if o.metrics != nil {
		o.metrics.RecordSubmission(source, outcome)
	}
}

func (o *Orchestrator) recordAttempt(target string, success bool) {
	if o.metrics != nil {
		o.metrics.RecordAttempt(target, success)
	}
}
