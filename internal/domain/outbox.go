package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutboxStatus represents the state of an outbox entry.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusDelivering OutboxStatus = "delivering"
	OutboxStatusDelivered  OutboxStatus = "delivered"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxEntry represents a lead whose delivery could not be completed
// inline and is awaiting background retry. The full LeadRecord is kept
// as a JSON payload; name and email are duplicated as columns so
// operators can find a lead without unpacking the payload.
type OutboxEntry struct {
	ID           string       `db:"id"            json:"id"`
	Source       string       `db:"source"        json:"source"`
	Payload      []byte       `db:"payload"       json:"payload"`
	Name         string       `db:"name"          json:"name"`
	EmailFrom    string       `db:"email_from"    json:"email_from"`
	Status       OutboxStatus `db:"status"        json:"status"`
	RetryCount   int          `db:"retry_count"   json:"retry_count"`
	MaxRetries   int          `db:"max_retries"   json:"max_retries"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time    `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"    json:"updated_at"`
	DeliveredAt  *time.Time   `db:"delivered_at"  json:"delivered_at,omitempty"`
	NextRetryAt  *time.Time   `db:"next_retry_at" json:"next_retry_at,omitempty"`
}

const defaultOutboxMaxRetries = 5

// NewOutboxEntry creates an outbox entry from a lead with validation.
// The entry ID is assigned by the repository on insert.
func NewOutboxEntry(lead LeadRecord, source string) (*OutboxEntry, error) {
	if lead.EmailFrom == "" {
		return nil, fmt.Errorf("%w: email_from is required", ErrInvalidOutboxEntry)
	}
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidOutboxEntry)
	}

	payload, err := json.Marshal(lead)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrInvalidOutboxEntry, err)
	}

	now := time.Now()
	return &OutboxEntry{
		Source:     source,
		Payload:    payload,
		Name:       lead.Name,
		EmailFrom:  lead.EmailFrom,
		Status:     OutboxStatusPending,
		MaxRetries: defaultOutboxMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Lead unpacks the stored payload back into a LeadRecord.
func (o *OutboxEntry) Lead() (LeadRecord, error) {
	var lead LeadRecord
	if err := json.Unmarshal(o.Payload, &lead); err != nil {
		return LeadRecord{}, fmt.Errorf("unmarshal outbox payload: %w", err)
	}
	return lead, nil
}

// ShouldRetry returns true if the entry can be retried.
func (o *OutboxEntry) ShouldRetry() bool {
	return o.RetryCount < o.MaxRetries
}

// IsExhausted returns true if all retries have been exhausted.
func (o *OutboxEntry) IsExhausted() bool {
	return o.RetryCount >= o.MaxRetries
}

// OutboxStats holds outbox statistics for monitoring.
type OutboxStats struct {
	Pending               int64   `json:"pending"`
	Delivering            int64   `json:"delivering"`
	Delivered             int64   `json:"delivered"`
	FailedRetryable       int64   `json:"failed_retryable"`
	FailedExhausted       int64   `json:"failed_exhausted"`
	AvgDeliveryLagSeconds float64 `json:"avg_delivery_lag_seconds"`
}
