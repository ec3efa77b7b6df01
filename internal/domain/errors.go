package domain

import "errors"

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidOutboxEntry is returned when creating an outbox entry with invalid fields.
var ErrInvalidOutboxEntry = errors.New("invalid outbox entry")

// Delivery error taxonomy. All of these are caught at the lowest layer
// that can handle them and converted to a logged diagnostic plus a benign
// return value; none propagate to the end user.
var (
	// ErrAuthenticationFailed indicates the CRM rejected the service credentials.
	ErrAuthenticationFailed = errors.New("crm authentication failed")

	// ErrMalformedResponse indicates a 2xx response without the expected shape.
	ErrMalformedResponse = errors.New("malformed crm response")

	// ErrAllDeliveryPathsExhausted indicates the primary webhook, fallback
	// webhook, and CRM path all failed for a single submission.
	ErrAllDeliveryPathsExhausted = errors.New("all delivery paths exhausted")
)
