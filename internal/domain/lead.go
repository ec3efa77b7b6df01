// Package domain contains the core domain models for the lead-capture service.
package domain

import "time"

// Lead sources as they appear in the outbox and CRM records.
const (
	SourceContactForm = "contact_form"
	SourceBookingForm = "booking_form"
	SourceNewsletter  = "newsletter"
	SourceChatbot     = "chatbot"
)

// LeadRecord is the normalized payload delivered to the CRM.
type LeadRecord struct {
	Name        string    `json:"name"`
	EmailFrom   string    `json:"email_from"`
	ContactName string    `json:"contact_name"`
	CompanyName string    `json:"company_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	JobTitle    string    `json:"function,omitempty"`
	Description string    `json:"description"`
	SourceID    int       `json:"source_id"`
	MediumID    int       `json:"medium_id"`
	Website     string    `json:"website"`
	TagIDs      []int64   `json:"tag_ids,omitempty"`
	OpenDate    time.Time `json:"date_open"`
}

// SubmissionAttempt captures one delivery try for diagnostics.
// Attempts are logged and counted; they are not persisted individually.
type SubmissionAttempt struct {
	Target     string    `json:"target"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}
