// Package webhook posts assembled leads to the pre-configured HTTP
// endpoints that bypass the authenticated CRM API.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

// Submitter posts lead payloads to the primary and fallback endpoints.
// Any 2xx status counts as delivered; response bodies are not inspected.
type Submitter struct {
	primaryURL  string
	fallbackURL string
	httpClient  *http.Client
	log         logger.Logger
}

// NewSubmitter creates a webhook submitter. fallbackURL may be empty
// when no secondary endpoint is configured.
func NewSubmitter(primaryURL, fallbackURL string, httpClient *http.Client, log logger.Logger) *Submitter {
	return &Submitter{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		httpClient:  httpClient,
		log:         log,
	}
}

// HasFallback reports whether a secondary endpoint is configured.
func (s *Submitter) HasFallback() bool {
	return s.fallbackURL != ""
}

// primaryPayload is the flattened lead shape the primary endpoint accepts.
type primaryPayload struct {
	Name        string  `json:"name"`
	EmailFrom   string  `json:"email_from"`
	ContactName string  `json:"contact_name"`
	CompanyName string  `json:"company_name,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Description string  `json:"description"`
	Website     string  `json:"website"`
	SourceID    int     `json:"source_id"`
	MediumID    int     `json:"medium_id"`
	TagIDs      []int64 `json:"tag_ids,omitempty"`
}

// fallbackPayload is the simplified shape the secondary endpoint accepts.
type fallbackPayload struct {
	Name        string `json:"name"`
	EmailFrom   string `json:"email_from"`
	Description string `json:"description"`
}

// PostPrimary sends the full flattened lead to the primary endpoint.
// Returns the HTTP status code when a response was received.
func (s *Submitter) PostPrimary(ctx context.Context, lead domain.LeadRecord) (int, error) {
	return s.post(ctx, s.primaryURL, primaryPayload{
		Name:        lead.Name,
		EmailFrom:   lead.EmailFrom,
		ContactName: lead.ContactName,
		CompanyName: lead.CompanyName,
		Phone:       lead.Phone,
		Description: lead.Description,
		Website:     lead.Website,
		SourceID:    lead.SourceID,
		MediumID:    lead.MediumID,
		TagIDs:      lead.TagIDs,
	})
}

// PostFallback sends the simplified lead to the secondary endpoint.
func (s *Submitter) PostFallback(ctx context.Context, lead domain.LeadRecord) (int, error) {
	if s.fallbackURL == "" {
		return 0, fmt.Errorf("no fallback endpoint configured")
	}
	return s.post(ctx, s.fallbackURL, fallbackPayload{
		Name:        lead.Name,
		EmailFrom:   lead.EmailFrom,
		Description: lead.Description,
	})
}

// post marshals payload and POSTs it, treating any non-2xx as an error.
func (s *Submitter) post(ctx context.Context, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.log.Debug("Webhook delivered",
		logger.String("url", url),
		logger.Int("status", resp.StatusCode),
	)
	return resp.StatusCode, nil
}
