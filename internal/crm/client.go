// Package crm implements the JSON-RPC client for the CRM backend.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

const (
	authenticatePath = "/web/session/authenticate"
	callKwPath       = "/web/dataset/call_kw"

	leadModel = "crm.lead"
)

// Config holds the CRM connection settings.
type Config struct {
	URL             string
	Database        string
	Username        string
	Password        string
	Website         string
	DefaultSourceID int
	DefaultMediumID int
	TagIDs          []int64
	SessionTTL      time.Duration
}

// Client talks to the CRM over its JSON-RPC web endpoints. A session is
// cached until its TTL expires or the backend rejects it, so repeated
// lead creates do not re-authenticate every call.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        logger.Logger

	mu             sync.Mutex
	sessionID      string
	sessionExpires time.Time
}

// NewClient creates a CRM client using the given HTTP client.
func NewClient(cfg Config, httpClient *http.Client, log logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        log,
	}
}

// rpcRequest is the JSON-RPC envelope the CRM expects.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Authenticate logs in with the service credentials and caches the
// returned session. Safe to call concurrently; only one login runs at a
// time.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

// authenticateLocked performs the login. Caller must hold c.mu.
func (c *Client) authenticateLocked(ctx context.Context) error {
	body := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: map[string]any{
			"db":       c.cfg.Database,
			"login":    c.cfg.Username,
			"password": c.cfg.Password,
		},
	}

	var result struct {
		Result *struct {
			UID       json.Number `json:"uid"`
			SessionID string      `json:"session_id"`
		} `json:"result"`
		Error *rpcError `json:"error"`
	}

	if err := c.post(ctx, authenticatePath, "", body, &result); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	if result.Error != nil || result.Result == nil || result.Result.SessionID == "" {
		c.log.Warn("CRM authentication rejected",
			logger.String("url", c.cfg.URL),
			logger.String("user", c.cfg.Username),
		)
		return domain.ErrAuthenticationFailed
	}

	c.sessionID = result.Result.SessionID
	c.sessionExpires = time.Now().Add(c.cfg.SessionTTL)

	c.log.Debug("CRM session established",
		logger.String("uid", result.Result.UID.String()),
	)
	return nil
}

// session returns a valid cached session ID, authenticating if the
// cache is empty or expired.
func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" && time.Now().Before(c.sessionExpires) {
		return c.sessionID, nil
	}
	if err := c.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return c.sessionID, nil
}

// invalidateSession drops the cached session so the next call re-authenticates.
func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
}

// CreateLead creates a lead record and returns its CRM ID. Defaults are
// applied before sending: contact_name falls back to the lead name,
// website, source and medium fall back to the configured codes.
func (c *Client) CreateLead(ctx context.Context, lead domain.LeadRecord) (int64, error) {
	sessionID, err := c.session(ctx)
	if err != nil {
		return 0, err
	}

	c.applyDefaults(&lead)

	fields := map[string]any{
		"name":         lead.Name,
		"email_from":   lead.EmailFrom,
		"contact_name": lead.ContactName,
		"description":  lead.Description,
		"website":      lead.Website,
		"source_id":    lead.SourceID,
		"medium_id":    lead.MediumID,
	}
	if lead.CompanyName != "" {
		fields["partner_name"] = lead.CompanyName
	}
	if lead.Phone != "" {
		fields["phone"] = lead.Phone
	}
	if lead.JobTitle != "" {
		fields["function"] = lead.JobTitle
	}
	if len(lead.TagIDs) > 0 {
		fields["tag_ids"] = lead.TagIDs
	}

	body := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: map[string]any{
			"model":  leadModel,
			"method": "create",
			"args":   []any{fields},
			"kwargs": map[string]any{},
		},
	}

	var result struct {
		Result *json.Number `json:"result"`
		Error  *rpcError    `json:"error"`
	}

	if err := c.post(ctx, callKwPath, sessionID, body, &result); err != nil {
		return 0, err
	}
	if result.Error != nil {
		c.invalidateSession()
		return 0, fmt.Errorf("%w: %s", domain.ErrMalformedResponse, result.Error.Message)
	}
	if result.Result == nil {
		c.invalidateSession()
		return 0, domain.ErrMalformedResponse
	}

	id, err := result.Result.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric record id", domain.ErrMalformedResponse)
	}

	c.log.Info("CRM lead created",
		logger.Int64("lead_id", id),
		logger.String("email", lead.EmailFrom),
	)
	return id, nil
}

// CreateNewsletterLead creates a lead for a newsletter signup.
func (c *Client) CreateNewsletterLead(ctx context.Context, email string) (int64, error) {
	return c.CreateLead(ctx, domain.LeadRecord{
		Name:        "Newsletter Signup: " + email,
		EmailFrom:   email,
		ContactName: email,
		Description: "Subscribed to the newsletter via the website footer.",
	})
}

// FormOption is one categorical reference record (source, medium, campaign).
type FormOption struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FormOptions holds the reference data used to populate UI dropdowns.
type FormOptions struct {
	Sources   []FormOption `json:"sources"`
	Mediums   []FormOption `json:"mediums"`
	Campaigns []FormOption `json:"campaigns"`
}

// EmptyFormOptions returns options with all three lists initialized, so
// they marshal as empty JSON arrays rather than null.
func EmptyFormOptions() FormOptions {
	return FormOptions{
		Sources:   []FormOption{},
		Mediums:   []FormOption{},
		Campaigns: []FormOption{},
	}
}

// GetFormOptions reads the source, medium and campaign reference lists.
// Best effort: any failure yields empty lists, never an error, since the
// dropdowns are optional and submission does not depend on them.
func (c *Client) GetFormOptions(ctx context.Context) FormOptions {
	opts := EmptyFormOptions()

	sessionID, err := c.session(ctx)
	if err != nil {
		c.log.Warn("Skipping form options, CRM unavailable", logger.Error(err))
		return opts
	}

	opts.Sources = c.searchRead(ctx, sessionID, "utm.source")
	opts.Mediums = c.searchRead(ctx, sessionID, "utm.medium")
	opts.Campaigns = c.searchRead(ctx, sessionID, "utm.campaign")
	return opts
}

// searchRead lists id/name pairs for a reference model, returning an
// empty list on any failure.
func (c *Client) searchRead(ctx context.Context, sessionID, model string) []FormOption {
	body := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: map[string]any{
			"model":  model,
			"method": "search_read",
			"args":   []any{[]any{}, []string{"id", "name"}},
			"kwargs": map[string]any{},
		},
	}

	var result struct {
		Result []FormOption `json:"result"`
		Error  *rpcError    `json:"error"`
	}

	if err := c.post(ctx, callKwPath, sessionID, body, &result); err != nil {
		c.log.Warn("Reference data read failed",
			logger.String("model", model),
			logger.Error(err),
		)
		return []FormOption{}
	}
	if result.Error != nil || result.Result == nil {
		return []FormOption{}
	}
	return result.Result
}

// applyDefaults fills the fields the CRM requires but callers may omit.
func (c *Client) applyDefaults(lead *domain.LeadRecord) {
	if lead.ContactName == "" {
		lead.ContactName = lead.Name
	}
	if lead.Website == "" {
		lead.Website = c.cfg.Website
	}
	if lead.SourceID == 0 {
		lead.SourceID = c.cfg.DefaultSourceID
	}
	if lead.MediumID == 0 {
		lead.MediumID = c.cfg.DefaultMediumID
	}
	if len(lead.TagIDs) == 0 {
		lead.TagIDs = c.cfg.TagIDs
	}
}

// post sends a JSON-RPC request and decodes the response into out. A
// non-empty sessionID is attached as the session cookie.
func (c *Client) post(ctx context.Context, path, sessionID string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.URL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: sessionID})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}
