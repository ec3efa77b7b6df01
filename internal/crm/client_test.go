package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

// crmStub fakes the CRM JSON-RPC endpoints for client tests.
type crmStub struct {
	t             *testing.T
	authCalls     atomic.Int64
	createCalls   atomic.Int64
	rejectAuth    bool
	createRespond func(w http.ResponseWriter)
	lastFields    map[string]any
}

func (s *crmStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/web/session/authenticate", func(w http.ResponseWriter, r *http.Request) {
		s.authCalls.Add(1)
		if s.rejectAuth {
			writeJSON(w, map[string]any{"error": map[string]any{"code": 100, "message": "denied"}})
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{"uid": 7, "session_id": "sess-abc"}})
	})
	mux.HandleFunc("/web/dataset/call_kw", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("session_id"); err != nil || cookie.Value != "sess-abc" {
			s.t.Error("call_kw request missing session cookie")
		}

		var req struct {
			Params struct {
				Model  string `json:"model"`
				Method string `json:"method"`
				Args   []any  `json:"args"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.t.Fatalf("decode call_kw body: %v", err)
		}

		if req.Params.Method == "search_read" {
			writeJSON(w, map[string]any{"result": []map[string]any{{"id": 1, "name": "Website"}}})
			return
		}

		s.createCalls.Add(1)
		if len(req.Params.Args) > 0 {
			s.lastFields, _ = req.Params.Args[0].(map[string]any)
		}
		if s.createRespond != nil {
			s.createRespond(w)
			return
		}
		writeJSON(w, map[string]any{"result": 123})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, stub *crmStub, ttl time.Duration) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client := NewClient(Config{
		URL:             server.URL,
		Database:        "prod",
		Username:        "svc",
		Password:        "secret",
		Website:         "https://www.vantage-advisory.com",
		DefaultSourceID: 1,
		DefaultMediumID: 1,
		SessionTTL:      ttl,
	}, server.Client(), logger.NewNop())

	return client, server
}

func TestCreateLeadSuccess(t *testing.T) {
	stub := &crmStub{t: t}
	client, _ := newTestClient(t, stub, 5*time.Minute)

	id, err := client.CreateLead(context.Background(), domain.LeadRecord{
		Name:        "Website Inquiry: Jane",
		EmailFrom:   "jane@x.com",
		Description: "Hello",
	})
	if err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
	if id != 123 {
		t.Errorf("CreateLead() id = %d, want 123", id)
	}

	// Defaults applied on the wire.
	if got := stub.lastFields["contact_name"]; got != "Website Inquiry: Jane" {
		t.Errorf("contact_name = %v, want fallback to lead name", got)
	}
	if got := stub.lastFields["website"]; got != "https://www.vantage-advisory.com" {
		t.Errorf("website = %v, want configured default", got)
	}
	if got := stub.lastFields["source_id"]; got != float64(1) {
		t.Errorf("source_id = %v, want 1", got)
	}
}

func TestCreateLeadReusesSession(t *testing.T) {
	stub := &crmStub{t: t}
	client, _ := newTestClient(t, stub, 5*time.Minute)

	for range 3 {
		if _, err := client.CreateLead(context.Background(), domain.LeadRecord{
			Name: "L", EmailFrom: "l@x.com",
		}); err != nil {
			t.Fatalf("CreateLead() error = %v", err)
		}
	}

	if got := stub.authCalls.Load(); got != 1 {
		t.Errorf("authenticate called %d times, want 1", got)
	}
	if got := stub.createCalls.Load(); got != 3 {
		t.Errorf("create called %d times, want 3", got)
	}
}

func TestCreateLeadReauthenticatesAfterTTL(t *testing.T) {
	stub := &crmStub{t: t}
	client, _ := newTestClient(t, stub, -time.Second)

	for range 2 {
		if _, err := client.CreateLead(context.Background(), domain.LeadRecord{
			Name: "L", EmailFrom: "l@x.com",
		}); err != nil {
			t.Fatalf("CreateLead() error = %v", err)
		}
	}

	if got := stub.authCalls.Load(); got != 2 {
		t.Errorf("authenticate called %d times, want 2", got)
	}
}

func TestCreateLeadAuthenticationFailure(t *testing.T) {
	stub := &crmStub{t: t, rejectAuth: true}
	client, _ := newTestClient(t, stub, 5*time.Minute)

	_, err := client.CreateLead(context.Background(), domain.LeadRecord{
		Name: "L", EmailFrom: "l@x.com",
	})
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Errorf("CreateLead() error = %v, want ErrAuthenticationFailed", err)
	}
	if stub.createCalls.Load() != 0 {
		t.Error("create was attempted without a session")
	}
}

func TestCreateLeadMalformedResponse(t *testing.T) {
	stub := &crmStub{t: t}
	stub.createRespond = func(w http.ResponseWriter) {
		writeJSON(w, map[string]any{"something": "else"})
	}
	client, _ := newTestClient(t, stub, 5*time.Minute)

	_, err := client.CreateLead(context.Background(), domain.LeadRecord{
		Name: "L", EmailFrom: "l@x.com",
	})
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Errorf("CreateLead() error = %v, want ErrMalformedResponse", err)
	}
}

func TestCreateLeadUnreachableCRM(t *testing.T) {
	client := NewClient(Config{
		URL:        "http://127.0.0.1:1",
		SessionTTL: time.Minute,
	}, &http.Client{Timeout: time.Second}, logger.NewNop())

	_, err := client.CreateLead(context.Background(), domain.LeadRecord{
		Name: "L", EmailFrom: "l@x.com",
	})
	if err == nil {
		t.Fatal("CreateLead() against unreachable CRM returned nil error")
	}
}

func TestCreateNewsletterLead(t *testing.T) {
	stub := &crmStub{t: t}
	client, _ := newTestClient(t, stub, 5*time.Minute)

	id, err := client.CreateNewsletterLead(context.Background(), "sub@x.com")
	if err != nil {
		t.Fatalf("CreateNewsletterLead() error = %v", err)
	}
	if id != 123 {
		t.Errorf("CreateNewsletterLead() id = %d, want 123", id)
	}
	if got := stub.lastFields["email_from"]; got != "sub@x.com" {
		t.Errorf("email_from = %v, want sub@x.com", got)
	}
}

func TestGetFormOptionsBestEffort(t *testing.T) {
	stub := &crmStub{t: t}
	client, _ := newTestClient(t, stub, 5*time.Minute)

	opts := client.GetFormOptions(context.Background())
	if len(opts.Sources) != 1 || opts.Sources[0].Name != "Website" {
		t.Errorf("Sources = %v, want one Website entry", opts.Sources)
	}

	// Unreachable backend yields empty lists, not an error.
	down := NewClient(Config{URL: "http://127.0.0.1:1", SessionTTL: time.Minute},
		&http.Client{Timeout: time.Second}, logger.NewNop())
	empty := down.GetFormOptions(context.Background())
	if len(empty.Sources) != 0 || len(empty.Mediums) != 0 || len(empty.Campaigns) != 0 {
		t.Errorf("GetFormOptions() on unreachable CRM = %+v, want empty", empty)
	}
}

func TestGetFormOptionsMarshalsEmptyArrays(t *testing.T) {
	down := NewClient(Config{URL: "http://127.0.0.1:1", SessionTTL: time.Minute},
		&http.Client{Timeout: time.Second}, logger.NewNop())

	body, err := json.Marshal(down.GetFormOptions(context.Background()))
	if err != nil {
		t.Fatalf("marshal options: %v", err)
	}

	// The frontend contract is empty lists, never null.
	want := `{"sources":[],"mediums":[],"campaigns":[]}`
	if string(body) != want {
		t.Errorf("options JSON = %s, want %s", body, want)
	}
}
