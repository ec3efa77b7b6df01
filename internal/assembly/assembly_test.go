package assembly

import (
	"strings"
	"testing"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/tracker"
)

const testWebsite = "https://www.vantage-advisory.com"

func newTestAssembler(visits *tracker.VisitLog) *Assembler {
	return New(visits, testWebsite, 1, 1, []int64{42})
}

func TestFromContactFormIncludesMessageAndHistory(t *testing.T) {
	visits := tracker.NewVisitLog(10, nil, logger.NewNop())
	visits.Record(domain.VisitRecord{
		VisitorID: "v1",
		Page:      "Home",
		Path:      "/",
		VisitedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	})

	lead := newTestAssembler(visits).FromContactForm(ContactForm{
		Name:      "Jane Doe",
		Email:     "jane@x.com",
		Company:   "Acme",
		Message:   "Hello",
		VisitorID: "v1",
	})

	if lead.EmailFrom != "jane@x.com" {
		t.Errorf("EmailFrom = %q, want %q", lead.EmailFrom, "jane@x.com")
	}
	if lead.ContactName != "Jane Doe" {
		t.Errorf("ContactName = %q, want %q", lead.ContactName, "Jane Doe")
	}
	if lead.CompanyName != "Acme" {
		t.Errorf("CompanyName = %q, want %q", lead.CompanyName, "Acme")
	}
	if !strings.Contains(lead.Description, "Hello") {
		t.Error("description does not contain the form message")
	}
	if !strings.Contains(lead.Description, "Home (Jan 1, 2024, 10:00:00 AM)") {
		t.Errorf("description does not contain the visit history line:\n%s", lead.Description)
	}
	if !strings.Contains(lead.Description, "--- Tracking Information ---") {
		t.Error("description does not contain the tracking block header")
	}
}

func TestFromContactFormTrackingBlockWithReferrer(t *testing.T) {
	visits := tracker.NewVisitLog(10, nil, logger.NewNop())
	visits.Record(domain.VisitRecord{
		VisitorID: "v1",
		Page:      "Services",
		Referrer:  "https://google.com",
	})

	lead := newTestAssembler(visits).FromContactForm(ContactForm{
		Name: "Jane", Email: "jane@x.com", VisitorID: "v1",
	})

	if !strings.Contains(lead.Description, "Referrer: https://google.com") {
		t.Errorf("description missing referrer line:\n%s", lead.Description)
	}
}

func TestFromContactFormNoVisits(t *testing.T) {
	visits := tracker.NewVisitLog(10, nil, logger.NewNop())

	lead := newTestAssembler(visits).FromContactForm(ContactForm{
		Name: "Jane", Email: "jane@x.com", VisitorID: "nobody",
	})

	if !strings.Contains(lead.Description, tracker.NoVisitsSentinel) {
		t.Errorf("description missing no-visits sentinel:\n%s", lead.Description)
	}
}

func TestFromBookingFormOptionalFields(t *testing.T) {
	asm := newTestAssembler(tracker.NewVisitLog(10, nil, logger.NewNop()))

	lead := asm.FromBookingForm(BookingForm{
		Name:          "Bob",
		Email:         "bob@x.com",
		Industry:      "Manufacturing",
		Budget:        "$10k-$50k",
		PreferredDate: "2024-02-01",
		Message:       "Need a consultation",
	})

	for _, want := range []string{
		"Need a consultation",
		"Industry: Manufacturing",
		"Budget: $10k-$50k",
		"Preferred Date: 2024-02-01",
	} {
		if !strings.Contains(lead.Description, want) {
			t.Errorf("description missing %q:\n%s", want, lead.Description)
		}
	}
	if !strings.HasPrefix(lead.Name, "Consultation Booking: ") {
		t.Errorf("Name = %q, want consultation prefix", lead.Name)
	}

	// Omitted optional fields leave no stray labels behind.
	bare := asm.FromBookingForm(BookingForm{Name: "Bob", Email: "bob@x.com"})
	for _, label := range []string{"Industry:", "Budget:", "Preferred Date:"} {
		if strings.Contains(bare.Description, label) {
			t.Errorf("description contains %q for an empty field:\n%s", label, bare.Description)
		}
	}
}

func TestFromNewsletter(t *testing.T) {
	asm := newTestAssembler(tracker.NewVisitLog(10, nil, logger.NewNop()))

	lead := asm.FromNewsletter("sub@x.com")

	if lead.EmailFrom != "sub@x.com" {
		t.Errorf("EmailFrom = %q, want %q", lead.EmailFrom, "sub@x.com")
	}
	if lead.Name != "Newsletter Signup: sub@x.com" {
		t.Errorf("Name = %q", lead.Name)
	}
	if lead.Description == "" {
		t.Error("newsletter lead has empty description")
	}
}

func TestFromChatSessionTranscript(t *testing.T) {
	asm := newTestAssembler(tracker.NewVisitLog(10, nil, logger.NewNop()))

	start := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	lead := asm.FromChatSession("sess-1", []domain.ChatInteraction{
		{UserMessage: "Do you do audits?", BotResponse: "Yes we do.", At: start},
		{UserMessage: "Great", Email: "chat@x.com", Name: "Carol", At: start.Add(time.Minute)},
	})

	if lead.EmailFrom != "chat@x.com" {
		t.Errorf("EmailFrom = %q, want captured email", lead.EmailFrom)
	}
	if lead.ContactName != "Carol" {
		t.Errorf("ContactName = %q, want %q", lead.ContactName, "Carol")
	}
	for _, want := range []string{
		"Visitor: Do you do audits?",
		"Bot: Yes we do.",
		"Messages: 2",
		"Session: sess-1",
		"Started: May 1, 2024, 2:00:00 PM",
		"Last activity: May 1, 2024, 2:01:00 PM",
	} {
		if !strings.Contains(lead.Description, want) {
			t.Errorf("transcript missing %q:\n%s", want, lead.Description)
		}
	}
}

func TestFromChatSessionPlaceholderEmail(t *testing.T) {
	asm := newTestAssembler(tracker.NewVisitLog(10, nil, logger.NewNop()))

	lead := asm.FromChatSession("sess-2", []domain.ChatInteraction{
		{UserMessage: "hi"},
		{UserMessage: "hello?"},
		{UserMessage: "anyone there"},
	})

	want := "chatbot-lead@www.vantage-advisory.com"
	if lead.EmailFrom != want {
		t.Errorf("EmailFrom = %q, want %q", lead.EmailFrom, want)
	}
	if lead.ContactName != "Chatbot Visitor" {
		t.Errorf("ContactName = %q, want default", lead.ContactName)
	}
}

func TestAssemblerAppliesDefaults(t *testing.T) {
	asm := newTestAssembler(tracker.NewVisitLog(10, nil, logger.NewNop()))

	lead := asm.FromContactForm(ContactForm{Name: "Jane", Email: "jane@x.com"})

	if lead.SourceID != 1 || lead.MediumID != 1 {
		t.Errorf("SourceID/MediumID = %d/%d, want 1/1", lead.SourceID, lead.MediumID)
	}
	if lead.Website != testWebsite {
		t.Errorf("Website = %q, want %q", lead.Website, testWebsite)
	}
	if len(lead.TagIDs) != 1 || lead.TagIDs[0] != 42 {
		t.Errorf("TagIDs = %v, want [42]", lead.TagIDs)
	}
	if lead.OpenDate.IsZero() {
		t.Error("OpenDate is zero")
	}
}
