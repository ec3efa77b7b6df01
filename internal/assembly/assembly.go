// Package assembly normalizes heterogeneous form inputs into LeadRecords
// enriched with visit history.
package assembly

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/tracker"
)

const transcriptTimeLayout = "Jan 2, 2006, 3:04:05 PM"

// ContactForm is the raw input of the contact page form.
type ContactForm struct {
	Name      string `binding:"required" json:"name"`
	Email     string `binding:"required,email" json:"email"`
	Company   string `json:"company,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Message   string `json:"message,omitempty"`
	VisitorID string `json:"visitor_id,omitempty"`
}

// BookingForm is the raw input of the consultation booking form.
type BookingForm struct {
	Name          string `binding:"required" json:"name"`
	Email         string `binding:"required,email" json:"email"`
	Company       string `json:"company,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Industry      string `json:"industry,omitempty"`
	Budget        string `json:"budget,omitempty"`
	PreferredDate string `json:"preferred_date,omitempty"`
	Message       string `json:"message,omitempty"`
	VisitorID     string `json:"visitor_id,omitempty"`
}

// Assembler builds LeadRecords from form inputs. Assembly never fails;
// missing optional fields become empty segments. Validating required
// fields is the caller's job.
type Assembler struct {
	visits   *tracker.VisitLog
	website  string
	sourceID int
	mediumID int
	tagIDs   []int64
}

// New creates an Assembler. website is the canonical site URL stamped on
// every lead; sourceID, mediumID and tagIDs are the CRM reference codes
// applied as defaults.
func New(visits *tracker.VisitLog, website string, sourceID, mediumID int, tagIDs []int64) *Assembler {
	return &Assembler{
		visits:   visits,
		website:  website,
		sourceID: sourceID,
		mediumID: mediumID,
		tagIDs:   tagIDs,
	}
}

// FromContactForm builds a lead from the contact page form.
func (a *Assembler) FromContactForm(form ContactForm) domain.LeadRecord {
	lead := a.base(form.Name, form.Email)
	lead.Name = "Website Inquiry: " + form.Name
	lead.CompanyName = form.Company
	lead.Phone = form.Phone
	lead.Description = form.Message + a.trackingBlock(form.VisitorID)
	return lead
}

// FromBookingForm builds a lead from the consultation booking form.
func (a *Assembler) FromBookingForm(form BookingForm) domain.LeadRecord {
	var sb strings.Builder
	sb.WriteString(form.Message)
	if form.Industry != "" {
		sb.WriteString("\nIndustry: " + form.Industry)
	}
	if form.Budget != "" {
		sb.WriteString("\nBudget: " + form.Budget)
	}
	if form.PreferredDate != "" {
		sb.WriteString("\nPreferred Date: " + form.PreferredDate)
	}

	lead := a.base(form.Name, form.Email)
	lead.Name = "Consultation Booking: " + form.Name
	lead.CompanyName = form.Company
	lead.Phone = form.Phone
	lead.Description = sb.String() + a.trackingBlock(form.VisitorID)
	return lead
}

// FromNewsletter builds a lead from a newsletter signup. Only an email
// is captured; the description is fixed.
func (a *Assembler) FromNewsletter(email string) domain.LeadRecord {
	lead := a.base(email, email)
	lead.Name = "Newsletter Signup: " + email
	lead.Description = "Subscribed to the newsletter via the website footer."
	return lead
}

// FromChatSession builds a lead from a chatbot conversation. The
// description is the full transcript plus a metadata footer. When no
// email was captured during the conversation, a placeholder address
// derived from the site host is used so the record is still valid.
func (a *Assembler) FromChatSession(sessionID string, interactions []domain.ChatInteraction) domain.LeadRecord {
	name := "Chatbot Visitor"
	email := ""
	for _, in := range interactions {
		if in.Name != "" {
			name = in.Name
		}
		if in.Email != "" {
			email = in.Email
		}
	}
	if email == "" {
		email = a.placeholderEmail()
	}

	lead := a.base(name, email)
	lead.Name = "Chatbot Lead: " + name
	lead.ContactName = name
	lead.Description = transcript(sessionID, interactions)
	return lead
}

// base returns a lead carrying the site-wide defaults.
func (a *Assembler) base(contactName, email string) domain.LeadRecord {
	return domain.LeadRecord{
		EmailFrom:   email,
		ContactName: contactName,
		SourceID:    a.sourceID,
		MediumID:    a.mediumID,
		Website:     a.website,
		TagIDs:      a.tagIDs,
		OpenDate:    time.Now(),
	}
}

// trackingBlock renders the fixed-format tracking appendix for a
// visitor, using the recorder's history and last known referrer.
func (a *Assembler) trackingBlock(visitorID string) string {
	history := tracker.NoVisitsSentinel
	referrer := ""
	if a.visits != nil {
		history = a.visits.History(visitorID)
		referrer = a.visits.LastReferrer(visitorID)
	}

	return "\n\n--- Tracking Information ---\nReferrer: " + referrer +
		"\n\nPage Visit History:\n" + history
}

// transcript joins chat interactions into a readable conversation log
// with a metadata footer.
func transcript(sessionID string, interactions []domain.ChatInteraction) string {
	var sb strings.Builder
	for _, in := range interactions {
		if in.UserMessage != "" {
			sb.WriteString("Visitor: " + in.UserMessage + "\n")
		}
		if in.BotResponse != "" {
			sb.WriteString("Bot: " + in.BotResponse + "\n")
		}
	}

	sb.WriteString("\n--- Conversation Details ---\n")
	fmt.Fprintf(&sb, "Session: %s\n", sessionID)
	fmt.Fprintf(&sb, "Messages: %d\n", len(interactions))
	if len(interactions) > 0 {
		fmt.Fprintf(&sb, "Started: %s\n",
			interactions[0].At.Format(transcriptTimeLayout))
		fmt.Fprintf(&sb, "Last activity: %s\n",
			interactions[len(interactions)-1].At.Format(transcriptTimeLayout))
	}
	return sb.String()
}

// placeholderEmail derives a stand-in address from the site host for
// chatbot leads that never captured a real one.
func (a *Assembler) placeholderEmail() string {
	host := "unknown"
	if u, err := url.Parse(a.website); err == nil && u.Host != "" {
		host = u.Host
	}
	return "chatbot-lead@" + host
}
