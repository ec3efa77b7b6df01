package main

import (
	"context"
	"testing"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/assembly"
	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/tracker"
)

// blockingSubmitter holds Submit open until release is closed.
type blockingSubmitter struct {
	release chan struct{}
	done    chan struct{}
	lead    domain.LeadRecord
	source  string
}

func (s *blockingSubmitter) Submit(_ context.Context, lead domain.LeadRecord, source string) {
	<-s.release
	s.lead = lead
	s.source = source
	close(s.done)
}

func TestChatLeadTriggerDoesNotBlockCaller(t *testing.T) {
	visits := tracker.NewVisitLog(10, nil, logger.NewNop())
	assembler := assembly.New(visits, "https://www.vantage-advisory.com", 1, 1, nil)
	sub := &blockingSubmitter{release: make(chan struct{}), done: make(chan struct{})}

	trigger := chatLeadTrigger(assembler, sub)

	finished := make(chan struct{})
	go func() {
		trigger("session-1", []domain.ChatInteraction{
			{SessionID: "session-1", UserMessage: "hi", Email: "jane@x.com"},
		})
		close(finished)
	}()

	// The vendor's event callback must get its response back while the
	// webhook and CRM attempts are still in flight.
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("trigger blocked on the submission")
	}

	close(sub.release)
	select {
	case <-sub.done:
	case <-time.After(time.Second):
		t.Fatal("submission never ran")
	}

	if sub.source != domain.SourceChatbot {
		t.Errorf("source = %q, want %q", sub.source, domain.SourceChatbot)
	}
	if sub.lead.EmailFrom != "jane@x.com" {
		t.Errorf("lead email = %q, want %q", sub.lead.EmailFrom, "jane@x.com")
	}
}
