package tracker

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/storage"
)

func newTestVisitLog(cap int) *VisitLog {
	return NewVisitLog(cap, nil, logger.NewNop())
}

func TestVisitLogHistoryEmpty(t *testing.T) {
	log := newTestVisitLog(10)

	if got := log.History("visitor-1"); got != NoVisitsSentinel {
		t.Errorf("History() = %q, want %q", got, NoVisitsSentinel)
	}
}

func TestVisitLogHistoryFormat(t *testing.T) {
	log := newTestVisitLog(10)

	visited := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	log.Record(domain.VisitRecord{
		VisitorID: "visitor-1",
		Page:      "Home",
		Path:      "/",
		VisitedAt: visited,
	})

	want := "Home (Jan 1, 2024, 10:00:00 AM)"
	if got := log.History("visitor-1"); got != want {
		t.Errorf("History() = %q, want %q", got, want)
	}
}

func TestVisitLogHistoryOrderAndCap(t *testing.T) {
	const cap = 10
	log := newTestVisitLog(cap)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range 15 {
		log.Record(domain.VisitRecord{
			VisitorID: "visitor-1",
			Page:      fmt.Sprintf("Page %d", i),
			Path:      fmt.Sprintf("/page-%d", i),
			VisitedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	lines := strings.Split(log.History("visitor-1"), "\n")
	if len(lines) != cap {
		t.Fatalf("history has %d lines, want %d", len(lines), cap)
	}

	// Oldest retained entry is visit 5; newest is visit 14.
	if !strings.HasPrefix(lines[0], "Page 5 ") {
		t.Errorf("first line = %q, want prefix %q", lines[0], "Page 5 ")
	}
	if !strings.HasPrefix(lines[cap-1], "Page 14 ") {
		t.Errorf("last line = %q, want prefix %q", lines[cap-1], "Page 14 ")
	}
}

func TestVisitLogHistoryIdempotent(t *testing.T) {
	log := newTestVisitLog(10)

	log.Record(domain.VisitRecord{VisitorID: "visitor-1", Page: "About", Path: "/about"})

	first := log.History("visitor-1")
	second := log.History("visitor-1")
	if first != second {
		t.Errorf("consecutive History() calls differ: %q vs %q", first, second)
	}
}

func TestVisitLogVisitorsIsolated(t *testing.T) {
	log := newTestVisitLog(10)

	log.Record(domain.VisitRecord{VisitorID: "visitor-1", Page: "Home", Path: "/"})

	if got := log.History("visitor-2"); got != NoVisitsSentinel {
		t.Errorf("History() for untracked visitor = %q, want sentinel", got)
	}
	if got := log.Count("visitor-1"); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestVisitLogLastReferrer(t *testing.T) {
	log := newTestVisitLog(10)

	log.Record(domain.VisitRecord{VisitorID: "v", Page: "Home", Referrer: "https://google.com"})
	log.Record(domain.VisitRecord{VisitorID: "v", Page: "Services"})

	if got := log.LastReferrer("v"); got != "https://google.com" {
		t.Errorf("LastReferrer() = %q, want %q", got, "https://google.com")
	}
	if got := log.LastReferrer("unknown"); got != "" {
		t.Errorf("LastReferrer() for unknown visitor = %q, want empty", got)
	}
}

func TestVisitLogSweepEvictsIdleVisitors(t *testing.T) {
	log := newTestVisitLog(10)

	// Arbitrary visitor IDs on an open endpoint must not accumulate
	// forever; everything idle past the cutoff is dropped.
	for i := range 1000 {
		log.Record(domain.VisitRecord{
			VisitorID: fmt.Sprintf("visitor-%d", i),
			Page:      "Home",
			Path:      "/",
		})
	}

	if dropped := log.Sweep(time.Now().Add(time.Minute)); dropped != 1000 {
		t.Fatalf("Sweep() dropped %d visitors, want 1000", dropped)
	}
	if got := log.History("visitor-0"); got != NoVisitsSentinel {
		t.Errorf("History() after sweep = %q, want sentinel", got)
	}
	if got := log.Count("visitor-999"); got != 0 {
		t.Errorf("Count() after sweep = %d, want 0", got)
	}
}

func TestVisitLogSweepRetainsActiveVisitors(t *testing.T) {
	log := newTestVisitLog(10)

	log.Record(domain.VisitRecord{VisitorID: "active", Page: "Home", Path: "/"})

	if dropped := log.Sweep(time.Now().Add(-time.Hour)); dropped != 0 {
		t.Errorf("Sweep() dropped %d visitors, want 0", dropped)
	}
	if got := log.Count("active"); got != 1 {
		t.Errorf("Count() after sweep = %d, want 1", got)
	}
}

func TestVisitLogForwardsToBuffer(t *testing.T) {
	buffer := storage.NewBuffer(2)
	log := NewVisitLog(10, buffer, logger.NewNop())

	log.Record(domain.VisitRecord{VisitorID: "v", Page: "Home", Path: "/"})
	log.Record(domain.VisitRecord{VisitorID: "v", Page: "About", Path: "/about"})

	if got := buffer.Len(); got != 2 {
		t.Errorf("buffer.Len() = %d, want 2", got)
	}

	// Buffer full: recording still succeeds, telemetry is dropped.
	log.Record(domain.VisitRecord{VisitorID: "v", Page: "Contact", Path: "/contact"})
	if got := log.Count("v"); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	if got := buffer.Len(); got != 2 {
		t.Errorf("buffer.Len() after overflow = %d, want 2", got)
	}
}
