// Package tracker records page visits and chat interactions so the
// assembled lead description can carry recent browsing context.
package tracker

import (
	"strings"
	"sync"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/storage"
)

// historyTimeLayout renders timestamps the way they appear in lead
// descriptions, e.g. "Jan 1, 2024, 10:00:00 AM".
const historyTimeLayout = "Jan 2, 2006, 3:04:05 PM"

// NoVisitsSentinel is returned by History when nothing has been recorded.
const NoVisitsSentinel = "No visits recorded"

// visitorHistory is one visitor's retained window plus the time of the
// last recording, which drives idle eviction.
type visitorHistory struct {
	visits   []domain.VisitRecord
	lastSeen time.Time
}

// VisitLog keeps a bounded per-visitor history of page views. The most
// recent cap entries are retained in insertion order; the oldest entry
// is evicted first. Recorded visits are also forwarded to the storage
// buffer for durable telemetry, best effort. Visitors idle past a TTL
// are dropped by Sweep so the map cannot grow without bound under
// arbitrary visitor IDs.
type VisitLog struct {
	mu       sync.Mutex
	visitors map[string]*visitorHistory
	cap      int
	buffer   *storage.Buffer
	log      logger.Logger
}

// NewVisitLog creates a visit log retaining up to cap entries per visitor.
// buffer may be nil when durable telemetry is disabled.
func NewVisitLog(cap int, buffer *storage.Buffer, log logger.Logger) *VisitLog {
	return &VisitLog{
		visitors: make(map[string]*visitorHistory),
		cap:      cap,
		buffer:   buffer,
		log:      log,
	}
}

// Record appends a visit to the visitor's history, evicting the oldest
// entries once the cap is exceeded. Recording never fails; a full
// telemetry buffer is logged and dropped.
func (v *VisitLog) Record(visit domain.VisitRecord) {
	if visit.VisitedAt.IsZero() {
		visit.VisitedAt = time.Now()
	}

	v.mu.Lock()
	history := v.visitors[visit.VisitorID]
	if history == nil {
		history = &visitorHistory{}
		v.visitors[visit.VisitorID] = history
	}
	history.visits = append(history.visits, visit)
	if len(history.visits) > v.cap {
		history.visits = history.visits[len(history.visits)-v.cap:]
	}
	history.lastSeen = time.Now()
	v.mu.Unlock()

	if v.buffer != nil && !v.buffer.Send(visit) {
		v.log.Warn("Visit buffer full, dropping telemetry",
			logger.String("visitor_id", visit.VisitorID),
			logger.String("page", visit.Page),
		)
	}
}

// History returns a newline-joined rendering of the visitor's retained
// visits, oldest first, each line formatted "{page} ({timestamp})".
// Returns NoVisitsSentinel when no visits are recorded.
func (v *VisitLog) History(visitorID string) string {
	v.mu.Lock()
	var lines []string
	if history := v.visitors[visitorID]; history != nil {
		lines = make([]string, len(history.visits))
		for i, visit := range history.visits {
			lines[i] = visit.Page + " (" + visit.VisitedAt.Format(historyTimeLayout) + ")"
		}
	}
	v.mu.Unlock()

	if len(lines) == 0 {
		return NoVisitsSentinel
	}
	return strings.Join(lines, "\n")
}

// LastReferrer returns the referrer of the visitor's most recent visit,
// or an empty string when no visits carry one.
func (v *VisitLog) LastReferrer(visitorID string) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	history := v.visitors[visitorID]
	if history == nil {
		return ""
	}
	for i := len(history.visits) - 1; i >= 0; i-- {
		if history.visits[i].Referrer != "" {
			return history.visits[i].Referrer
		}
	}
	return ""
}

// Count returns the number of retained visits for the visitor.
func (v *VisitLog) Count(visitorID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if history := v.visitors[visitorID]; history != nil {
		return len(history.visits)
	}
	return 0
}

// Sweep drops visitors whose last recording is before cutoff and
// returns the number dropped.
func (v *VisitLog) Sweep(cutoff time.Time) int {
	v.mu.Lock()
	dropped := 0
	for id, history := range v.visitors {
		if history.lastSeen.Before(cutoff) {
			delete(v.visitors, id)
			dropped++
		}
	}
	v.mu.Unlock()

	if dropped > 0 {
		v.log.Info("Swept idle visitors", logger.Int("count", dropped))
	}
	return dropped
}

// RunSweeper sweeps visitors idle longer than idleTTL every interval
// until done is closed.
func (v *VisitLog) RunSweeper(interval, idleTTL time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			v.Sweep(time.Now().Add(-idleTTL))
		}
	}
}
