package tracker

import (
	"sync"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

// ChatSession holds the interactions of one chatbot conversation.
// Once a lead attempt fires the interactions are cleared; the session
// record itself stays so a second attempt cannot fire for the same
// conversation, until Sweep drops it after the idle TTL.
type ChatSession struct {
	Interactions []domain.ChatInteraction
	LeadFired    bool

	lastSeen time.Time
}

// LeadTrigger is invoked when a chat session crosses the lead threshold.
// It receives the session ID and a snapshot of the interactions that
// accumulated before the trigger. The tracker ignores its outcome; the
// session is cleared regardless.
type LeadTrigger func(sessionID string, interactions []domain.ChatInteraction)

// ChatRegistry tracks chatbot interactions per session and fires a
// single lead-creation attempt when a session captures an email or
// reaches triggerCount interactions.
type ChatRegistry struct {
	mu           sync.Mutex
	sessions     map[string]*ChatSession
	triggerCount int
	trigger      LeadTrigger
	log          logger.Logger
}

// NewChatRegistry creates a registry that fires trigger once per session.
func NewChatRegistry(triggerCount int, trigger LeadTrigger, log logger.Logger) *ChatRegistry {
	return &ChatRegistry{
		sessions:     make(map[string]*ChatSession),
		triggerCount: triggerCount,
		trigger:      trigger,
		log:          log,
	}
}

// RecordInteraction appends an interaction to its session, timestamping
// it if the caller did not. When the appended interaction carries an
// email, or the session reaches the trigger count, exactly one lead
// attempt fires and the session's interactions are cleared. Returns
// true if this call fired the lead attempt.
func (c *ChatRegistry) RecordInteraction(interaction domain.ChatInteraction) bool {
	if interaction.At.IsZero() {
		interaction.At = time.Now()
	}

	c.mu.Lock()
	session := c.sessions[interaction.SessionID]
	if session == nil {
		session = &ChatSession{}
		c.sessions[interaction.SessionID] = session
	}

	session.Interactions = append(session.Interactions, interaction)
	session.lastSeen = time.Now()

	fire := !session.LeadFired &&
		(interaction.Email != "" || len(session.Interactions) >= c.triggerCount)

	var snapshot []domain.ChatInteraction
	if fire {
		session.LeadFired = true
		snapshot = session.Interactions
		session.Interactions = nil
	}
	c.mu.Unlock()

	if !fire {
		return false
	}

	c.log.Info("Chat session crossed lead threshold",
		logger.String("session_id", interaction.SessionID),
		logger.Int("interactions", len(snapshot)),
		logger.Bool("email_captured", interaction.Email != ""),
	)

	if c.trigger != nil {
		c.trigger(interaction.SessionID, snapshot)
	}
	return true
}

// InteractionCount returns the number of buffered interactions for a session.
func (c *ChatRegistry) InteractionCount(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session := c.sessions[sessionID]; session != nil {
		return len(session.Interactions)
	}
	return 0
}

// EndSession drops all state for a session, allowing its ID to be reused.
func (c *ChatRegistry) EndSession(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

// Sweep drops sessions, fired or not, whose last interaction is before
// cutoff, and returns the number dropped. Vendors rarely call the
// end-session endpoint, so this is what actually bounds the map.
func (c *ChatRegistry) Sweep(cutoff time.Time) int {
	c.mu.Lock()
	dropped := 0
	for id, session := range c.sessions {
		if session.lastSeen.Before(cutoff) {
			delete(c.sessions, id)
			dropped++
		}
	}
	c.mu.Unlock()

	if dropped > 0 {
		c.log.Info("Swept idle chat sessions", logger.Int("count", dropped))
	}
	return dropped
}

// RunSweeper sweeps sessions idle longer than idleTTL every interval
// until done is closed.
func (c *ChatRegistry) RunSweeper(interval, idleTTL time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.Sweep(time.Now().Add(-idleTTL))
		}
	}
}
