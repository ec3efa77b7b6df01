package domain

import "time"

// ChatInteraction represents one turn of a chatbot conversation.
// All fields except the timestamp are optional; the widget reports
// whatever it captured for the turn.
type ChatInteraction struct {
	SessionID   string    `json:"session_id,omitempty"`
	UserMessage string    `json:"user_message,omitempty"`
	BotResponse string    `json:"bot_response,omitempty"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	At          time.Time `json:"at"`
}
