package domain

import "time"

// VisitRecord represents a single tracked page view.
type VisitRecord struct {
	VisitorID string    `json:"visitor_id"`
	Page      string    `json:"page"`
	Path      string    `json:"path"`
	Referrer  string    `json:"referrer,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	VisitedAt time.Time `json:"visited_at"`
}
