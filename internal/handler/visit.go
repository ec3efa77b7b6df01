package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/metrics"
	"github.com/vantage-advisory/lead-capture/internal/tracker"
)

// visitRequest is the page view report from the site frontend.
type visitRequest struct {
	VisitorID string `binding:"required" json:"visitor_id"`
	Page      string `binding:"required" json:"page"`
	Path      string `json:"path"`
	Referrer  string `json:"referrer"`
}

// VisitHandler records page views into the visit log.
type VisitHandler struct {
	visits  *tracker.VisitLog
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewVisitHandler creates a VisitHandler. metrics may be nil in tests.
func NewVisitHandler(visits *tracker.VisitLog, m *metrics.Metrics, log logger.Logger) *VisitHandler {
	return &VisitHandler{visits: visits, metrics: m, log: log}
}

// HandleVisit records a visit. Bot traffic flagged by the filter is
// acknowledged but not recorded, so crawler noise never reaches lead
// descriptions.
func (h *VisitHandler) HandleVisit(c *gin.Context) {
	var req visitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "visitor_id and page are required"})
		return
	}

	if isBot, exists := c.Get("is_bot"); exists && isBot == true {
		c.JSON(http.StatusOK, gin.H{"recorded": false})
		return
	}

	referrer := req.Referrer
	if referrer == "" {
		referrer = c.Request.Referer()
	}

	h.visits.Record(domain.VisitRecord{
		VisitorID: req.VisitorID,
		Page:      req.Page,
		Path:      req.Path,
		Referrer:  referrer,
		UserAgent: c.Request.UserAgent(),
		VisitedAt: time.Now(),
	})

	if h.metrics != nil {
		h.metrics.VisitsRecorded.Inc()
	}

	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}

// HandleHistory returns the rendered visit history for a visitor.
func (h *VisitHandler) HandleHistory(c *gin.Context) {
	visitorID := c.Param("visitor_id")
	if visitorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "visitor_id is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"visitor_id": visitorID,
		"history":    h.visits.History(visitorID),
		"count":      h.visits.Count(visitorID),
	})
}
