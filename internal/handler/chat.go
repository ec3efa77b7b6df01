package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/tracker"
)

// chatInteractionRequest is one chatbot turn reported by the widget
// integration.
type chatInteractionRequest struct {
	AgentID     string `binding:"required" json:"agent_id"`
	SessionID   string `binding:"required" json:"session_id"`
	UserMessage string `json:"user_message"`
	BotResponse string `json:"bot_response"`
	Email       string `json:"email"`
	Name        string `json:"name"`
}

// ChatHandler records chatbot interactions and reports whether a lead
// attempt fired.
type ChatHandler struct {
	registry *tracker.ChatRegistry
	agentID  string
	log      logger.Logger
}

// NewChatHandler creates a ChatHandler bound to the configured agent ID.
func NewChatHandler(registry *tracker.ChatRegistry, agentID string, log logger.Logger) *ChatHandler {
	return &ChatHandler{registry: registry, agentID: agentID, log: log}
}

// HandleInteraction records one chat turn. Requests reporting a
// different agent than the configured one are rejected; they are either
// stale embeds or spoofed traffic.
func (h *ChatHandler) HandleInteraction(c *gin.Context) {
	var req chatInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id and session_id are required"})
		return
	}

	if req.AgentID != h.agentID {
		h.log.Warn("Chat interaction for unknown agent",
			logger.String("agent_id", req.AgentID),
			logger.String("session_id", req.SessionID),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": "unknown agent"})
		return
	}

	fired := h.registry.RecordInteraction(domain.ChatInteraction{
		SessionID:   req.SessionID,
		UserMessage: req.UserMessage,
		BotResponse: req.BotResponse,
		Email:       req.Email,
		Name:        req.Name,
	})

	c.JSON(http.StatusOK, gin.H{"recorded": true, "lead_triggered": fired})
}

// HandleEndSession drops the tracked state for a session.
func (h *ChatHandler) HandleEndSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	h.registry.EndSession(sessionID)
	c.JSON(http.StatusOK, gin.H{"ended": true})
}
