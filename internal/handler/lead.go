// Package handler contains the gin HTTP handlers for the lead-capture API.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vantage-advisory/lead-capture/internal/assembly"
	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

// successMessage is shown for every accepted submission, delivered or
// queued alike.
const successMessage = "Thank you! We'll be in touch shortly."

// LeadSubmitter is the orchestrator surface the handlers depend on.
type LeadSubmitter interface {
	Submit(ctx context.Context, lead domain.LeadRecord, source string)
}

// LeadHandler handles the form submission routes.
type LeadHandler struct {
	assembler    *assembly.Assembler
	orchestrator LeadSubmitter
	log          logger.Logger
}

// NewLeadHandler creates a LeadHandler.
func NewLeadHandler(assembler *assembly.Assembler, orchestrator LeadSubmitter, log logger.Logger) *LeadHandler {
	return &LeadHandler{
		assembler:    assembler,
		orchestrator: orchestrator,
		log:          log,
	}
}

// HandleContact accepts a contact form submission.
func (h *LeadHandler) HandleContact(c *gin.Context) {
	var form assembly.ContactForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and a valid email are required"})
		return
	}

	lead := h.assembler.FromContactForm(form)
	h.orchestrator.Submit(c.Request.Context(), lead, domain.SourceContactForm)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": successMessage})
}

// HandleBooking accepts a consultation booking submission.
func (h *LeadHandler) HandleBooking(c *gin.Context) {
	var form assembly.BookingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and a valid email are required"})
		return
	}

	lead := h.assembler.FromBookingForm(form)
	h.orchestrator.Submit(c.Request.Context(), lead, domain.SourceBookingForm)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": successMessage})
}

// newsletterRequest is the newsletter signup body.
type newsletterRequest struct {
	Email string `binding:"required,email" json:"email"`
}

// HandleNewsletter accepts a newsletter signup.
func (h *LeadHandler) HandleNewsletter(c *gin.Context) {
	var req newsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}

	lead := h.assembler.FromNewsletter(req.Email)
	h.orchestrator.Submit(c.Request.Context(), lead, domain.SourceNewsletter)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": successMessage})
}
