package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vantage-advisory/lead-capture/internal/crm"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

// OptionsProvider reads the CRM reference data.
type OptionsProvider interface {
	GetFormOptions(ctx context.Context) crm.FormOptions
}

// OptionsHandler serves the dropdown reference data for the site forms.
type OptionsHandler struct {
	provider OptionsProvider
	log      logger.Logger
}

// NewOptionsHandler creates an OptionsHandler. provider may be nil when
// the CRM integration is disabled; the handler then serves empty lists.
func NewOptionsHandler(provider OptionsProvider, log logger.Logger) *OptionsHandler {
	return &OptionsHandler{provider: provider, log: log}
}

// HandleOptions returns sources, mediums and campaigns. Always 200;
// an unreachable CRM yields empty lists.
func (h *OptionsHandler) HandleOptions(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusOK, crm.EmptyFormOptions())
		return
	}
	c.JSON(http.StatusOK, h.provider.GetFormOptions(c.Request.Context()))
}
