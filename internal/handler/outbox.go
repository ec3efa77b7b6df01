package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

// OutboxReader is the repository surface the operator routes use.
type OutboxReader interface {
	Stats(ctx context.Context) (*domain.OutboxStats, error)
	GetByID(ctx context.Context, id string) (*domain.OutboxEntry, error)
}

// CycleRunner runs one dispatch cycle on demand.
type CycleRunner interface {
	Dispatch(ctx context.Context) (int, error)
}

// OutboxHandler serves the operator endpoints for outbox inspection.
type OutboxHandler struct {
	reader     OutboxReader
	dispatcher CycleRunner
	log        logger.Logger
}

// NewOutboxHandler creates an OutboxHandler.
func NewOutboxHandler(reader OutboxReader, dispatcher CycleRunner, log logger.Logger) *OutboxHandler {
	return &OutboxHandler{reader: reader, dispatcher: dispatcher, log: log}
}

// HandleStats returns the outbox state counts.
func (h *OutboxHandler) HandleStats(c *gin.Context) {
	stats, err := h.reader.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to read outbox stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read outbox stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleGet returns a single outbox entry.
func (h *OutboxHandler) HandleGet(c *gin.Context) {
	entry, err := h.reader.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	if err != nil {
		h.log.Error("Failed to read outbox entry", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read outbox entry"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// HandleDispatch runs one delivery cycle immediately instead of waiting
// for the next tick.
func (h *OutboxHandler) HandleDispatch(c *gin.Context) {
	delivered, err := h.dispatcher.Dispatch(c.Request.Context())
	if err != nil {
		h.log.Error("Manual dispatch cycle failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch cycle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}
