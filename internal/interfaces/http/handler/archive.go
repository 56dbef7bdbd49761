package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/infrastructure/export"
)

// WorkbookPublisher archives a run's movement workbook and signs a link to it
type WorkbookPublisher interface {
	Publish(ctx context.Context, runID uuid.UUID, day time.Time, expiresIn time.Duration) (*export.ArchivedWorkbook, error)
}

// ArchiveHandler snapshots production run ledgers into object storage on demand
type ArchiveHandler struct {
	BaseHandler
	publisher WorkbookPublisher
	clock     shared.Clock
	expiresIn time.Duration
}

// NewArchiveHandler creates a new ArchiveHandler
func NewArchiveHandler(publisher WorkbookPublisher, clock shared.Clock, expiresIn time.Duration) *ArchiveHandler {
	return &ArchiveHandler{publisher: publisher, clock: clock, expiresIn: expiresIn}
}

// Archive handles POST /production-runs/:id/movements/archive
func (h *ArchiveHandler) Archive(c *gin.Context) {
	id, ok := h.PathID(c, "production run")
	if !ok {
		return
	}
	archived, err := h.publisher.Publish(c.Request.Context(), id, h.clock.Now(), h.expiresIn)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, archived)
}
