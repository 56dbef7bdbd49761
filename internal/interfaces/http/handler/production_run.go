package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	appledger "github.com/labelops/backend/internal/application/ledger"
	"github.com/labelops/backend/internal/infrastructure/export"
	"github.com/labelops/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ProductionRunHandler serves production runs and the queries scoped to one run
type ProductionRunHandler struct {
	BaseHandler
	runs    *appledger.ProductionRunService
	queries *appledger.QueryService
}

// NewProductionRunHandler creates a new ProductionRunHandler
func NewProductionRunHandler(runs *appledger.ProductionRunService, queries *appledger.QueryService) *ProductionRunHandler {
	return &ProductionRunHandler{runs: runs, queries: queries}
}

// Register handles POST /production-runs
func (h *ProductionRunHandler) Register(c *gin.Context) {
	var req appledger.RegisterProductionRunRequest
	if !h.BindJSON(c, &req) {
		return
	}
	run, err := h.runs.Register(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, run)
}

// GetByID handles GET /production-runs/:id
func (h *ProductionRunHandler) GetByID(c *gin.Context) {
	id, ok := h.PathID(c, "production run")
	if !ok {
		return
	}
	run, err := h.queries.GetProductionRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, run)
}

// Allocations handles GET /production-runs/:id/allocations
func (h *ProductionRunHandler) Allocations(c *gin.Context) {
	id, ok := h.PathID(c, "production run")
	if !ok {
		return
	}
	allocations, err := h.queries.AllocationsByProductionRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	List(c, allocations)
}

// Movements handles GET /production-runs/:id/movements
func (h *ProductionRunHandler) Movements(c *gin.Context) {
	id, ok := h.PathID(c, "production run")
	if !ok {
		return
	}
	movements, err := h.queries.MovementsByProductionRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	List(c, movements)
}

// Availability handles GET /production-runs/:id/availability.
// ?detail=true returns the full stock position instead of the unallocated count.
func (h *ProductionRunHandler) Availability(c *gin.Context) {
	id, ok := h.PathID(c, "production run")
	if !ok {
		return
	}
	if c.Query("detail") == "true" {
		av, err := h.queries.Availability(c.Request.Context(), id)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, av)
		return
	}
	av, err := h.queries.AvailableQuantity(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, av)
}

// Reconciliation handles GET /production-runs/:id/reconciliation
func (h *ProductionRunHandler) Reconciliation(c *gin.Context) {
	id, ok := h.PathID(c, "production run")
	if !ok {
		return
	}
	report, err := h.queries.Reconcile(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !report.Consistent() {
		logger.L(c.Request.Context()).Warn("Ledger drift detected",
			zap.String("production_run_id", id.String()),
			zap.Int("discrepancies", len(report.Discrepancies)),
			zap.Strings("violations", report.Violations),
		)
	}
	h.Success(c, gin.H{
		"consistent": report.Consistent(),
		"report":     report,
	})
}

// Adjust handles POST /production-runs/:id/adjustments
func (h *ProductionRunHandler) Adjust(c *gin.Context) {
	id, ok := h.PathID(c, "production run")
	if !ok {
		return
	}
	var req appledger.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.ProductionRunID = id
	run, err := h.runs.Adjust(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, run)
}

// ExportMovements handles GET /production-runs/:id/movements/export and
// streams the run's ledger as an XLSX workbook
func (h *ProductionRunHandler) ExportMovements(c *gin.Context) {
	id, ok := h.PathID(c, "production run")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	l, err := h.queries.RunLedger(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Type", export.ContentTypeXLSX)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="production-run-%s-movements.xlsx"`, id))
	c.Status(http.StatusOK)

	wb := export.NewMovementWorkbook(l)
	if _, err := wb.WriteTo(c.Writer); err != nil {
		logger.L(ctx).Error("Failed to write movement export",
			zap.String("production_run_id", id.String()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
}
