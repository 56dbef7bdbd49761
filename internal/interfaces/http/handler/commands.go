package handler

import (
	"github.com/gin-gonic/gin"
	appledger "github.com/labelops/backend/internal/application/ledger"
)

// AllocationHandler serves channel allocations
type AllocationHandler struct {
	BaseHandler
	allocations *appledger.AllocationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(allocations *appledger.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocations: allocations}
}

// Allocate handles POST /allocations
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req appledger.AllocateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	allocation, err := h.allocations.Allocate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, allocation)
}

// SaleHandler serves sales
type SaleHandler struct {
	BaseHandler
	sales   *appledger.SaleService
	queries *appledger.QueryService
}

// NewSaleHandler creates a new SaleHandler
func NewSaleHandler(sales *appledger.SaleService, queries *appledger.QueryService) *SaleHandler {
	return &SaleHandler{sales: sales, queries: queries}
}

// Record handles POST /sales
func (h *SaleHandler) Record(c *gin.Context) {
	var req appledger.RecordSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	sale, err := h.sales.RecordSale(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, sale)
}

// GetByID handles GET /sales/:id
func (h *SaleHandler) GetByID(c *gin.Context) {
	id, ok := h.PathID(c, "sale")
	if !ok {
		return
	}
	sale, err := h.queries.GetSale(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, sale)
}

// ReturnHandler serves distributor returns
type ReturnHandler struct {
	BaseHandler
	returns *appledger.ReturnService
	queries *appledger.QueryService
}

// NewReturnHandler creates a new ReturnHandler
func NewReturnHandler(returns *appledger.ReturnService, queries *appledger.QueryService) *ReturnHandler {
	return &ReturnHandler{returns: returns, queries: queries}
}

// Record handles POST /returns
func (h *ReturnHandler) Record(c *gin.Context) {
	var req appledger.RecordReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ret, err := h.returns.RecordReturn(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ret)
}

// GetByID handles GET /returns/:id
func (h *ReturnHandler) GetByID(c *gin.Context) {
	id, ok := h.PathID(c, "return")
	if !ok {
		return
	}
	ret, err := h.queries.GetReturn(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ret)
}

// DistributorHandler serves the ledger as seen from one distributor
type DistributorHandler struct {
	BaseHandler
	queries *appledger.QueryService
}

// NewDistributorHandler creates a new DistributorHandler
func NewDistributorHandler(queries *appledger.QueryService) *DistributorHandler {
	return &DistributorHandler{queries: queries}
}

// Movements handles GET /distributors/:id/movements
func (h *DistributorHandler) Movements(c *gin.Context) {
	id, ok := h.PathID(c, "distributor")
	if !ok {
		return
	}
	movements, err := h.queries.MovementsByDistributor(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	List(c, movements)
}
