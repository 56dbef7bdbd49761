package router

import (
	"github.com/gin-gonic/gin"
	"github.com/labelops/backend/internal/interfaces/http/handler"
)

// LedgerHandlers are the handlers behind the /api/v1 ledger routes
type LedgerHandlers struct {
	ProductionRuns *handler.ProductionRunHandler
	Allocations    *handler.AllocationHandler
	Sales          *handler.SaleHandler
	Returns        *handler.ReturnHandler
	Distributors   *handler.DistributorHandler
	// Archives is optional; without it the archive route is not mounted
	Archives *handler.ArchiveHandler
}

// LedgerGroups returns the ledger route groups, one per resource
func LedgerGroups(h LedgerHandlers) []*DomainGroup {
	runs := NewDomainGroup("production-runs", "/production-runs").
		POST("", h.ProductionRuns.Register).
		GET("/:id", h.ProductionRuns.GetByID).
		GET("/:id/allocations", h.ProductionRuns.Allocations).
		GET("/:id/movements", h.ProductionRuns.Movements).
		GET("/:id/movements/export", h.ProductionRuns.ExportMovements).
		GET("/:id/availability", h.ProductionRuns.Availability).
		GET("/:id/reconciliation", h.ProductionRuns.Reconciliation).
		POST("/:id/adjustments", h.ProductionRuns.Adjust)
	if h.Archives != nil {
		runs.POST("/:id/movements/archive", h.Archives.Archive)
	}

	allocations := NewDomainGroup("allocations", "/allocations").
		POST("", h.Allocations.Allocate)

	sales := NewDomainGroup("sales", "/sales").
		POST("", h.Sales.Record).
		GET("/:id", h.Sales.GetByID)

	returns := NewDomainGroup("returns", "/returns").
		POST("", h.Returns.Record).
		GET("/:id", h.Returns.GetByID)

	distributors := NewDomainGroup("distributors", "/distributors").
		GET("/:id/movements", h.Distributors.Movements)

	return []*DomainGroup{runs, allocations, sales, returns, distributors}
}

// Mount registers /health and the versioned ledger API on engine
func Mount(engine *gin.Engine, h LedgerHandlers, health *handler.HealthHandler, opts ...RouterOption) {
	engine.GET("/health", health.Health)

	r := NewRouter(engine, opts...)
	for _, g := range LedgerGroups(h) {
		r.Register(g)
	}
	r.Setup()
}
