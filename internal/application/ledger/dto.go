package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// RegisterProductionRunRequest represents a request to register a manufacturing batch
type RegisterProductionRunRequest struct {
	ProductionRunID   *uuid.UUID `json:"production_run_id"`
	ReleaseID         uuid.UUID  `json:"release_id" binding:"required"`
	Format            string     `json:"format" binding:"required,oneof=VINYL CD CASSETTE"`
	Description       string     `json:"description" binding:"max=500"`
	Manufacturer      string     `json:"manufacturer" binding:"max=200"`
	ManufacturingDate time.Time  `json:"manufacturing_date" binding:"required"`
	Quantity          int64      `json:"quantity" binding:"min=0"`
}

// AllocateRequest represents a request to assign units of a run to a distributor.
// AllocationID makes the request replay-safe when the caller supplies it.
type AllocateRequest struct {
	AllocationID    *uuid.UUID `json:"allocation_id"`
	ProductionRunID uuid.UUID  `json:"production_run_id" binding:"required"`
	DistributorID   uuid.UUID  `json:"distributor_id" binding:"required"`
	Quantity        int64      `json:"quantity"`
}

// SaleLineRequest is one line of a sale request
type SaleLineRequest struct {
	ReleaseID uuid.UUID       `json:"release_id" binding:"required"`
	Format    string          `json:"format" binding:"required"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// RecordSaleRequest represents a request to record a sale
type RecordSaleRequest struct {
	SaleID        *uuid.UUID        `json:"sale_id"`
	LabelID       uuid.UUID         `json:"label_id" binding:"required"`
	SaleDate      time.Time         `json:"sale_date" binding:"required"`
	Channel       string            `json:"channel" binding:"required,oneof=DIRECT DISTRIBUTOR"`
	DistributorID *uuid.UUID        `json:"distributor_id"`
	Currency      string            `json:"currency"` // defaults to USD
	Notes         string            `json:"notes" binding:"max=1000"`
	Lines         []SaleLineRequest `json:"line_items" binding:"required,min=1,dive"`
}

// ReturnLineRequest is one line of a return request
type ReturnLineRequest struct {
	ReleaseID uuid.UUID `json:"release_id" binding:"required"`
	Format    string    `json:"format" binding:"required"`
	Quantity  int64     `json:"quantity"`
}

// RecordReturnRequest represents a request to record units coming back from a distributor
type RecordReturnRequest struct {
	ReturnID      *uuid.UUID          `json:"return_id"`
	LabelID       uuid.UUID           `json:"label_id" binding:"required"`
	DistributorID uuid.UUID           `json:"distributor_id" binding:"required"`
	ReturnDate    time.Time           `json:"return_date" binding:"required"`
	Notes         string              `json:"notes" binding:"max=1000"`
	Lines         []ReturnLineRequest `json:"line_items" binding:"required,min=1,dive"`
}

// AdjustRequest represents a write-off (negative delta) or its reversal
type AdjustRequest struct {
	ProductionRunID uuid.UUID  `json:"-"`
	ReferenceID     *uuid.UUID `json:"reference_id"`
	Delta           int64      `json:"delta"`
	Reason          string     `json:"reason" binding:"required,min=1,max=255"`
}

// ProductionRunResponse represents a production run in API responses
type ProductionRunResponse struct {
	ID                uuid.UUID     `json:"id"`
	ReleaseID         uuid.UUID     `json:"release_id"`
	Format            ledger.Format `json:"format"`
	Description       string        `json:"description"`
	Manufacturer      string        `json:"manufacturer"`
	ManufacturingDate time.Time     `json:"manufacturing_date"`
	Quantity          int64         `json:"quantity"`
	DirectUnitsSold   int64         `json:"direct_units_sold"`
	Adjustment        int64         `json:"adjustment"`
	Unallocated       int64         `json:"unallocated"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Version           int           `json:"version"`
}

// AllocationResponse represents a channel allocation in API responses
type AllocationResponse struct {
	ID              uuid.UUID `json:"id"`
	ProductionRunID uuid.UUID `json:"production_run_id"`
	DistributorID   uuid.UUID `json:"distributor_id"`
	Quantity        int64     `json:"quantity"`
	UnitsSold       int64     `json:"units_sold"`
	UnitsRemaining  int64     `json:"units_remaining"`
	AllocatedAt     time.Time `json:"allocated_at"`
	Version         int       `json:"version"`
}

// MovementResponse represents a ledger entry in API responses
type MovementResponse struct {
	ID              uuid.UUID           `json:"id"`
	ProductionRunID uuid.UUID           `json:"production_run_id"`
	DistributorID   *uuid.UUID          `json:"distributor_id,omitempty"`
	AllocationID    *uuid.UUID          `json:"allocation_id,omitempty"`
	QuantityDelta   int64               `json:"quantity_delta"`
	MovementType    ledger.MovementType `json:"movement_type"`
	OccurredAt      time.Time           `json:"occurred_at"`
	ReferenceID     uuid.UUID           `json:"reference_id"`
	Sequence        int                 `json:"sequence"`
	Note            string              `json:"note,omitempty"`
}

// SaleLineItemResponse represents a sale line in API responses
type SaleLineItemResponse struct {
	ID        uuid.UUID         `json:"id"`
	ReleaseID uuid.UUID         `json:"release_id"`
	Format    ledger.Format     `json:"format"`
	Quantity  int64             `json:"quantity"`
	UnitPrice valueobject.Money `json:"unit_price"`
	LineTotal valueobject.Money `json:"line_total"`
}

// SaleResponse represents a sale in API responses
type SaleResponse struct {
	ID            uuid.UUID              `json:"id"`
	LabelID       uuid.UUID              `json:"label_id"`
	SaleDate      time.Time              `json:"sale_date"`
	Channel       ledger.SaleChannel     `json:"channel"`
	DistributorID *uuid.UUID             `json:"distributor_id,omitempty"`
	Notes         string                 `json:"notes,omitempty"`
	TotalAmount   valueobject.Money      `json:"total_amount"`
	TotalUnits    int64                  `json:"total_units"`
	LineItems     []SaleLineItemResponse `json:"line_items"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ReturnLineItemResponse represents a return line in API responses
type ReturnLineItemResponse struct {
	ID        uuid.UUID     `json:"id"`
	ReleaseID uuid.UUID     `json:"release_id"`
	Format    ledger.Format `json:"format"`
	Quantity  int64         `json:"quantity"`
}

// ReturnResponse represents a distributor return in API responses
type ReturnResponse struct {
	ID            uuid.UUID                `json:"id"`
	LabelID       uuid.UUID                `json:"label_id"`
	DistributorID uuid.UUID                `json:"distributor_id"`
	ReturnDate    time.Time                `json:"return_date"`
	Notes         string                   `json:"notes,omitempty"`
	TotalUnits    int64                    `json:"total_units"`
	LineItems     []ReturnLineItemResponse `json:"line_items"`
	CreatedAt     time.Time                `json:"created_at"`
}

// AvailableQuantityResponse is the unallocated stock of one run
type AvailableQuantityResponse struct {
	ProductionRunID uuid.UUID `json:"production_run_id"`
	Available       int64     `json:"available"`
}

// RunLedgerResponse is a run, its availability and its movements read in one transaction
type RunLedgerResponse struct {
	Run          ProductionRunResponse     `json:"run"`
	Availability AvailableQuantityResponse `json:"availability"`
	Movements    []MovementResponse        `json:"movements"`
}

// ToProductionRunResponse converts a run and its allocations to a response
func ToProductionRunResponse(run *ledger.ProductionRun, allocations []*ledger.ChannelAllocation) ProductionRunResponse {
	return ProductionRunResponse{
		ID:                run.ID,
		ReleaseID:         run.ReleaseID,
		Format:            run.Format,
		Description:       run.Description,
		Manufacturer:      run.Manufacturer,
		ManufacturingDate: run.ManufacturingDate,
		Quantity:          run.Quantity,
		DirectUnitsSold:   run.DirectUnitsSold,
		Adjustment:        run.Adjustment,
		Unallocated:       ledger.Unallocated(run, allocations),
		CreatedAt:         run.CreatedAt,
		UpdatedAt:         run.UpdatedAt,
		Version:           run.Version,
	}
}

// ToAllocationResponse converts a domain allocation to a response
func ToAllocationResponse(a *ledger.ChannelAllocation) AllocationResponse {
	return AllocationResponse{
		ID:              a.ID,
		ProductionRunID: a.ProductionRunID,
		DistributorID:   a.DistributorID,
		Quantity:        a.Quantity,
		UnitsSold:       a.UnitsSold,
		UnitsRemaining:  a.UnitsRemaining(),
		AllocatedAt:     a.AllocatedAt,
		Version:         a.Version,
	}
}

// ToAllocationResponses converts allocations to responses
func ToAllocationResponses(allocations []*ledger.ChannelAllocation) []AllocationResponse {
	out := make([]AllocationResponse, len(allocations))
	for i, a := range allocations {
		out[i] = ToAllocationResponse(a)
	}
	return out
}

// ToMovementResponse converts a ledger entry to a response
func ToMovementResponse(m ledger.Movement) MovementResponse {
	return MovementResponse{
		ID:              m.ID(),
		ProductionRunID: m.ProductionRunID(),
		DistributorID:   m.DistributorID(),
		AllocationID:    m.AllocationID(),
		QuantityDelta:   m.QuantityDelta(),
		MovementType:    m.Type(),
		OccurredAt:      m.OccurredAt(),
		ReferenceID:     m.ReferenceID(),
		Sequence:        m.Sequence(),
		Note:            m.Note(),
	}
}

// ToMovementResponses converts ledger entries to responses
func ToMovementResponses(movements []ledger.Movement) []MovementResponse {
	out := make([]MovementResponse, len(movements))
	for i, m := range movements {
		out[i] = ToMovementResponse(m)
	}
	return out
}

// ToSaleResponse converts a domain sale to a response
func ToSaleResponse(s *ledger.Sale) SaleResponse {
	lines := make([]SaleLineItemResponse, len(s.LineItems))
	for i, l := range s.LineItems {
		lines[i] = SaleLineItemResponse{
			ID:        l.ID,
			ReleaseID: l.ReleaseID,
			Format:    l.Format,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		}
	}
	return SaleResponse{
		ID:            s.ID,
		LabelID:       s.LabelID,
		SaleDate:      s.SaleDate,
		Channel:       s.Channel,
		DistributorID: s.DistributorID,
		Notes:         s.Notes,
		TotalAmount:   s.TotalAmount,
		TotalUnits:    s.TotalUnits(),
		LineItems:     lines,
		CreatedAt:     s.CreatedAt,
	}
}

// ToReturnResponse converts a domain return to a response
func ToReturnResponse(r *ledger.DistributorReturn) ReturnResponse {
	lines := make([]ReturnLineItemResponse, len(r.LineItems))
	for i, l := range r.LineItems {
		lines[i] = ReturnLineItemResponse{
			ID:        l.ID,
			ReleaseID: l.ReleaseID,
			Format:    l.Format,
			Quantity:  l.Quantity,
		}
	}
	return ReturnResponse{
		ID:            r.ID,
		LabelID:       r.LabelID,
		DistributorID: r.DistributorID,
		ReturnDate:    r.ReturnDate,
		Notes:         r.Notes,
		TotalUnits:    r.TotalUnits(),
		LineItems:     lines,
		CreatedAt:     r.CreatedAt,
	}
}
