package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
)

// DistributorReturn records units a distributor sent back to the label
type DistributorReturn struct {
	shared.BaseAggregateRoot
	LabelID       uuid.UUID
	DistributorID uuid.UUID
	ReturnDate    time.Time
	Notes         string
	LineItems     []ReturnLineItem
}

// ReturnLineItem is one release/format line of a return
type ReturnLineItem struct {
	ID        uuid.UUID
	ReturnID  uuid.UUID
	ReleaseID uuid.UUID
	Format    Format
	Quantity  int64
}

// Key returns the product the line returns
func (l ReturnLineItem) Key() ProductKey {
	return ProductKey{ReleaseID: l.ReleaseID, Format: l.Format}
}

// ReturnLineInput is the caller's description of a return line
type ReturnLineInput struct {
	ReleaseID uuid.UUID
	Format    Format
	Quantity  int64
}

// NewReturnParams holds the inputs for recording a return
type NewReturnParams struct {
	LabelID       uuid.UUID
	DistributorID uuid.UUID
	ReturnDate    time.Time
	Notes         string
	Lines         []ReturnLineInput
}

// NewDistributorReturn validates params and builds a return
func NewDistributorReturn(id uuid.UUID, now time.Time, ids shared.IDGenerator, p NewReturnParams) (*DistributorReturn, error) {
	if p.LabelID == uuid.Nil {
		return nil, shared.NewInvalidRequest("label id is required")
	}
	if p.DistributorID == uuid.Nil {
		return nil, shared.NewInvalidRequest("distributor id is required")
	}
	if p.ReturnDate.IsZero() {
		return nil, shared.NewInvalidRequest("return date is required")
	}
	if len(p.Lines) == 0 {
		return nil, shared.NewInvalidRequest("a return needs at least one line item")
	}

	lines := make([]ReturnLineItem, 0, len(p.Lines))
	for i, in := range p.Lines {
		n := i + 1
		if in.ReleaseID == uuid.Nil {
			return nil, shared.NewInvalidRequest("line %d: release id is required", n)
		}
		if !in.Format.IsValid() {
			return nil, shared.NewInvalidRequest("line %d: unsupported format %q", n, in.Format)
		}
		if in.Quantity <= 0 {
			return nil, shared.NewInvalidRequest("line %d: quantity must be positive, got %d", n, in.Quantity)
		}
		lines = append(lines, ReturnLineItem{
			ID:        ids.NewID(),
			ReturnID:  id,
			ReleaseID: in.ReleaseID,
			Format:    in.Format,
			Quantity:  in.Quantity,
		})
	}

	return &DistributorReturn{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(shared.NewBaseEntity(id, now)),
		LabelID:           p.LabelID,
		DistributorID:     p.DistributorID,
		ReturnDate:        p.ReturnDate,
		Notes:             p.Notes,
		LineItems:         lines,
	}, nil
}

// TotalUnits sums quantities across lines
func (r *DistributorReturn) TotalUnits() int64 {
	var n int64
	for _, l := range r.LineItems {
		n += l.Quantity
	}
	return n
}
