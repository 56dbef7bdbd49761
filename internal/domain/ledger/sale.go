package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/domain/shared/valueobject"
)

// SaleChannel says where the units of a sale come from
type SaleChannel string

const (
	// SaleChannelDirect sells from a run's unallocated warehouse stock
	SaleChannelDirect SaleChannel = "DIRECT"
	// SaleChannelDistributor sells against a distributor's allocations
	SaleChannelDistributor SaleChannel = "DISTRIBUTOR"
)

// IsValid returns true if the channel is known
func (c SaleChannel) IsValid() bool {
	return c == SaleChannelDirect || c == SaleChannelDistributor
}

// ParseSaleChannel normalizes a channel name
func ParseSaleChannel(s string) (SaleChannel, error) {
	c := SaleChannel(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", shared.NewInvalidRequest("unsupported sale channel %q", s)
	}
	return c, nil
}

// Sale is an immutable record of units sold. Corrections are new RETURN or
// ADJUSTMENT movements, never edits.
type Sale struct {
	shared.BaseAggregateRoot
	LabelID       uuid.UUID
	SaleDate      time.Time
	Channel       SaleChannel
	DistributorID *uuid.UUID
	Currency      valueobject.Currency
	Notes         string
	LineItems     []SaleLineItem
	TotalAmount   valueobject.Money
}

// SaleLineItem is one release/format line of a sale
type SaleLineItem struct {
	ID        uuid.UUID
	SaleID    uuid.UUID
	ReleaseID uuid.UUID
	Format    Format
	Quantity  int64
	UnitPrice valueobject.Money
	LineTotal valueobject.Money
}

// Key returns the product the line sells
func (l SaleLineItem) Key() ProductKey {
	return ProductKey{ReleaseID: l.ReleaseID, Format: l.Format}
}

// SaleLineInput is the caller's description of a sale line
type SaleLineInput struct {
	ReleaseID uuid.UUID
	Format    Format
	Quantity  int64
	UnitPrice valueobject.Money
}

// NewSaleParams holds the inputs for recording a sale
type NewSaleParams struct {
	LabelID       uuid.UUID
	SaleDate      time.Time
	Channel       SaleChannel
	DistributorID *uuid.UUID
	Notes         string
	Lines         []SaleLineInput
}

// NewSale validates params and builds a sale with computed line totals.
// All lines must share one currency.
func NewSale(id uuid.UUID, now time.Time, ids shared.IDGenerator, p NewSaleParams) (*Sale, error) {
	if p.LabelID == uuid.Nil {
		return nil, shared.NewInvalidRequest("label id is required")
	}
	if p.SaleDate.IsZero() {
		return nil, shared.NewInvalidRequest("sale date is required")
	}
	if !p.Channel.IsValid() {
		return nil, shared.NewInvalidRequest("unsupported sale channel %q", p.Channel)
	}
	switch p.Channel {
	case SaleChannelDistributor:
		if p.DistributorID == nil || *p.DistributorID == uuid.Nil {
			return nil, shared.NewInvalidRequest("distributor id is required for a distributor sale")
		}
	case SaleChannelDirect:
		if p.DistributorID != nil {
			return nil, shared.NewInvalidRequest("a direct sale cannot name a distributor")
		}
	}
	if len(p.Lines) == 0 {
		return nil, shared.NewInvalidRequest("a sale needs at least one line item")
	}

	currency := p.Lines[0].UnitPrice.Currency()
	if currency == "" {
		return nil, shared.NewInvalidRequest("line 1: unit price currency is required")
	}
	total := valueobject.Zero(currency)
	lines := make([]SaleLineItem, 0, len(p.Lines))

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
		if in.UnitPrice.IsNegative() {
			return nil, shared.NewInvalidRequest("line %d: unit price must not be negative", n)
		}
		if in.UnitPrice.Currency() != currency {
			return nil, shared.NewInvalidRequest("line %d: currency %s does not match sale currency %s", n, in.UnitPrice.Currency(), currency)
		}

		lineTotal := in.UnitPrice.MultiplyByInt(in.Quantity).RoundToMinorUnits()
		sum, err := total.Add(lineTotal)
		if err != nil {
			return nil, shared.NewInvalidRequest("line %d: %v", n, err)
		}
		total = sum

		lines = append(lines, SaleLineItem{
			ID:        ids.NewID(),
			SaleID:    id,
			ReleaseID: in.ReleaseID,
			Format:    in.Format,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			LineTotal: lineTotal,
		})
	}

	sale := &Sale{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(shared.NewBaseEntity(id, now)),
		LabelID:           p.LabelID,
		SaleDate:          p.SaleDate,
		Channel:           p.Channel,
		DistributorID:     p.DistributorID,
		Currency:          currency,
		Notes:             p.Notes,
		LineItems:         lines,
		TotalAmount:       total,
	}
	return sale, nil
}

// TotalUnits sums quantities across lines
func (s *Sale) TotalUnits() int64 {
	var n int64
	for _, l := range s.LineItems {
		n += l.Quantity
	}
	return n
}
