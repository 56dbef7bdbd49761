package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// SaleModel is the persistence model for the Sale aggregate root.
type SaleModel struct {
	AggregateModel
	LabelID       uuid.UUID           `gorm:"type:uuid;not null;index"`
	SaleDate      time.Time           `gorm:"not null;index"`
	Channel       string              `gorm:"type:varchar(16);not null"`
	DistributorID *uuid.UUID          `gorm:"type:uuid;index"`
	Currency      string              `gorm:"type:varchar(3);not null"`
	TotalAmount   decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	Notes         string              `gorm:"type:text"`
	LineItems     []SaleLineItemModel `gorm:"foreignKey:SaleID;references:ID"`
}

// TableName returns the table name for GORM
func (SaleModel) TableName() string {
	return "sales"
}

// SaleLineItemModel is the persistence model for a sale line.
type SaleLineItemModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SaleID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber int             `gorm:"not null"`
	ReleaseID  uuid.UUID       `gorm:"type:uuid;not null"`
	Format     string          `gorm:"type:varchar(16);not null"`
	Quantity   int64           `gorm:"not null;check:chk_sale_line_items_quantity,quantity > 0"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	LineTotal  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (SaleLineItemModel) TableName() string {
	return "sale_line_items"
}

// ToDomain converts the persistence model to a domain Sale.
func (m *SaleModel) ToDomain() (*ledger.Sale, error) {
	currency, err := valueobject.ParseCurrency(m.Currency)
	if err != nil {
		return nil, err
	}
	total, err := valueobject.NewMoney(m.TotalAmount, currency)
	if err != nil {
		return nil, err
	}
	sale := &ledger.Sale{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		LabelID:           m.LabelID,
		SaleDate:          m.SaleDate,
		Channel:           ledger.SaleChannel(m.Channel),
		DistributorID:     m.DistributorID,
		Currency:          currency,
		Notes:             m.Notes,
		TotalAmount:       total,
		LineItems:         make([]ledger.SaleLineItem, 0, len(m.LineItems)),
	}
	for _, line := range m.LineItems {
		unit, err := valueobject.NewMoney(line.UnitPrice, currency)
		if err != nil {
			return nil, err
		}
		lineTotal, err := valueobject.NewMoney(line.LineTotal, currency)
		if err != nil {
			return nil, err
		}
		sale.LineItems = append(sale.LineItems, ledger.SaleLineItem{
			ID:        line.ID,
			SaleID:    line.SaleID,
			ReleaseID: line.ReleaseID,
			Format:    ledger.Format(line.Format),
			Quantity:  line.Quantity,
			UnitPrice: unit,
			LineTotal: lineTotal,
		})
	}
	return sale, nil
}

// SaleModelFromDomain creates a new persistence model from a domain Sale.
func SaleModelFromDomain(s *ledger.Sale) *SaleModel {
	m := &SaleModel{
		LabelID:       s.LabelID,
		SaleDate:      s.SaleDate,
		Channel:       string(s.Channel),
		DistributorID: s.DistributorID,
		Currency:      string(s.Currency),
		TotalAmount:   s.TotalAmount.Amount(),
		Notes:         s.Notes,
		LineItems:     make([]SaleLineItemModel, 0, len(s.LineItems)),
	}
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	for i, line := range s.LineItems {
		m.LineItems = append(m.LineItems, SaleLineItemModel{
			ID:         line.ID,
			SaleID:     s.ID,
			LineNumber: i + 1,
			ReleaseID:  line.ReleaseID,
			Format:     string(line.Format),
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice.Amount(),
			LineTotal:  line.LineTotal.Amount(),
		})
	}
	return m
}

// DistributorReturnModel is the persistence model for the DistributorReturn aggregate root.
type DistributorReturnModel struct {
	AggregateModel
	LabelID       uuid.UUID             `gorm:"type:uuid;not null;index"`
	DistributorID uuid.UUID             `gorm:"type:uuid;not null;index"`
	ReturnDate    time.Time             `gorm:"not null;index"`
	Notes         string                `gorm:"type:text"`
	LineItems     []ReturnLineItemModel `gorm:"foreignKey:ReturnID;references:ID"`
}

// TableName returns the table name for GORM
func (DistributorReturnModel) TableName() string {
	return "distributor_returns"
}

// ReturnLineItemModel is the persistence model for a return line.
type ReturnLineItemModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReturnID   uuid.UUID `gorm:"type:uuid;not null;index"`
	LineNumber int       `gorm:"not null"`
	ReleaseID  uuid.UUID `gorm:"type:uuid;not null"`
	Format     string    `gorm:"type:varchar(16);not null"`
	Quantity   int64     `gorm:"not null;check:chk_return_line_items_quantity,quantity > 0"`
}

// TableName returns the table name for GORM
func (ReturnLineItemModel) TableName() string {
	return "return_line_items"
}

// ToDomain converts the persistence model to a domain DistributorReturn.
func (m *DistributorReturnModel) ToDomain() *ledger.DistributorReturn {
	ret := &ledger.DistributorReturn{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		LabelID:           m.LabelID,
		DistributorID:     m.DistributorID,
		ReturnDate:        m.ReturnDate,
		Notes:             m.Notes,
		LineItems:         make([]ledger.ReturnLineItem, 0, len(m.LineItems)),
	}
	for _, line := range m.LineItems {
		ret.LineItems = append(ret.LineItems, ledger.ReturnLineItem{
			ID:        line.ID,
			ReturnID:  line.ReturnID,
			ReleaseID: line.ReleaseID,
			Format:    ledger.Format(line.Format),
			Quantity:  line.Quantity,
		})
	}
	return ret
}

// DistributorReturnModelFromDomain creates a new persistence model from a domain DistributorReturn.
func DistributorReturnModelFromDomain(r *ledger.DistributorReturn) *DistributorReturnModel {
	m := &DistributorReturnModel{
		LabelID:       r.LabelID,
		DistributorID: r.DistributorID,
		ReturnDate:    r.ReturnDate,
		Notes:         r.Notes,
		LineItems:     make([]ReturnLineItemModel, 0, len(r.LineItems)),
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	for i, line := range r.LineItems {
		m.LineItems = append(m.LineItems, ReturnLineItemModel{
			ID:         line.ID,
			ReturnID:   r.ID,
			LineNumber: i + 1,
			ReleaseID:  line.ReleaseID,
			Format:     string(line.Format),
			Quantity:   line.Quantity,
		})
	}
	return m
}

// AllModels returns every model in dependency order for AutoMigrate.
func AllModels() []any {
	return []any{
		&ProductionRunModel{},
		&ChannelAllocationModel{},
		&InventoryMovementModel{},
		&SaleModel{},
		&SaleLineItemModel{},
		&DistributorReturnModel{},
		&ReturnLineItemModel{},
	}
}
