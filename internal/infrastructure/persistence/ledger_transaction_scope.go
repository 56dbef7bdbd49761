package persistence

import (
	"context"

	appledger "github.com/labelops/backend/internal/application/ledger"
	"github.com/labelops/backend/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every repository handed to fn shares the same transaction, so a command
// either commits all of its rows or none of them.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
// If fn returns an error the transaction is rolled back, otherwise it is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Runs returns the production run repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Runs() ledger.ProductionRunRepository {
	return NewGormProductionRunRepository(r.tx)
}

// Allocations returns the allocation repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Allocations() ledger.AllocationRepository {
	return NewGormAllocationRepository(r.tx)
}

// Movements returns the movement repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Movements() ledger.MovementRepository {
	return NewGormMovementRepository(r.tx)
}

// Sales returns the sale repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Sales() ledger.SaleRepository {
	return NewGormSaleRepository(r.tx)
}

// Returns returns the distributor return repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Returns() ledger.ReturnRepository {
	return NewGormReturnRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
