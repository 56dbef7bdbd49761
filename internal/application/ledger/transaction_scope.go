package ledger

import (
	"context"

	"github.com/labelops/backend/internal/domain/ledger"
)

// TransactionScope provides transactional access to the ledger repositories.
// Everything done through the repositories handed to fn commits or rolls back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within one transaction.
//
// Runs and Allocations hold the denormalized counters; Movements is the
// append-only ledger those counters must stay derivable from. A command writes
// to all three in the same transaction or not at all.
type TransactionalRepositories interface {
	Runs() ledger.ProductionRunRepository
	Allocations() ledger.AllocationRepository
	Movements() ledger.MovementRepository
	Sales() ledger.SaleRepository
	Returns() ledger.ReturnRepository
}

// persistChanges writes a snapshot's changes: counters first, then the movements that explain them
func persistChanges(ctx context.Context, repos TransactionalRepositories, changes ledger.Changes) error {
	for _, run := range changes.Runs {
		if err := repos.Runs().SaveWithLock(ctx, run); err != nil {
			return err
		}
	}
	for _, a := range changes.NewAllocations {
		if err := repos.Allocations().Create(ctx, a); err != nil {
			return err
		}
	}
	for _, a := range changes.UpdatedAllocations {
		if err := repos.Allocations().SaveWithLock(ctx, a); err != nil {
			return err
		}
	}
	if len(changes.Movements) == 0 {
		return nil
	}
	return repos.Movements().Append(ctx, changes.Movements...)
}
