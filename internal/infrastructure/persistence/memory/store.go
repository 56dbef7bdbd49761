// Package memory is an in-process ledger store. Transactions are serialized
// and staged, so a failed command leaves the store untouched.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	appledger "github.com/labelops/backend/internal/application/ledger"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
)

type movementKey struct {
	movementType ledger.MovementType
	referenceID  uuid.UUID
	sequence     int
}

type state struct {
	runs        map[uuid.UUID]*ledger.ProductionRun
	allocations map[uuid.UUID]*ledger.ChannelAllocation
	allocOrder  []uuid.UUID
	movements   []ledger.MovementRecord
	movementIDs map[movementKey]bool
	sales       map[uuid.UUID]*ledger.Sale
	returns     map[uuid.UUID]*ledger.DistributorReturn
}

// Store keeps the ledger in memory
type Store struct {
	mu    sync.Mutex
	state state
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{state: state{
		runs:        make(map[uuid.UUID]*ledger.ProductionRun),
		allocations: make(map[uuid.UUID]*ledger.ChannelAllocation),
		movementIDs: make(map[movementKey]bool),
		sales:       make(map[uuid.UUID]*ledger.Sale),
		returns:     make(map[uuid.UUID]*ledger.DistributorReturn),
	}}
}

// Execute runs fn with exclusive access to the store. Writes are staged and
// applied only if fn returns nil.
func (s *Store) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		base:        &s.state,
		runs:        make(map[uuid.UUID]*ledger.ProductionRun),
		allocations: make(map[uuid.UUID]*ledger.ChannelAllocation),
		movementIDs: make(map[movementKey]bool),
		sales:       make(map[uuid.UUID]*ledger.Sale),
		returns:     make(map[uuid.UUID]*ledger.DistributorReturn),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// transaction is a write overlay over the committed state
type transaction struct {
	base *state

	runs        map[uuid.UUID]*ledger.ProductionRun
	allocations map[uuid.UUID]*ledger.ChannelAllocation
	allocOrder  []uuid.UUID
	movements   []ledger.MovementRecord
	movementIDs map[movementKey]bool
	sales       map[uuid.UUID]*ledger.Sale
	returns     map[uuid.UUID]*ledger.DistributorReturn
}

func (t *transaction) commit() {
	for id, r := range t.runs {
		t.base.runs[id] = r
	}
	for id, a := range t.allocations {
		t.base.allocations[id] = a
	}
	t.base.allocOrder = append(t.base.allocOrder, t.allocOrder...)
	t.base.movements = append(t.base.movements, t.movements...)
	for k := range t.movementIDs {
		t.base.movementIDs[k] = true
	}
	for id, sale := range t.sales {
		t.base.sales[id] = sale
	}
	for id, r := range t.returns {
		t.base.returns[id] = r
	}
}

func (t *transaction) Runs() ledger.ProductionRunRepository     { return runRepo{t} }
func (t *transaction) Allocations() ledger.AllocationRepository { return allocationRepo{t} }
func (t *transaction) Movements() ledger.MovementRepository     { return movementRepo{t} }
func (t *transaction) Sales() ledger.SaleRepository             { return saleRepo{t} }
func (t *transaction) Returns() ledger.ReturnRepository         { return returnRepo{t} }

func (t *transaction) run(id uuid.UUID) (*ledger.ProductionRun, bool) {
	if r, ok := t.runs[id]; ok {
		return r, true
	}
	r, ok := t.base.runs[id]
	return r, ok
}

func (t *transaction) allocation(id uuid.UUID) (*ledger.ChannelAllocation, bool) {
	if a, ok := t.allocations[id]; ok {
		return a, true
	}
	a, ok := t.base.allocations[id]
	return a, ok
}

func (t *transaction) allRunIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.base.runs)+len(t.runs))
	for id := range t.base.runs {
		ids = append(ids, id)
	}
	for id := range t.runs {
		if _, ok := t.base.runs[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

func (t *transaction) allAllocationIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.base.allocOrder)+len(t.allocOrder))
	ids = append(ids, t.base.allocOrder...)
	return append(ids, t.allocOrder...)
}

func (t *transaction) allMovements() []ledger.MovementRecord {
	out := make([]ledger.MovementRecord, 0, len(t.base.movements)+len(t.movements))
	out = append(out, t.base.movements...)
	return append(out, t.movements...)
}

type runRepo struct{ t *transaction }

func (r runRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.ProductionRun, error) {
	run, ok := r.t.run(id)
	if !ok {
		return nil, shared.NewNotFound("production run", id.String())
	}
	return cloneRun(run), nil
}

func (r runRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.ProductionRun, error) {
	return r.FindByID(ctx, id)
}

func (r runRepo) FindByProductForUpdate(_ context.Context, key ledger.ProductKey) ([]*ledger.ProductionRun, error) {
	out := make([]*ledger.ProductionRun, 0)
	for _, id := range r.t.allRunIDs() {
		run, _ := r.t.run(id)
		if run.Key() == key {
			out = append(out, cloneRun(run))
		}
	}
	return out, nil
}

func (r runRepo) ListIDs(context.Context) ([]uuid.UUID, error) {
	return r.t.allRunIDs(), nil
}

func (r runRepo) Create(_ context.Context, run *ledger.ProductionRun) error {
	if _, exists := r.t.run(run.ID); exists {
		return shared.NewDomainError(shared.CodeDuplicateReference, "Production run "+run.ID.String()+" already exists")
	}
	r.t.runs[run.ID] = cloneRun(run)
	return nil
}

func (r runRepo) SaveWithLock(_ context.Context, run *ledger.ProductionRun) error {
	stored, ok := r.t.run(run.ID)
	if !ok || stored.Version != run.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.t.runs[run.ID] = cloneRun(run)
	return nil
}

type allocationRepo struct{ t *transaction }

func (r allocationRepo) FindByProductionRun(_ context.Context, runID uuid.UUID) ([]*ledger.ChannelAllocation, error) {
	return r.find(func(a *ledger.ChannelAllocation) bool { return a.ProductionRunID == runID }), nil
}

func (r allocationRepo) FindByProductionRunsForUpdate(_ context.Context, runIDs []uuid.UUID) ([]*ledger.ChannelAllocation, error) {
	wanted := make(map[uuid.UUID]bool, len(runIDs))
	for _, id := range runIDs {
		wanted[id] = true
	}
	return r.find(func(a *ledger.ChannelAllocation) bool { return wanted[a.ProductionRunID] }), nil
}

func (r allocationRepo) find(match func(*ledger.ChannelAllocation) bool) []*ledger.ChannelAllocation {
	out := make([]*ledger.ChannelAllocation, 0)
	for _, id := range r.t.allAllocationIDs() {
		a, _ := r.t.allocation(id)
		if match(a) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AllocatedAt.Before(out[j].AllocatedAt) })
	return out
}

func (r allocationRepo) Create(_ context.Context, a *ledger.ChannelAllocation) error {
	if _, exists := r.t.allocation(a.ID); exists {
		return shared.NewDomainError(shared.CodeDuplicateReference, "Allocation "+a.ID.String()+" already exists")
	}
	c := *a
	r.t.allocations[a.ID] = &c
	r.t.allocOrder = append(r.t.allocOrder, a.ID)
	return nil
}

func (r allocationRepo) SaveWithLock(_ context.Context, a *ledger.ChannelAllocation) error {
	stored, ok := r.t.allocation(a.ID)
	if !ok || stored.Version != a.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	c := *a
	r.t.allocations[a.ID] = &c
	return nil
}

type movementRepo struct{ t *transaction }

func (r movementRepo) Append(_ context.Context, movements ...ledger.Movement) error {
	for _, m := range movements {
		k := movementKey{movementType: m.Type(), referenceID: m.ReferenceID(), sequence: m.Sequence()}
		if r.t.base.movementIDs[k] || r.t.movementIDs[k] {
			return shared.NewDomainError(shared.CodeDuplicateReference,
				"Movement "+m.Type().String()+" "+m.ReferenceID().String()+" is already recorded")
		}
		r.t.movementIDs[k] = true
		r.t.movements = append(r.t.movements, m.Record())
	}
	return nil
}

func (r movementRepo) FindByProductionRun(_ context.Context, runID uuid.UUID) ([]ledger.Movement, error) {
	return r.find(func(rec ledger.MovementRecord) bool { return rec.ProductionRunID == runID })
}

func (r movementRepo) FindByDistributor(_ context.Context, distributorID uuid.UUID) ([]ledger.Movement, error) {
	return r.find(func(rec ledger.MovementRecord) bool {
		return rec.DistributorID != nil && *rec.DistributorID == distributorID
	})
}

func (r movementRepo) ExistsByReference(_ context.Context, movementType ledger.MovementType, referenceID uuid.UUID) (bool, error) {
	// every reference starts at sequence 0
	k := movementKey{movementType: movementType, referenceID: referenceID}
	return r.t.base.movementIDs[k] || r.t.movementIDs[k], nil
}

func (r movementRepo) find(match func(ledger.MovementRecord) bool) ([]ledger.Movement, error) {
	out := make([]ledger.Movement, 0)
	for _, rec := range r.t.allMovements() {
		if !match(rec) {
			continue
		}
		m, err := ledger.RestoreMovement(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type saleRepo struct{ t *transaction }

func (r saleRepo) Create(_ context.Context, sale *ledger.Sale) error {
	if _, ok := r.t.base.sales[sale.ID]; ok {
		return shared.NewDomainError(shared.CodeDuplicateReference, "Sale "+sale.ID.String()+" already exists")
	}
	if _, ok := r.t.sales[sale.ID]; ok {
		return shared.NewDomainError(shared.CodeDuplicateReference, "Sale "+sale.ID.String()+" already exists")
	}
	r.t.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (r saleRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.Sale, error) {
	if sale, ok := r.t.sales[id]; ok {
		return cloneSale(sale), nil
	}
	if sale, ok := r.t.base.sales[id]; ok {
		return cloneSale(sale), nil
	}
	return nil, shared.NewNotFound("sale", id.String())
}

type returnRepo struct{ t *transaction }

func (r returnRepo) Create(_ context.Context, ret *ledger.DistributorReturn) error {
	_, inBase := r.t.base.returns[ret.ID]
	_, inTx := r.t.returns[ret.ID]
	if inBase || inTx {
		return shared.NewDomainError(shared.CodeDuplicateReference, "Return "+ret.ID.String()+" already exists")
	}
	r.t.returns[ret.ID] = cloneReturn(ret)
	return nil
}

func (r returnRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.DistributorReturn, error) {
	if ret, ok := r.t.returns[id]; ok {
		return cloneReturn(ret), nil
	}
	if ret, ok := r.t.base.returns[id]; ok {
		return cloneReturn(ret), nil
	}
	return nil, shared.NewNotFound("distributor return", id.String())
}

func cloneRun(r *ledger.ProductionRun) *ledger.ProductionRun {
	c := *r
	c.ClearDomainEvents()
	return &c
}

func cloneSale(s *ledger.Sale) *ledger.Sale {
	c := *s
	c.ClearDomainEvents()
	c.LineItems = append([]ledger.SaleLineItem(nil), s.LineItems...)
	return &c
}

func cloneReturn(r *ledger.DistributorReturn) *ledger.DistributorReturn {
	c := *r
	c.ClearDomainEvents()
	c.LineItems = append([]ledger.ReturnLineItem(nil), r.LineItems...)
	return &c
}

var (
	_ appledger.TransactionScope          = (*Store)(nil)
	_ appledger.TransactionalRepositories = (*transaction)(nil)
)
