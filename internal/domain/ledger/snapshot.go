package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
)

// Snapshot is the consistent view of production runs and allocations a single
// command works against. Every check and counter change happens here first;
// the caller persists Changes only when the whole command succeeded, so a
// failing line leaves nothing behind.
type Snapshot struct {
	ids shared.IDGenerator
	now time.Time

	runs        map[uuid.UUID]*ProductionRun
	runOrder    []*ProductionRun
	allocations []*ChannelAllocation

	dirtyRuns   map[uuid.UUID]bool
	dirtyAllocs map[uuid.UUID]bool
	created     []*ChannelAllocation
	movements   []Movement
	sequences   map[uuid.UUID]int
}

// Changes is everything a command must write, in one transaction
type Changes struct {
	Runs               []*ProductionRun
	NewAllocations     []*ChannelAllocation
	UpdatedAllocations []*ChannelAllocation
	Movements          []Movement
}

// IsEmpty reports whether nothing changed
func (c Changes) IsEmpty() bool {
	return len(c.Runs) == 0 && len(c.NewAllocations) == 0 && len(c.UpdatedAllocations) == 0 && len(c.Movements) == 0
}

// NewSnapshot builds a snapshot. Runs are consumed oldest manufacturing date
// first and allocations oldest allocatedAt first.
func NewSnapshot(ids shared.IDGenerator, now time.Time, runs []*ProductionRun, allocations []*ChannelAllocation) *Snapshot {
	s := &Snapshot{
		ids:         ids,
		now:         now,
		runs:        make(map[uuid.UUID]*ProductionRun, len(runs)),
		runOrder:    append([]*ProductionRun(nil), runs...),
		allocations: append([]*ChannelAllocation(nil), allocations...),
		dirtyRuns:   make(map[uuid.UUID]bool),
		dirtyAllocs: make(map[uuid.UUID]bool),
		sequences:   make(map[uuid.UUID]int),
	}
	for _, r := range runs {
		s.runs[r.ID] = r
	}
	sort.SliceStable(s.runOrder, func(i, j int) bool {
		a, b := s.runOrder[i], s.runOrder[j]
		if !a.ManufacturingDate.Equal(b.ManufacturingDate) {
			return a.ManufacturingDate.Before(b.ManufacturingDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	sort.SliceStable(s.allocations, func(i, j int) bool {
		return s.allocations[i].AllocatedAt.Before(s.allocations[j].AllocatedAt)
	})
	return s
}

// Run returns a run in the snapshot
func (s *Snapshot) Run(id uuid.UUID) (*ProductionRun, bool) {
	r, ok := s.runs[id]
	return r, ok
}

// AllocationsFor returns the allocations of a run, oldest first
func (s *Snapshot) AllocationsFor(runID uuid.UUID) []*ChannelAllocation {
	out := make([]*ChannelAllocation, 0)
	for _, a := range s.allocations {
		if a.ProductionRunID == runID {
			out = append(out, a)
		}
	}
	return out
}

// Unallocated returns the unallocated units of a run
func (s *Snapshot) Unallocated(runID uuid.UUID) int64 {
	run, ok := s.runs[runID]
	if !ok {
		return 0
	}
	return Unallocated(run, s.AllocationsFor(runID))
}

// Allocate assigns quantity units of a run to a distributor as a new allocation batch
func (s *Snapshot) Allocate(runID, distributorID, allocationID uuid.UUID, quantity int64) (*ChannelAllocation, error) {
	if quantity <= 0 {
		return nil, shared.NewInvalidRequest("allocation quantity must be positive, got %d", quantity)
	}
	if distributorID == uuid.Nil {
		return nil, shared.NewInvalidRequest("distributor id is required")
	}
	run, ok := s.runs[runID]
	if !ok {
		return nil, shared.NewInvalidRequest("unknown production run %s", runID)
	}
	if available := s.Unallocated(runID); quantity > available {
		return nil, shared.NewInsufficientInventory(quantity, available)
	}

	allocation := &ChannelAllocation{
		BaseEntity:      shared.NewBaseEntity(allocationID, s.now),
		ProductionRunID: run.ID,
		DistributorID:   distributorID,
		Quantity:        quantity,
		AllocatedAt:     s.now,
		Version:         1,
	}
	s.allocations = append(s.allocations, allocation)
	s.created = append(s.created, allocation)

	run.recordAllocation(s.now)
	s.markRun(run)
	s.append(NewAllocationMovement(s.ids.NewID(), allocation, s.now))
	return allocation, nil
}

// AvailableToDistributor sums unsold units across a distributor's allocations for a product
func (s *Snapshot) AvailableToDistributor(key ProductKey, distributorID uuid.UUID) int64 {
	var total int64
	for _, a := range s.distributorAllocations(key, distributorID) {
		total += a.UnitsRemaining()
	}
	return total
}

// SoldByDistributor sums units sold across a distributor's allocations for a product
func (s *Snapshot) SoldByDistributor(key ProductKey, distributorID uuid.UUID) int64 {
	var total int64
	for _, a := range s.distributorAllocations(key, distributorID) {
		total += a.UnitsSold
	}
	return total
}

// AvailableDirect sums unallocated units across all runs of a product
func (s *Snapshot) AvailableDirect(key ProductKey) int64 {
	var total int64
	for _, r := range s.productRuns(key) {
		if u := s.Unallocated(r.ID); u > 0 {
			total += u
		}
	}
	return total
}

// SellThroughDistributor sells quantity units of a product from a distributor's
// allocations, draining the oldest allocation first. One SALE movement is
// appended per allocation touched.
func (s *Snapshot) SellThroughDistributor(key ProductKey, distributorID, saleID uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewInvalidRequest("sale quantity must be positive, got %d", quantity)
	}
	candidates := s.distributorAllocations(key, distributorID)
	if len(candidates) == 0 {
		return shared.NewInvalidRequest("no allocation of release %s (%s) to distributor %s", key.ReleaseID, key.Format, distributorID)
	}
	if available := s.AvailableToDistributor(key, distributorID); quantity > available {
		return shared.NewInsufficientInventory(quantity, available)
	}

	remaining := quantity
	for _, a := range candidates {
		if remaining == 0 {
			break
		}
		take := min(remaining, a.UnitsRemaining())
		if take == 0 {
			continue
		}
		if err := a.sell(take, s.now); err != nil {
			return err
		}
		s.markAllocation(a)
		s.append(NewChannelSaleMovement(s.ids.NewID(), a, take, saleID, s.nextSequence(saleID), s.now))
		remaining -= take
	}
	return nil
}

// SellDirect sells quantity units of a product straight from unallocated
// stock, draining the oldest production run first.
func (s *Snapshot) SellDirect(key ProductKey, saleID uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewInvalidRequest("sale quantity must be positive, got %d", quantity)
	}
	runs := s.productRuns(key)
	if len(runs) == 0 {
		return shared.NewInvalidRequest("no production run for release %s (%s)", key.ReleaseID, key.Format)
	}
	if available := s.AvailableDirect(key); quantity > available {
		return shared.NewInsufficientInventory(quantity, available)
	}

	remaining := quantity
	for _, r := range runs {
		if remaining == 0 {
			break
		}
		take := min(remaining, s.Unallocated(r.ID))
		if take <= 0 {
			continue
		}
		r.recordDirectSale(take, s.now)
		s.markRun(r)
		s.append(NewDirectSaleMovement(s.ids.NewID(), r, take, saleID, s.nextSequence(saleID), s.now))
		remaining -= take
	}
	return nil
}

// Return takes back quantity units a distributor sold, restocking the newest
// allocation first. The distributor cannot return more than it sold.
func (s *Snapshot) Return(key ProductKey, distributorID, returnID uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewInvalidRequest("return quantity must be positive, got %d", quantity)
	}
	candidates := s.distributorAllocations(key, distributorID)
	if len(candidates) == 0 {
		return shared.NewInvalidRequest("no allocation of release %s (%s) to distributor %s", key.ReleaseID, key.Format, distributorID)
	}
	if sold := s.SoldByDistributor(key, distributorID); quantity > sold {
		return shared.NewInsufficientInventory(quantity, sold)
	}

	remaining := quantity
	for i := len(candidates) - 1; i >= 0 && remaining > 0; i-- {
		a := candidates[i]
		take := min(remaining, a.UnitsSold)
		if take == 0 {
			continue
		}
		if err := a.restock(take, s.now); err != nil {
			return err
		}
		s.markAllocation(a)
		s.append(NewReturnMovement(s.ids.NewID(), a, take, returnID, s.nextSequence(returnID), s.now))
		remaining -= take
	}
	return nil
}

// Adjust writes units off a run (negative delta) or reverses an earlier
// write-off (positive delta). A run can never hold more than it was manufactured with.
func (s *Snapshot) Adjust(runID uuid.UUID, delta int64, referenceID uuid.UUID, note string) error {
	if delta == 0 {
		return shared.NewInvalidRequest("adjustment delta must not be zero")
	}
	run, ok := s.runs[runID]
	if !ok {
		return shared.NewInvalidRequest("unknown production run %s", runID)
	}
	if delta < 0 {
		if available := s.Unallocated(runID); -delta > available {
			return shared.NewInsufficientInventory(-delta, available)
		}
	} else if run.Adjustment+delta > 0 {
		return shared.NewInvalidRequest("adjustment of %d would exceed the manufactured quantity of %d", delta, run.Quantity)
	}

	run.recordAdjustment(delta, s.now)
	s.markRun(run)
	s.append(NewAdjustmentMovement(s.ids.NewID(), run, delta, referenceID, note, s.now))
	return nil
}

// Movements returns the movements appended so far
func (s *Snapshot) Movements() []Movement {
	return append([]Movement(nil), s.movements...)
}

// Changes returns the rows the command has to write
func (s *Snapshot) Changes() Changes {
	c := Changes{
		NewAllocations: append([]*ChannelAllocation(nil), s.created...),
		Movements:      s.Movements(),
	}
	for _, r := range s.runOrder {
		if s.dirtyRuns[r.ID] {
			c.Runs = append(c.Runs, r)
		}
	}
	created := make(map[uuid.UUID]bool, len(s.created))
	for _, a := range s.created {
		created[a.ID] = true
	}
	for _, a := range s.allocations {
		if s.dirtyAllocs[a.ID] && !created[a.ID] {
			c.UpdatedAllocations = append(c.UpdatedAllocations, a)
		}
	}
	return c
}

func (s *Snapshot) productRuns(key ProductKey) []*ProductionRun {
	out := make([]*ProductionRun, 0)
	for _, r := range s.runOrder {
		if r.Key() == key {
			out = append(out, r)
		}
	}
	return out
}

func (s *Snapshot) distributorAllocations(key ProductKey, distributorID uuid.UUID) []*ChannelAllocation {
	out := make([]*ChannelAllocation, 0)
	for _, a := range s.allocations {
		if a.DistributorID != distributorID {
			continue
		}
		run, ok := s.runs[a.ProductionRunID]
		if !ok || run.Key() != key {
			continue
		}
		out = append(out, a)
	}
	return out
}

// markRun schedules a run for writing. Its version moves once per command so
// the compare-and-swap in SaveWithLock sees exactly the loaded version.
func (s *Snapshot) markRun(r *ProductionRun) {
	if s.dirtyRuns[r.ID] {
		return
	}
	s.dirtyRuns[r.ID] = true
	r.IncrementVersion()
}

// markAllocation is markRun for allocations. Rows created by this command are
// inserted at version 1 and never bumped.
func (s *Snapshot) markAllocation(a *ChannelAllocation) {
	if s.dirtyAllocs[a.ID] {
		return
	}
	s.dirtyAllocs[a.ID] = true
	for _, c := range s.created {
		if c.ID == a.ID {
			return
		}
	}
	a.Version++
}

func (s *Snapshot) nextSequence(referenceID uuid.UUID) int {
	seq := s.sequences[referenceID]
	s.sequences[referenceID] = seq + 1
	return seq
}

func (s *Snapshot) append(m Movement) {
	s.movements = append(s.movements, m)
}
