package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// Unallocated returns the units of a run not assigned to any distributor and
// not sold direct. It is computed only from persisted state.
func Unallocated(run *ProductionRun, allocations []*ChannelAllocation) int64 {
	var allocated int64
	for _, a := range allocations {
		if a.ProductionRunID != run.ID {
			continue
		}
		allocated += a.Quantity
	}
	return run.Capacity() - allocated - run.DirectUnitsSold
}

// UnitsRemaining returns allocation.quantity - allocation.unitsSold
func UnitsRemaining(a *ChannelAllocation) int64 {
	return a.Quantity - a.UnitsSold
}

// Availability summarizes the stock position of one production run
type Availability struct {
	ProductionRunID uuid.UUID `json:"production_run_id"`
	Quantity        int64     `json:"quantity"`
	Adjustment      int64     `json:"adjustment"`
	Allocated       int64     `json:"allocated"`
	DirectUnitsSold int64     `json:"direct_units_sold"`
	ChannelSold     int64     `json:"channel_units_sold"`
	// Unallocated is what the run can still allocate or sell direct
	Unallocated int64 `json:"unallocated"`
	// ChannelRemaining is the unsold units sitting in allocations
	ChannelRemaining int64 `json:"channel_remaining"`
}

// CalculateAvailability derives the Availability of a run from its allocations
func CalculateAvailability(run *ProductionRun, allocations []*ChannelAllocation) Availability {
	av := Availability{
		ProductionRunID: run.ID,
		Quantity:        run.Quantity,
		Adjustment:      run.Adjustment,
		DirectUnitsSold: run.DirectUnitsSold,
		Unallocated:     Unallocated(run, allocations),
	}
	for _, a := range allocations {
		if a.ProductionRunID != run.ID {
			continue
		}
		av.Allocated += a.Quantity
		av.ChannelSold += a.UnitsSold
		av.ChannelRemaining += UnitsRemaining(a)
	}
	return av
}

// Discrepancy is one mismatch found by Reconcile
type Discrepancy struct {
	Subject   string    `json:"subject"`
	SubjectID uuid.UUID `json:"subject_id"`
	Field     string    `json:"field"`
	Stored    int64     `json:"stored"`
	Replayed  int64     `json:"replayed"`
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("%s %s: %s stored=%d replayed=%d", d.Subject, d.SubjectID, d.Field, d.Stored, d.Replayed)
}

// ReconciliationReport compares the denormalized counters with a replay of the ledger
type ReconciliationReport struct {
	ProductionRunID     uuid.UUID     `json:"production_run_id"`
	MovementCount       int           `json:"movement_count"`
	StoredUnallocated   int64         `json:"stored_unallocated"`
	ReplayedUnallocated int64         `json:"replayed_unallocated"`
	Discrepancies       []Discrepancy `json:"discrepancies"`
	// Violations lists broken invariants on the stored counters themselves
	Violations []string `json:"violations"`
}

// Consistent reports whether the counters match the ledger and hold every invariant
func (r ReconciliationReport) Consistent() bool {
	return len(r.Discrepancies) == 0 && len(r.Violations) == 0
}

type replayedAllocation struct {
	quantity  int64
	unitsSold int64
}

// Reconcile replays every movement of a run and checks the result against the
// stored run and allocation counters.
func Reconcile(run *ProductionRun, allocations []*ChannelAllocation, movements []Movement) ReconciliationReport {
	report := ReconciliationReport{
		ProductionRunID:   run.ID,
		StoredUnallocated: Unallocated(run, allocations),
		Discrepancies:     []Discrepancy{},
		Violations:        []string{},
	}

	replayedUnallocated := run.Quantity
	var replayedDirect, replayedAdjustment int64
	replayed := make(map[uuid.UUID]*replayedAllocation)

	for _, m := range movements {
		if m.ProductionRunID() != run.ID {
			continue
		}
		report.MovementCount++

		delta := m.QuantityDelta()
		switch m.Type() {
		case MovementTypeAllocation:
			replayedUnallocated += delta
			entry(replayed, *m.AllocationID()).quantity -= delta
		case MovementTypeSale:
			if m.IsDirect() {
				replayedUnallocated += delta
				replayedDirect -= delta
				continue
			}
			entry(replayed, *m.AllocationID()).unitsSold -= delta
		case MovementTypeReturn:
			entry(replayed, *m.AllocationID()).unitsSold -= delta
		case MovementTypeAdjustment:
			replayedUnallocated += delta
			replayedAdjustment += delta
		}
	}
	report.ReplayedUnallocated = replayedUnallocated

	add := func(subject string, id uuid.UUID, field string, stored, replayed int64) {
		if stored != replayed {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				Subject: subject, SubjectID: id, Field: field, Stored: stored, Replayed: replayed,
			})
		}
	}

	add("production_run", run.ID, "unallocated", report.StoredUnallocated, replayedUnallocated)
	add("production_run", run.ID, "direct_units_sold", run.DirectUnitsSold, replayedDirect)
	add("production_run", run.ID, "adjustment", run.Adjustment, replayedAdjustment)

	var allocated int64
	seen := make(map[uuid.UUID]bool, len(allocations))
	for _, a := range allocations {
		if a.ProductionRunID != run.ID {
			continue
		}
		seen[a.ID] = true
		allocated += a.Quantity

		r := replayed[a.ID]
		if r == nil {
			r = &replayedAllocation{}
		}
		add("allocation", a.ID, "quantity", a.Quantity, r.quantity)
		add("allocation", a.ID, "units_sold", a.UnitsSold, r.unitsSold)

		if a.UnitsSold < 0 || a.UnitsSold > a.Quantity {
			report.Violations = append(report.Violations,
				fmt.Sprintf("allocation %s: units sold %d outside [0, %d]", a.ID, a.UnitsSold, a.Quantity))
		}
	}
	for id, r := range replayed {
		if !seen[id] {
			add("allocation", id, "quantity", 0, r.quantity)
		}
	}

	if allocated > run.Capacity() {
		report.Violations = append(report.Violations,
			fmt.Sprintf("production run %s: allocated %d exceeds capacity %d", run.ID, allocated, run.Capacity()))
	}
	if report.StoredUnallocated < 0 {
		report.Violations = append(report.Violations,
			fmt.Sprintf("production run %s: unallocated is negative (%d)", run.ID, report.StoredUnallocated))
	}
	return report
}

func entry(m map[uuid.UUID]*replayedAllocation, id uuid.UUID) *replayedAllocation {
	r, ok := m[id]
	if !ok {
		r = &replayedAllocation{}
		m[id] = r
	}
	return r
}
