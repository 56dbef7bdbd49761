package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
)

// reference returns the id a command records under. A caller-supplied id is
// replay-protected and gets a reference key; a generated one does not need it.
func reference(ids shared.IDGenerator, supplied *uuid.UUID, movementType ledger.MovementType) (uuid.UUID, string) {
	if supplied == nil || *supplied == uuid.Nil {
		return ids.NewID(), ""
	}
	return *supplied, ledger.ReferenceKey(movementType, *supplied)
}

// ensureNewReference fails when the ledger already holds movements for referenceID
func ensureNewReference(ctx context.Context, repos TransactionalRepositories, movementType ledger.MovementType, referenceID uuid.UUID) error {
	exists, err := repos.Movements().ExistsByReference(ctx, movementType, referenceID)
	if err != nil {
		return err
	}
	if exists {
		return shared.NewDomainError(shared.CodeDuplicateReference,
			"A "+movementType.String()+" with reference "+referenceID.String()+" has already been recorded")
	}
	return nil
}

// lockProducts locks every production run of the given products, then their
// allocations, and returns a snapshot over them. Products are locked in a
// fixed order so concurrent multi-line commands cannot deadlock.
func lockProducts(ctx context.Context, repos TransactionalRepositories, ids shared.IDGenerator, now time.Time, keys []ledger.ProductKey) (*ledger.Snapshot, error) {
	keys = distinctKeys(keys)

	runs := make([]*ledger.ProductionRun, 0, len(keys))
	for _, key := range keys {
		found, err := repos.Runs().FindByProductForUpdate(ctx, key)
		if err != nil {
			return nil, err
		}
		runs = append(runs, found...)
	}

	var allocations []*ledger.ChannelAllocation
	if len(runs) > 0 {
		runIDs := make([]uuid.UUID, len(runs))
		for i, r := range runs {
			runIDs[i] = r.ID
		}
		var err error
		allocations, err = repos.Allocations().FindByProductionRunsForUpdate(ctx, runIDs)
		if err != nil {
			return nil, err
		}
	}
	return ledger.NewSnapshot(ids, now, runs, allocations), nil
}

func distinctKeys(keys []ledger.ProductKey) []ledger.ProductKey {
	seen := make(map[ledger.ProductKey]bool, len(keys))
	out := make([]ledger.ProductKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
