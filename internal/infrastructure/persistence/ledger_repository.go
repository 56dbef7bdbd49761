package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate locks selected rows until the surrounding transaction ends.
// Dialects without row locks (SQLite) drop the clause.
var forUpdate = clause.Locking{Strength: clause.LockingStrengthUpdate}

// translateWriteError maps constraint violations onto domain errors
func translateWriteError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.WrapDomainError(shared.CodeDuplicateReference, message, err)
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return shared.WrapDomainError(shared.CodeInvalidRequest, message, err)
	}
	return err
}

// GormProductionRunRepository implements ProductionRunRepository using GORM
type GormProductionRunRepository struct {
	db *gorm.DB
}

// NewGormProductionRunRepository creates a new GormProductionRunRepository
func NewGormProductionRunRepository(db *gorm.DB) *GormProductionRunRepository {
	return &GormProductionRunRepository{db: db}
}

// FindByID finds a production run by its ID
func (r *GormProductionRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.ProductionRun, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds a production run and locks its row
func (r *GormProductionRunRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.ProductionRun, error) {
	return r.findByID(r.db.WithContext(ctx).Clauses(forUpdate), id)
}

func (r *GormProductionRunRepository) findByID(db *gorm.DB, id uuid.UUID) (*ledger.ProductionRun, error) {
	var model models.ProductionRunModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFound("production run", id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListIDs returns every run id in id order
func (r *GormProductionRunRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.ProductionRunModel{}).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// FindByProductForUpdate locks every run of a release/format in id order
func (r *GormProductionRunRepository) FindByProductForUpdate(ctx context.Context, key ledger.ProductKey) ([]*ledger.ProductionRun, error) {
	var rows []models.ProductionRunModel
	if err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where("release_id = ? AND format = ?", key.ReleaseID, string(key.Format)).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]*ledger.ProductionRun, len(rows))
	for i := range rows {
		runs[i] = rows[i].ToDomain()
	}
	return runs, nil
}

// Create inserts a new production run
func (r *GormProductionRunRepository) Create(ctx context.Context, run *ledger.ProductionRun) error {
	model := models.ProductionRunModelFromDomain(run)
	err := r.db.WithContext(ctx).Create(model).Error
	return translateWriteError(err, "Production run "+run.ID.String()+" already exists")
}

// SaveWithLock updates the run's counters if the stored version is run.Version-1
func (r *GormProductionRunRepository) SaveWithLock(ctx context.Context, run *ledger.ProductionRun) error {
	result := r.db.WithContext(ctx).
		Model(&models.ProductionRunModel{}).
		Where("id = ? AND version = ?", run.ID, run.Version-1).
		Updates(map[string]any{
			"direct_units_sold": run.DirectUnitsSold,
			"adjustment":        run.Adjustment,
			"version":           run.Version,
			"updated_at":        run.UpdatedAt,
		})
	if result.Error != nil {
		return translateWriteError(result.Error, "Production run "+run.ID.String()+" violates a ledger constraint")
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// GormAllocationRepository implements AllocationRepository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// FindByProductionRun returns a run's allocations, oldest first
func (r *GormAllocationRepository) FindByProductionRun(ctx context.Context, runID uuid.UUID) ([]*ledger.ChannelAllocation, error) {
	var rows []models.ChannelAllocationModel
	if err := r.db.WithContext(ctx).
		Where("production_run_id = ?", runID).
		Order("allocated_at, id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return allocationsToDomain(rows), nil
}

// FindByProductionRunsForUpdate returns and locks the allocations of several runs
func (r *GormAllocationRepository) FindByProductionRunsForUpdate(ctx context.Context, runIDs []uuid.UUID) ([]*ledger.ChannelAllocation, error) {
	if len(runIDs) == 0 {
		return []*ledger.ChannelAllocation{}, nil
	}
	var rows []models.ChannelAllocationModel
	if err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where("production_run_id IN ?", runIDs).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return allocationsToDomain(rows), nil
}

// Create inserts a new allocation
func (r *GormAllocationRepository) Create(ctx context.Context, a *ledger.ChannelAllocation) error {
	model := &models.ChannelAllocationModel{}
	model.FromDomain(a)
	err := r.db.WithContext(ctx).Create(model).Error
	return translateWriteError(err, "Allocation "+a.ID.String()+" already exists")
}

// SaveWithLock updates unitsSold if the stored version is a.Version-1
func (r *GormAllocationRepository) SaveWithLock(ctx context.Context, a *ledger.ChannelAllocation) error {
	result := r.db.WithContext(ctx).
		Model(&models.ChannelAllocationModel{}).
		Where("id = ? AND version = ?", a.ID, a.Version-1).
		Updates(map[string]any{
			"units_sold": a.UnitsSold,
			"version":    a.Version,
			"updated_at": a.UpdatedAt,
		})
	if result.Error != nil {
		return translateWriteError(result.Error, "Allocation "+a.ID.String()+" violates a ledger constraint")
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func allocationsToDomain(rows []models.ChannelAllocationModel) []*ledger.ChannelAllocation {
	out := make([]*ledger.ChannelAllocation, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// GormMovementRepository implements the append-only MovementRepository using GORM
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// Append inserts movements in order
func (r *GormMovementRepository) Append(ctx context.Context, movements ...ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	rows := make([]*models.InventoryMovementModel, len(movements))
	for i, m := range movements {
		rows[i] = models.InventoryMovementModelFromDomain(m)
	}
	err := r.db.WithContext(ctx).Create(rows).Error
	return translateWriteError(err, "Movement "+movements[0].Type().String()+" "+movements[0].ReferenceID().String()+" is already recorded")
}

// FindByProductionRun returns a run's movements in insertion order
func (r *GormMovementRepository) FindByProductionRun(ctx context.Context, runID uuid.UUID) ([]ledger.Movement, error) {
	return r.find(ctx, "production_run_id = ?", runID)
}

// FindByDistributor returns a distributor's movements in insertion order
func (r *GormMovementRepository) FindByDistributor(ctx context.Context, distributorID uuid.UUID) ([]ledger.Movement, error) {
	return r.find(ctx, "distributor_id = ?", distributorID)
}

func (r *GormMovementRepository) find(ctx context.Context, query string, arg uuid.UUID) ([]ledger.Movement, error) {
	var rows []models.InventoryMovementModel
	if err := r.db.WithContext(ctx).Where(query, arg).Order("position").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Movement, 0, len(rows))
	for i := range rows {
		m, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ExistsByReference reports whether a movement of this type already cites referenceID
func (r *GormMovementRepository) ExistsByReference(ctx context.Context, movementType ledger.MovementType, referenceID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryMovementModel{}).
		Where("movement_type = ? AND reference_id = ?", string(movementType), referenceID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure repositories implement their domain interfaces
var (
	_ ledger.ProductionRunRepository = (*GormProductionRunRepository)(nil)
	_ ledger.AllocationRepository    = (*GormAllocationRepository)(nil)
	_ ledger.MovementRepository      = (*GormMovementRepository)(nil)
)
