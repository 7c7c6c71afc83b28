package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
)

// Repository manages the movement log and the materialized level counters.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CompareAndSetLevelQty writes newQty only if the counter still holds
// expectedQty. Returns false when a concurrent writer won the race; callers
// re-read and retry. This is the atomic conditional-update half of the
// ledger's read-modify-write.
func (r *Repository) CompareAndSetLevelQty(ctx context.Context, variantID uuid.UUID, expectedQty, newQty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryLevel{}).
		Where("variant_id = ? AND available_qty = ?", variantID, expectedQty).
		Update("available_qty", newQty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetLevel loads a variant's level row.
func (r *Repository) GetLevel(ctx context.Context, variantID uuid.UUID) (*models.InventoryLevel, error) {
	var level models.InventoryLevel
	err := r.db.WithContext(ctx).First(&level, "variant_id = ?", variantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory level not found")
	}
	if err != nil {
		return nil, err
	}
	return &level, nil
}

// UpsertLevel inserts the counter row or adds the delta to an existing one.
func (r *Repository) UpsertLevel(ctx context.Context, variantID uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "variant_id"}},
			DoUpdates: clause.Assignments(map[string]any{"available_qty": gorm.Expr("inventory_levels.available_qty + ?", delta)}),
		}).
		Create(&models.InventoryLevel{VariantID: variantID, AvailableQty: delta}).Error
}

// InsertMovement appends one movement row.
func (r *Repository) InsertMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// HasSaleMovement reports whether a sale decrement already exists for the
// given variant and order reference. Used to keep retried order finishers
// from double-applying.
func (r *Repository) HasSaleMovement(ctx context.Context, variantID uuid.UUID, referenceID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("variant_id = ? AND reason = ? AND reference_type = ? AND reference_id = ?",
			variantID, enums.MovementReasonSale, enums.MovementReferenceOrder, referenceID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SumMovements returns the movement-log total for a variant. The level
// counter is a projection of this sum; reconciliation compares the two.
func (r *Repository) SumMovements(ctx context.Context, variantID uuid.UUID) (int, error) {
	var total *int
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Select("SUM(delta_qty)").
		Where("variant_id = ?", variantID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// ListLevels returns every level row, ordered for stable reconciliation runs.
func (r *Repository) ListLevels(ctx context.Context) ([]models.InventoryLevel, error) {
	var rows []models.InventoryLevel
	err := r.db.WithContext(ctx).Order("variant_id ASC").Find(&rows).Error
	return rows, err
}

// ListMovements returns the movement history for a variant, newest first.
func (r *Repository) ListMovements(ctx context.Context, variantID uuid.UUID, limit int) ([]models.InventoryMovement, error) {
	var rows []models.InventoryMovement
	q := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
