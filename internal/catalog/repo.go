package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplight/shoplight-backend/pkg/db/models"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
)

// VariantDetail is the read model the pipeline uses when it needs live
// catalog data: current price, current stock, and the display name frozen
// into snapshots.
type VariantDetail struct {
	VariantID    uuid.UUID
	ProductID    uuid.UUID
	ProductName  string
	VariantName  string
	PriceCents   int
	AvailableQty int
	IsActive     bool
}

// Repository reads catalog rows. The pipeline never writes products or
// variants; catalog management is a separate surface.
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

// GetVariantDetail loads one variant with its product and stock level.
func (r *Repository) GetVariantDetail(ctx context.Context, variantID uuid.UUID) (*VariantDetail, error) {
	var variant models.Variant
	err := r.db.WithContext(ctx).
		Preload("Inventory").
		First(&variant, "id = ?", variantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", variant.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}

	detail := &VariantDetail{
		VariantID:   variant.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		VariantName: variant.Name,
		PriceCents:  variant.PriceCents,
		IsActive:    product.IsActive,
	}
	if variant.Inventory != nil {
		detail.AvailableQty = variant.Inventory.AvailableQty
	}
	return detail, nil
}

// GetVariantDetails loads details for a set of variants keyed by id.
func (r *Repository) GetVariantDetails(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]*VariantDetail, error) {
	out := make(map[uuid.UUID]*VariantDetail, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}

	var variants []models.Variant
	if err := r.db.WithContext(ctx).
		Preload("Inventory").
		Where("id IN ?", variantIDs).
		Find(&variants).Error; err != nil {
		return nil, err
	}

	productIDs := make([]uuid.UUID, 0, len(variants))
	for _, v := range variants {
		productIDs = append(productIDs, v.ProductID)
	}
	products := map[uuid.UUID]models.Product{}
	if len(productIDs) > 0 {
		var rows []models.Product
		if err := r.db.WithContext(ctx).Where("id IN ?", productIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, p := range rows {
			products[p.ID] = p
		}
	}

	for _, v := range variants {
		product, ok := products[v.ProductID]
		if !ok {
			continue
		}
		detail := &VariantDetail{
			VariantID:   v.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			VariantName: v.Name,
			PriceCents:  v.PriceCents,
			IsActive:    product.IsActive,
		}
		if v.Inventory != nil {
			detail.AvailableQty = v.Inventory.AvailableQty
		}
		out[v.ID] = detail
	}
	return out, nil
}
