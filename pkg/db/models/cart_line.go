package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplight/shoplight-backend/pkg/enums"
)

// CartLine is one selected variant in an owner's cart. At most one row exists
// per (owner, variant); repeated adds increment Quantity instead of inserting.
type CartLine struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerKind enums.OwnerKind `gorm:"column:owner_kind;type:owner_kind;not null;uniqueIndex:ux_cart_lines_owner_variant"`
	OwnerID   string          `gorm:"column:owner_id;not null;uniqueIndex:ux_cart_lines_owner_variant"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:ux_cart_lines_owner_variant"`
	Quantity  int             `gorm:"column:quantity;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
