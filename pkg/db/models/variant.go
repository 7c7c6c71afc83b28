package models

import (
	"time"

	"github.com/google/uuid"
)

// Variant is the purchasable unit. Live price lives here; live stock lives in
// the paired InventoryLevel row.
type Variant struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name       string          `gorm:"column:name;not null"`
	PriceCents int             `gorm:"column:price_cents;not null"`
	Inventory  *InventoryLevel `gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
