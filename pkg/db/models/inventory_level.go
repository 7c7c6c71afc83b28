package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryLevel is the materialized per-variant stock counter. It is a
// cached projection of the movement log and must always equal the sum of the
// variant's InventoryMovement deltas.
type InventoryLevel struct {
	VariantID    uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
