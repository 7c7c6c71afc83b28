package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplight/shoplight-backend/pkg/enums"
)

// InventoryMovement is one append-only stock change. Sale movements are
// additionally covered by a partial unique index on
// (variant_id, reference_type, reference_id) so a retried decrement for the
// same order cannot double-apply.
type InventoryMovement struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VariantID     uuid.UUID                   `gorm:"column:variant_id;type:uuid;not null"`
	DeltaQty      int                         `gorm:"column:delta_qty;not null"`
	Reason        enums.MovementReason        `gorm:"column:reason;type:movement_reason;not null"`
	ReferenceType enums.MovementReferenceType `gorm:"column:reference_type;type:movement_reference_type;not null"`
	ReferenceID   string                      `gorm:"column:reference_id;not null"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
