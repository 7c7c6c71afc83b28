package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplight/shoplight-backend/pkg/enums"
)

// CheckoutSession is an immutable, TTL-bounded price quote snapshotted from a
// cart. Totals are recomputed server-side at creation and never mutated; only
// the status column transitions afterwards.
type CheckoutSession struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerKind     enums.OwnerKind             `gorm:"column:owner_kind;type:owner_kind;not null"`
	OwnerID       string                      `gorm:"column:owner_id;not null"`
	Currency      enums.Currency              `gorm:"column:currency;not null;default:'USD'"`
	Status        enums.CheckoutSessionStatus `gorm:"column:status;type:checkout_session_status;not null;default:'created'"`
	SubtotalCents int                         `gorm:"column:subtotal_cents;not null"`
	TaxCents      int                         `gorm:"column:tax_cents;not null"`
	ShippingCents int                         `gorm:"column:shipping_cents;not null"`
	DiscountCents int                         `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int                         `gorm:"column:total_cents;not null"`
	DiscountCode  *string                     `gorm:"column:discount_code"`
	Lines         []CheckoutSessionLine       `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	ExpiresAt     time.Time                   `gorm:"column:expires_at;not null"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
