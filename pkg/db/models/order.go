package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplight/shoplight-backend/pkg/enums"
)

// Order is the durable result of materializing a captured payment. Monetary
// fields are immutable after insert; only the status columns move during
// fulfillment.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string                  `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	OwnerKind         enums.OwnerKind         `gorm:"column:owner_kind;type:owner_kind;not null"`
	OwnerID           string                  `gorm:"column:owner_id;not null"`
	Email             string                  `gorm:"column:email;not null"`
	Status            enums.OrderStatus       `gorm:"column:status;type:order_status;not null;default:'open'"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;type:payment_status;not null;default:'paid'"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:fulfillment_status;not null;default:'unfulfilled'"`
	SubtotalCents     int                     `gorm:"column:subtotal_cents;not null"`
	TaxCents          int                     `gorm:"column:tax_cents;not null"`
	ShippingCents     int                     `gorm:"column:shipping_cents;not null"`
	DiscountCents     int                     `gorm:"column:discount_cents;not null;default:0"`
	TotalCents        int                     `gorm:"column:total_cents;not null"`
	Currency          enums.Currency          `gorm:"column:currency;not null;default:'USD'"`
	Items             []OrderItem             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
