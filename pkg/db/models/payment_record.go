package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecord links an external payment intent to the order it produced.
// The primary key on PaymentIntentID is the idempotency backstop for order
// materialization: two concurrent attempts for one intent race on this insert
// and the loser falls back to reading the winner's order.
type PaymentRecord struct {
	PaymentIntentID string    `gorm:"column:payment_intent_id;primaryKey"`
	OrderID         uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payment_records_order"`
	AmountCents     int64     `gorm:"column:amount_cents;not null"`
	Currency        string    `gorm:"column:currency;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
