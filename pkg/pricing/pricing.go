package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shoplight/shoplight-backend/pkg/config"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
)

// Totals is the computed money breakdown for a cart or session, all in
// integer cents. TotalCents always equals subtotal + tax + shipping -
// discount; callers persist it rather than recomputing downstream.
type Totals struct {
	SubtotalCents int `json:"subtotalCents"`
	TaxCents      int `json:"taxCents"`
	ShippingCents int `json:"shippingCents"`
	DiscountCents int `json:"discountCents"`
	TotalCents    int `json:"totalCents"`
}

// Line is the minimal input for quoting: a unit price and a quantity.
type Line struct {
	UnitPriceCents int
	Quantity       int
}

// Subtotal sums unit price times quantity across lines.
func Subtotal(lines []Line) int {
	subtotal := 0
	for _, line := range lines {
		subtotal += line.UnitPriceCents * line.Quantity
	}
	return subtotal
}

// Tax computes the flat-rate tax on a subtotal, rounded half-up to cents.
func Tax(subtotalCents, rateBP int) int {
	if subtotalCents <= 0 || rateBP <= 0 {
		return 0
	}
	tax := decimal.NewFromInt(int64(subtotalCents)).
		Mul(decimal.NewFromInt(int64(rateBP))).
		Div(decimal.NewFromInt(10000))
	return int(tax.Round(0).IntPart())
}

// Shipping returns the tiered shipping charge for a subtotal.
func Shipping(subtotalCents int, cfg config.CheckoutConfig) int {
	switch {
	case subtotalCents >= cfg.FreeShippingFloorCents:
		return 0
	case subtotalCents >= cfg.ReducedShippingFloorCents:
		return cfg.ShippingReducedCents
	default:
		return cfg.ShippingStandardCents
	}
}

// Discount resolves a percent-off code against the configured map. The
// discount is capped at the subtotal so totals cannot go negative. Unknown
// codes fail with a validation error instead of silently applying zero.
func Discount(subtotalCents int, code string, cfg config.CheckoutConfig) (int, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return 0, nil
	}
	percent, ok := cfg.DiscountCodes[code]
	if !ok || percent <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unknown discount code").WithDetails(map[string]any{
			"code": code,
		})
	}
	if percent > 100 {
		percent = 100
	}
	discount := decimal.NewFromInt(int64(subtotalCents)).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100))
	cents := int(discount.Round(0).IntPart())
	if cents > subtotalCents {
		cents = subtotalCents
	}
	return cents, nil
}

// Quote computes the full breakdown for a set of lines. Deterministic and
// side-effect free; the same inputs always produce the same totals.
func Quote(lines []Line, discountCode string, cfg config.CheckoutConfig) (Totals, error) {
	subtotal := Subtotal(lines)
	discount, err := Discount(subtotal, discountCode, cfg)
	if err != nil {
		return Totals{}, err
	}
	tax := Tax(subtotal, cfg.TaxRateBP)
	shipping := Shipping(subtotal, cfg)
	return Totals{
		SubtotalCents: subtotal,
		TaxCents:      tax,
		ShippingCents: shipping,
		DiscountCents: discount,
		TotalCents:    subtotal + tax + shipping - discount,
	}, nil
}
