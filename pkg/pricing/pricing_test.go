package pricing

import (
	"testing"

	"github.com/shoplight/shoplight-backend/pkg/config"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
)

func testCheckoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		TaxRateBP:                 800,
		ShippingStandardCents:     1000,
		ShippingReducedCents:      500,
		ReducedShippingFloorCents: 2500,
		FreeShippingFloorCents:    7500,
		DiscountCodes:             map[string]int{"WELCOME10": 10, "HALF": 50},
	}
}

func TestQuoteHappyPath(t *testing.T) {
	// $10 x 2 => $20 subtotal, 8% tax $1.60, standard shipping $10
	totals, err := Quote([]Line{{UnitPriceCents: 1000, Quantity: 2}}, "", testCheckoutConfig())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if totals.SubtotalCents != 2000 {
		t.Fatalf("subtotal: got %d", totals.SubtotalCents)
	}
	if totals.TaxCents != 160 {
		t.Fatalf("tax: got %d", totals.TaxCents)
	}
	if totals.ShippingCents != 1000 {
		t.Fatalf("shipping: got %d", totals.ShippingCents)
	}
	if totals.TotalCents != 3160 {
		t.Fatalf("total: got %d", totals.TotalCents)
	}
}

func TestShippingBands(t *testing.T) {
	cfg := testCheckoutConfig()
	cases := []struct {
		name     string
		subtotal int
		want     int
	}{
		{"below reduced floor", 2499, 1000},
		{"at reduced floor", 2500, 500},
		{"below free floor", 7499, 500},
		{"at free floor", 7500, 0},
		{"above free floor", 20000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Shipping(tc.subtotal, cfg); got != tc.want {
				t.Fatalf("Shipping(%d): got %d, want %d", tc.subtotal, got, tc.want)
			}
		})
	}
}

func TestTaxRoundsHalfUp(t *testing.T) {
	// 1234 * 8% = 98.72 -> 99
	if got := Tax(1234, 800); got != 99 {
		t.Fatalf("tax: got %d, want 99", got)
	}
	// 1231 * 8% = 98.48 -> 98
	if got := Tax(1231, 800); got != 98 {
		t.Fatalf("tax: got %d, want 98", got)
	}
	if got := Tax(0, 800); got != 0 {
		t.Fatalf("tax on zero subtotal: got %d", got)
	}
}

func TestDiscountCodes(t *testing.T) {
	cfg := testCheckoutConfig()

	cents, err := Discount(2000, "welcome10", cfg)
	if err != nil {
		t.Fatalf("Discount: %v", err)
	}
	if cents != 200 {
		t.Fatalf("discount: got %d, want 200", cents)
	}

	if _, err := Discount(2000, "BOGUS", cfg); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown code, got %v", err)
	}

	cents, err = Discount(0, "", cfg)
	if err != nil || cents != 0 {
		t.Fatalf("empty code: got %d, %v", cents, err)
	}
}

func TestQuoteTotalInvariant(t *testing.T) {
	cfg := testCheckoutConfig()
	lines := []Line{
		{UnitPriceCents: 1999, Quantity: 3},
		{UnitPriceCents: 450, Quantity: 1},
	}
	for _, code := range []string{"", "WELCOME10", "HALF"} {
		totals, err := Quote(lines, code, cfg)
		if err != nil {
			t.Fatalf("Quote(%q): %v", code, err)
		}
		sum := totals.SubtotalCents + totals.TaxCents + totals.ShippingCents - totals.DiscountCents
		if totals.TotalCents != sum {
			t.Fatalf("total invariant broken for %q: %d != %d", code, totals.TotalCents, sum)
		}
	}
}
