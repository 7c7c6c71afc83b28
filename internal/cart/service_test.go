package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shoplight/shoplight-backend/internal/catalog"
	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS inventory_levels (
  variant_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS cart_lines (
  id TEXT PRIMARY KEY,
  owner_kind TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_lines_owner_variant
  ON cart_lines (owner_kind, owner_id, variant_id);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedVariant(t *testing.T, db *gorm.DB, name string, priceCents, availableQty int) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	variantID := uuid.New()
	require.NoError(t, db.Exec(
		"INSERT INTO products (id, name, price_cents, is_active) VALUES (?, ?, ?, 1)",
		productID.String(), name, priceCents,
	).Error)
	require.NoError(t, db.Exec(
		"INSERT INTO variants (id, product_id, name, price_cents) VALUES (?, ?, ?, ?)",
		variantID.String(), productID.String(), "default", priceCents,
	).Error)
	require.NoError(t, db.Exec(
		"INSERT INTO inventory_levels (variant_id, available_qty) VALUES (?, ?)",
		variantID.String(), availableQty,
	).Error)
	return variantID
}

func cartTestConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		TaxRateBP:                 800,
		ShippingStandardCents:     1000,
		ShippingReducedCents:      500,
		ReducedShippingFloorCents: 2500,
		FreeShippingFloorCents:    7500,
		LowStockThreshold:         5,
	}
}

func newCartService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, catalog.NewRepository(db), cartTestConfig())
	require.NoError(t, err)
	return svc
}

func testOwner() identity.OwnerKey {
	return identity.OwnerKey{Kind: enums.OwnerKindUser, ID: uuid.NewString()}
}

func TestAddLineMergesQuantities(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	owner := testOwner()
	variantID := seedVariant(t, db, "Desk Lamp", 1000, 20)

	first, err := svc.AddLine(context.Background(), owner, variantID, 2)
	require.NoError(t, err)
	second, err := svc.AddLine(context.Background(), owner, variantID, 3)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)

	view, err := svc.GetCart(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 5, view.Lines[0].Quantity)
}

func TestAddLineRejectsBadInput(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	owner := testOwner()
	variantID := seedVariant(t, db, "Desk Lamp", 1000, 20)

	_, err := svc.AddLine(context.Background(), owner, variantID, 0)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.AddLine(context.Background(), owner, uuid.New(), 1)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestSetQuantityZeroDeletesLine(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	owner := testOwner()
	variantID := seedVariant(t, db, "Desk Lamp", 1000, 20)

	line, err := svc.AddLine(context.Background(), owner, variantID, 2)
	require.NoError(t, err)

	updated, err := svc.SetQuantity(context.Background(), owner, line.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, updated)

	view, err := svc.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestOwnershipEnforcedOnMutation(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	owner := testOwner()
	stranger := testOwner()
	variantID := seedVariant(t, db, "Desk Lamp", 1000, 20)

	line, err := svc.AddLine(context.Background(), owner, variantID, 2)
	require.NoError(t, err)

	err = svc.RemoveLine(context.Background(), stranger, line.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.SetQuantity(context.Background(), stranger, line.ID, 9)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	// owner still has the line
	view, err := svc.GetCart(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
}

func TestGetCartComputesLiveTotalsAndFlags(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	owner := testOwner()
	cheap := seedVariant(t, db, "Desk Lamp", 1000, 3)
	gone := seedVariant(t, db, "Sold Out Thing", 500, 0)

	_, err := svc.AddLine(context.Background(), owner, cheap, 2)
	require.NoError(t, err)

	// seed the out-of-stock line directly; AddLine does not block on stock
	require.NoError(t, db.Exec(
		"INSERT INTO cart_lines (id, owner_kind, owner_id, product_id, variant_id, quantity) SELECT ?, ?, ?, product_id, id, 1 FROM variants WHERE id = ?",
		uuid.NewString(), string(owner.Kind), owner.ID, gone.String(),
	).Error)

	view, err := svc.GetCart(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.True(t, view.HasOutOfStock)
	assert.True(t, view.HasLowStock)
	// subtotal 2500 = 2x1000 + 1x500, tax 200, reduced shipping 500
	assert.Equal(t, 2500, view.Totals.SubtotalCents)
	assert.Equal(t, 200, view.Totals.TaxCents)
	assert.Equal(t, 500, view.Totals.ShippingCents)
	assert.Equal(t, 3200, view.Totals.TotalCents)
}

func TestAdoptMergesGuestIntoUser(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	guest := identity.OwnerKey{Kind: enums.OwnerKindGuest, ID: uuid.NewString()}
	user := testOwner()
	shared := seedVariant(t, db, "Desk Lamp", 1000, 20)
	guestOnly := seedVariant(t, db, "Notebook", 300, 20)

	_, err := svc.AddLine(context.Background(), guest, shared, 2)
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), guest, guestOnly, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), user, shared, 3)
	require.NoError(t, err)

	require.NoError(t, svc.Adopt(context.Background(), guest, user))

	guestView, err := svc.GetCart(context.Background(), guest)
	require.NoError(t, err)
	assert.Empty(t, guestView.Lines)

	userView, err := svc.GetCart(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, userView.Lines, 2)
	byVariant := map[uuid.UUID]int{}
	for _, line := range userView.Lines {
		byVariant[line.VariantID] = line.Quantity
	}
	assert.Equal(t, 5, byVariant[shared])
	assert.Equal(t, 1, byVariant[guestOnly])
}

func TestClearIsIdempotent(t *testing.T) {
	db := setupCartTestDB(t)
	svc := newCartService(t, db)
	owner := testOwner()
	variantID := seedVariant(t, db, "Desk Lamp", 1000, 20)

	_, err := svc.AddLine(context.Background(), owner, variantID, 2)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(context.Background(), owner))
	require.NoError(t, svc.Clear(context.Background(), owner))

	view, err := svc.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}
