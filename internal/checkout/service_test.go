package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shoplight/shoplight-backend/internal/cart"
	"github.com/shoplight/shoplight-backend/internal/catalog"
	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
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
);`, `
CREATE TABLE IF NOT EXISTS checkout_sessions (
  id TEXT PRIMARY KEY,
  owner_kind TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'created',
  subtotal_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL,
  shipping_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  discount_code TEXT,
  expires_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS checkout_session_lines (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  line_total_cents INTEGER NOT NULL
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func checkoutTestConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		TaxRateBP:                 800,
		ShippingStandardCents:     1000,
		ShippingReducedCents:      500,
		ReducedShippingFloorCents: 2500,
		FreeShippingFloorCents:    7500,
		SessionTTL:                30 * time.Minute,
		DiscountCodes:             map[string]int{"WELCOME10": 10},
		LowStockThreshold:         5,
	}
}

type checkoutHarness struct {
	db      *gorm.DB
	svc     *service
	carts   cart.Service
	owner   identity.OwnerKey
	catalog *catalog.Repository
}

func newCheckoutHarness(t *testing.T) *checkoutHarness {
	t.Helper()
	db := setupCheckoutTestDB(t)
	cfg := checkoutTestConfig()
	catalogRepo := catalog.NewRepository(db)
	carts, err := cart.NewService(cart.NewRepository(db), gormTxRunner{db: db}, catalogRepo, cfg)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, carts, catalogRepo, cfg, logger.New(logger.Options{ServiceName: "test"}), nil)
	require.NoError(t, err)
	return &checkoutHarness{
		db:      db,
		svc:     svc.(*service),
		carts:   carts,
		owner:   identity.OwnerKey{Kind: enums.OwnerKindUser, ID: uuid.NewString()},
		catalog: catalogRepo,
	}
}

func (h *checkoutHarness) seedVariant(t *testing.T, name string, priceCents, availableQty int) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	variantID := uuid.New()
	require.NoError(t, h.db.Exec(
		"INSERT INTO products (id, name, price_cents, is_active) VALUES (?, ?, ?, 1)",
		productID.String(), name, priceCents,
	).Error)
	require.NoError(t, h.db.Exec(
		"INSERT INTO variants (id, product_id, name, price_cents) VALUES (?, ?, ?, ?)",
		variantID.String(), productID.String(), "default", priceCents,
	).Error)
	require.NoError(t, h.db.Exec(
		"INSERT INTO inventory_levels (variant_id, available_qty) VALUES (?, ?)",
		variantID.String(), availableQty,
	).Error)
	return variantID
}

func TestCreateSessionHappyPath(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	// $20 subtotal, 8% tax $1.60, standard shipping $10 => $31.60
	assert.Equal(t, 2000, session.SubtotalCents)
	assert.Equal(t, 160, session.TaxCents)
	assert.Equal(t, 1000, session.ShippingCents)
	assert.Equal(t, 0, session.DiscountCents)
	assert.Equal(t, 3160, session.TotalCents)
	assert.Equal(t, enums.CheckoutSessionStatusCreated, session.Status)
	require.Len(t, session.Lines, 1)
	assert.Equal(t, "Desk Lamp", session.Lines[0].Name)
	assert.Equal(t, 2000, session.Lines[0].LineTotalCents)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), session.ExpiresAt, 5*time.Second)
}

func TestCreateSessionRejectsEmptyCart(t *testing.T) {
	h := newCheckoutHarness(t)

	_, err := h.svc.CreateSession(context.Background(), h.owner, "")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeEmptyCart))
}

func TestCreateSessionRejectsDepletedLine(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 3)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)
	require.NoError(t, h.db.Exec("UPDATE inventory_levels SET available_qty = 0 WHERE variant_id = ?", variantID.String()).Error)

	_, err = h.svc.CreateSession(context.Background(), h.owner, "")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOutOfStock))
}

func TestCreateSessionAppliesDiscountCode(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "welcome10")
	require.NoError(t, err)
	assert.Equal(t, 200, session.DiscountCents)
	assert.Equal(t, 2960, session.TotalCents)
	require.NotNil(t, session.DiscountCode)
	assert.Equal(t, "WELCOME10", *session.DiscountCode)

	_, err = h.svc.CreateSession(context.Background(), h.owner, "NOPE")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestSessionImmutableAfterPriceChange(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	require.NoError(t, h.db.Exec("UPDATE variants SET price_cents = 9999 WHERE id = ?", variantID.String()).Error)

	reloaded, err := h.svc.GetSession(context.Background(), h.owner, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2000, reloaded.SubtotalCents)
	assert.Equal(t, 1000, reloaded.Lines[0].UnitPriceCents)
}

func TestRevalidateStockConflict(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Limited Thing", 700, 3)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 3)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	require.NoError(t, h.db.Exec("UPDATE inventory_levels SET available_qty = 1 WHERE variant_id = ?", variantID.String()).Error)

	result, err := h.svc.Revalidate(context.Background(), h.owner, session.ID)
	require.NoError(t, err)
	assert.False(t, result.CanProceed)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, ConflictQuantityUnavailable, result.Conflicts[0].Kind)
	assert.Equal(t, 3, result.Conflicts[0].Requested)
	assert.Equal(t, 1, result.Conflicts[0].Available)

	// a blocked session stays in created
	reloaded, err := h.svc.GetSession(context.Background(), h.owner, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutSessionStatusCreated, reloaded.Status)
}

func TestRevalidatePriceDriftDoesNotBlock(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	require.NoError(t, h.db.Exec("UPDATE variants SET price_cents = 1200 WHERE id = ?", variantID.String()).Error)

	result, err := h.svc.Revalidate(context.Background(), h.owner, session.ID)
	require.NoError(t, err)
	assert.True(t, result.CanProceed)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, ConflictPriceDrift, result.Conflicts[0].Kind)
	assert.Equal(t, 1000, result.Conflicts[0].SnapshotCents)
	assert.Equal(t, 1200, result.Conflicts[0].LivePriceCents)
	assert.Equal(t, 2400, result.RecomputedTotals.SubtotalCents)

	reloaded, err := h.svc.GetSession(context.Background(), h.owner, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutSessionStatusValidated, reloaded.Status)
}

func TestRevalidateAfterTTLFailsExpired(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	// jump the clock 31 minutes forward
	h.svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	_, err = h.svc.Revalidate(context.Background(), h.owner, session.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSessionExpired))

	reloaded, err := h.svc.GetSession(context.Background(), h.owner, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutSessionStatusExpired, reloaded.Status)
}

func TestAbandonAndTerminalGuard(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	require.NoError(t, h.svc.Abandon(context.Background(), h.owner, session.ID))
	err = h.svc.Abandon(context.Background(), h.owner, session.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.Revalidate(context.Background(), h.owner, session.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestSessionOwnershipEnforced(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	stranger := identity.OwnerKey{Kind: enums.OwnerKindUser, ID: uuid.NewString()}
	_, err = h.svc.GetSession(context.Background(), stranger, session.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestExpireStaleSweep(t *testing.T) {
	h := newCheckoutHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)

	session, err := h.svc.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	h.svc.now = func() time.Time { return time.Now().Add(45 * time.Minute) }
	moved, err := h.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	reloaded, err := h.svc.GetSession(context.Background(), h.owner, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutSessionStatusExpired, reloaded.Status)
}
