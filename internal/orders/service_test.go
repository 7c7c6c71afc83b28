package orders

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shoplight/shoplight-backend/internal/cart"
	"github.com/shoplight/shoplight-backend/internal/catalog"
	"github.com/shoplight/shoplight-backend/internal/checkout"
	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/internal/inventory"
	"github.com/shoplight/shoplight-backend/internal/payments"
	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
	"github.com/shoplight/shoplight-backend/pkg/outbox"
	"github.com/shoplight/shoplight-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// hookedTxRunner fires a one-shot hook right before the transaction opens,
// so a test can commit competing rows at the worst possible moment.
type hookedTxRunner struct {
	db   *gorm.DB
	hook func()
}

func (r *hookedTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.hook != nil {
		h := r.hook
		r.hook = nil
		h()
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

// fakeProvider keeps intents in memory so tests can flip their status the way
// the real processor would after the customer pays.
type fakeProvider struct {
	intents     map[string]*payments.Intent
	retrieveErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: map[string]*payments.Intent{}}
}

func (f *fakeProvider) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*payments.Intent, error) {
	intent := &payments.Intent{
		ID:           "pi_" + uuid.NewString(),
		ClientSecret: "cs_" + uuid.NewString(),
		AmountCents:  amountCents,
		Currency:     strings.ToUpper(currency),
		Status:       payments.IntentStatusRequiresAction,
		Metadata:     metadata,
	}
	f.intents[intent.ID] = intent
	return intent, nil
}

func (f *fakeProvider) RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	intent, ok := f.intents[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "intent not found")
	}
	return intent, nil
}

func (f *fakeProvider) succeed(id string) {
	f.intents[id].Status = payments.IntentStatusSucceeded
}

func setupOrdersTestDB(t *testing.T) *gorm.DB {
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
CREATE TABLE IF NOT EXISTS inventory_movements (
  id TEXT PRIMARY KEY,
  variant_id TEXT NOT NULL,
  delta_qty INTEGER NOT NULL,
  reason TEXT NOT NULL,
  reference_type TEXT NOT NULL,
  reference_id TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_inventory_movements_sale_ref
  ON inventory_movements (variant_id, reference_type, reference_id)
  WHERE reason = 'sale';`, `
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
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  owner_kind TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  email TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'open',
  payment_status TEXT NOT NULL DEFAULT 'paid',
  fulfillment_status TEXT NOT NULL DEFAULT 'unfulfilled',
  subtotal_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL,
  shipping_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  name_snapshot TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  line_total_cents INTEGER NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS payment_records (
  payment_intent_id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`, `
CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate
  ON outbox_events (event_type, aggregate_type, aggregate_id);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func ordersTestConfig() config.CheckoutConfig {
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

type ordersHarness struct {
	db       *gorm.DB
	svc      *service
	checkout checkout.Service
	carts    cart.Service
	provider *fakeProvider
	owner    identity.OwnerKey
}

func newOrdersHarness(t *testing.T) *ordersHarness {
	t.Helper()
	db := setupOrdersTestDB(t)
	cfg := ordersTestConfig()
	logg := logger.New(logger.Options{ServiceName: "test"})
	tx := gormTxRunner{db: db}

	catalogRepo := catalog.NewRepository(db)
	carts, err := cart.NewService(cart.NewRepository(db), tx, catalogRepo, cfg)
	require.NoError(t, err)

	checkoutSvc, err := checkout.NewService(checkout.NewRepository(db), tx, carts, catalogRepo, cfg, logg, nil)
	require.NoError(t, err)

	stock, err := inventory.NewService(inventory.NewRepository(db), tx, logg, nil)
	require.NoError(t, err)

	provider := newFakeProvider()
	events := outbox.NewService(outbox.NewRepository(db), logg)

	svc, err := NewService(NewRepository(db), tx, checkout.NewRepository(db), checkoutSvc, carts, stock, provider, events, logg, nil)
	require.NoError(t, err)

	return &ordersHarness{
		db:       db,
		svc:      svc.(*service),
		checkout: checkoutSvc,
		carts:    carts,
		provider: provider,
		owner:    identity.OwnerKey{Kind: enums.OwnerKindUser, ID: uuid.NewString()},
	}
}

func (h *ordersHarness) seedVariant(t *testing.T, name string, priceCents, availableQty int) uuid.UUID {
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

// paidIntent walks the happy path up to a captured payment: cart line,
// checkout session, payment intent flipped to succeeded.
func (h *ordersHarness) paidIntent(t *testing.T, variantID uuid.UUID, qty int) (*models.CheckoutSession, *payments.Intent) {
	t.Helper()
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, qty)
	require.NoError(t, err)
	session, err := h.checkout.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)
	intent, err := h.svc.BeginPayment(context.Background(), h.owner, session.ID, "shopper@example.com")
	require.NoError(t, err)
	h.provider.succeed(intent.ID)
	return session, intent
}

func (h *ordersHarness) availableQty(t *testing.T, variantID uuid.UUID) int {
	t.Helper()
	var qty int
	require.NoError(t, h.db.Raw(
		"SELECT available_qty FROM inventory_levels WHERE variant_id = ?", variantID.String(),
	).Scan(&qty).Error)
	return qty
}

func TestMaterializeHappyPath(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	session, intent := h.paidIntent(t, variantID, 2)

	order, err := h.svc.Materialize(context.Background(), intent.ID)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^SL-\d{8}-[0-9A-HJKMNP-TV-Z]{6}$`), order.OrderNumber)
	assert.Equal(t, session.SubtotalCents, order.SubtotalCents)
	assert.Equal(t, session.TotalCents, order.TotalCents)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, enums.FulfillmentStatusUnfulfilled, order.FulfillmentStatus)
	assert.Equal(t, "shopper@example.com", order.Email)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Desk Lamp", order.Items[0].NameSnapshot)
	assert.Equal(t, 2, order.Items[0].Quantity)

	// payment record links the intent to exactly this order
	var record models.PaymentRecord
	require.NoError(t, h.db.First(&record, "payment_intent_id = ?", intent.ID).Error)
	assert.Equal(t, order.ID, record.OrderID)
	assert.Equal(t, intent.AmountCents, record.AmountCents)

	reloaded, err := checkout.NewRepository(h.db).GetByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutSessionStatusConsumed, reloaded.Status)

	assert.Equal(t, 8, h.availableQty(t, variantID))

	cartView, err := h.carts.GetCart(context.Background(), h.owner)
	require.NoError(t, err)
	assert.Empty(t, cartView.Lines)

	var eventCount int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderConfirmed).
		Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, intent := h.paidIntent(t, variantID, 2)

	first, err := h.svc.Materialize(context.Background(), intent.ID)
	require.NoError(t, err)
	second, err := h.svc.Materialize(context.Background(), intent.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)

	var orderCount int64
	require.NoError(t, h.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(1), orderCount)

	// the stock decrement applied exactly once
	assert.Equal(t, 8, h.availableQty(t, variantID))
	var movementCount int64
	require.NoError(t, h.db.Model(&models.InventoryMovement{}).
		Where("variant_id = ?", variantID).Count(&movementCount).Error)
	assert.Equal(t, int64(1), movementCount)
}

func TestMaterializeRacingDuplicatesProduceOneOrder(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, intent := h.paidIntent(t, variantID, 2)

	logg := logger.New(logger.Options{ServiceName: "test"})
	stock, err := inventory.NewService(inventory.NewRepository(h.db), gormTxRunner{db: h.db}, logg, nil)
	require.NoError(t, err)
	events := outbox.NewService(outbox.NewRepository(h.db), logg)

	// The loser passes its pre-insert lookup, then the winner commits the
	// whole order before the loser's transaction opens. The loser must fall
	// through the payment record collision to the winner's row.
	var winner *models.Order
	runner := &hookedTxRunner{db: h.db}
	runner.hook = func() {
		var hookErr error
		winner, hookErr = h.svc.Materialize(context.Background(), intent.ID)
		require.NoError(t, hookErr)
	}
	loserSvc, err := NewService(NewRepository(h.db), runner, checkout.NewRepository(h.db),
		h.checkout, h.carts, stock, h.provider, events, logg, nil)
	require.NoError(t, err)

	loser, err := loserSvc.Materialize(context.Background(), intent.ID)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, winner.ID, loser.ID)

	var orderCount, recordCount int64
	require.NoError(t, h.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, h.db.Model(&models.PaymentRecord{}).Count(&recordCount).Error)
	assert.Equal(t, int64(1), orderCount)
	assert.Equal(t, int64(1), recordCount)

	// only the winner's decrement applied
	assert.Equal(t, 8, h.availableQty(t, variantID))
}

func TestMaterializeRequiresSucceededIntent(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 1)
	require.NoError(t, err)
	session, err := h.checkout.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)
	intent, err := h.svc.BeginPayment(context.Background(), h.owner, session.ID, "shopper@example.com")
	require.NoError(t, err)

	// intent was never confirmed
	_, err = h.svc.Materialize(context.Background(), intent.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentNotComplete))

	var orderCount int64
	require.NoError(t, h.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(0), orderCount)
}

func TestMaterializeRejectsAmountMismatch(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, intent := h.paidIntent(t, variantID, 2)
	h.provider.intents[intent.ID].AmountCents = 100

	_, err := h.svc.Materialize(context.Background(), intent.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStaleQuote))
}

func TestMaterializeClampsOversoldStock(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, intent := h.paidIntent(t, variantID, 3)

	// stock moved after the quote but the payment already captured
	require.NoError(t, h.db.Exec(
		"UPDATE inventory_levels SET available_qty = 1 WHERE variant_id = ?", variantID.String(),
	).Error)

	order, err := h.svc.Materialize(context.Background(), intent.ID)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)

	assert.Equal(t, 0, h.availableQty(t, variantID))
	var movement models.InventoryMovement
	require.NoError(t, h.db.First(&movement, "variant_id = ?", variantID).Error)
	assert.Equal(t, -1, movement.DeltaQty)
	assert.Equal(t, enums.MovementReasonSale, movement.Reason)
	assert.Equal(t, order.ID.String(), movement.ReferenceID)
}

func TestMaterializeRejectsSecondIntentForConsumedSession(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	session, intent := h.paidIntent(t, variantID, 2)

	_, err := h.svc.Materialize(context.Background(), intent.ID)
	require.NoError(t, err)

	// a different intent pointing at the same, now consumed, session
	other, err := h.provider.CreateIntent(context.Background(), int64(session.TotalCents), "usd", map[string]string{
		"checkout_session_id": session.ID.String(),
	})
	require.NoError(t, err)
	h.provider.succeed(other.ID)

	_, err = h.svc.Materialize(context.Background(), other.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestBeginPaymentRejectsExpiredSession(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 1)
	require.NoError(t, err)
	session, err := h.checkout.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	h.svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	_, err = h.svc.BeginPayment(context.Background(), h.owner, session.ID, "shopper@example.com")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSessionExpired))
}

func TestBeginPaymentEnforcesOwnership(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 1)
	require.NoError(t, err)
	session, err := h.checkout.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	stranger := identity.OwnerKey{Kind: enums.OwnerKindUser, ID: uuid.NewString()}
	_, err = h.svc.BeginPayment(context.Background(), stranger, session.ID, "shopper@example.com")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestBeginPaymentRejectsOversoldQuote(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 5)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)
	session, err := h.checkout.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	// stock drained between the quote and the pay click
	require.NoError(t, h.db.Exec(
		"UPDATE inventory_levels SET available_qty = 0 WHERE variant_id = ?", variantID.String(),
	).Error)

	_, err = h.svc.BeginPayment(context.Background(), h.owner, session.ID, "shopper@example.com")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOutOfStock))
	assert.Empty(t, h.provider.intents, "no intent may be opened for an unfillable quote")
}

func TestBeginPaymentKeepsFrozenTotalThroughPriceDrift(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, err := h.carts.AddLine(context.Background(), h.owner, variantID, 2)
	require.NoError(t, err)
	session, err := h.checkout.CreateSession(context.Background(), h.owner, "")
	require.NoError(t, err)

	require.NoError(t, h.db.Exec(
		"UPDATE variants SET price_cents = 1500 WHERE id = ?", variantID.String(),
	).Error)

	intent, err := h.svc.BeginPayment(context.Background(), h.owner, session.ID, "shopper@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, session.TotalCents, intent.AmountCents)
}

func TestGetEnforcesOwnership(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, intent := h.paidIntent(t, variantID, 1)
	order, err := h.svc.Materialize(context.Background(), intent.ID)
	require.NoError(t, err)

	got, err := h.svc.Get(context.Background(), h.owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	stranger := identity.OwnerKey{Kind: enums.OwnerKindUser, ID: uuid.NewString()}
	_, err = h.svc.Get(context.Background(), stranger, order.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestListReturnsNewestFirst(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 50)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		_, intent := h.paidIntent(t, variantID, 1)
		order, err := h.svc.Materialize(context.Background(), intent.ID)
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	rows, _, err := h.svc.List(context.Background(), h.owner, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ids[2], rows[0].ID)
}

func TestRecoverReplaysUnfinishedSideEffects(t *testing.T) {
	h := newOrdersHarness(t)
	variantID := h.seedVariant(t, "Desk Lamp", 1000, 10)
	_, intent := h.paidIntent(t, variantID, 2)
	order, err := h.svc.Materialize(context.Background(), intent.ID)
	require.NoError(t, err)

	// simulate a crash between the commit and the stock decrement
	require.NoError(t, h.db.Exec("DELETE FROM inventory_movements").Error)
	require.NoError(t, h.db.Exec(
		"UPDATE inventory_levels SET available_qty = 10 WHERE variant_id = ?", variantID.String(),
	).Error)

	count, err := h.svc.RecoverRecent(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 8, h.availableQty(t, variantID))

	require.NoError(t, h.svc.Recover(context.Background(), order.ID))
	assert.Equal(t, 8, h.availableQty(t, variantID))
}
