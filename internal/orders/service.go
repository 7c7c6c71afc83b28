package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/shoplight/shoplight-backend/internal/checkout"
	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/internal/inventory"
	"github.com/shoplight/shoplight-backend/internal/payments"
	dbpkg "github.com/shoplight/shoplight-backend/pkg/db"
	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	apperrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
	"github.com/shoplight/shoplight-backend/pkg/metrics"
	"github.com/shoplight/shoplight-backend/pkg/outbox"
	"github.com/shoplight/shoplight-backend/pkg/pagination"
)

const (
	// Intent metadata keys stamped at payment start and read back on
	// materialization, so a bare webhook payload is enough to finish.
	metaSessionID = "checkout_session_id"
	metaOwnerKind = "owner_kind"
	metaOwnerID   = "owner_id"
	metaEmail     = "email"

	orderNumberAttempts  = 5
	orderNumberSavepoint = "sp_order_number"
)

// errIntentAlreadyMaterialized aborts the materialization transaction when a
// concurrent attempt already claimed the payment intent.
var errIntentAlreadyMaterialized = errors.New("payment intent already materialized")

// Service turns captured payments into durable orders.
type Service interface {
	BeginPayment(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID, email string) (*payments.Intent, error)
	Materialize(ctx context.Context, paymentIntentID string) (*models.Order, error)
	Get(ctx context.Context, owner identity.OwnerKey, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, owner identity.OwnerKey, params pagination.Params) ([]models.Order, string, error)
	Recover(ctx context.Context, orderID uuid.UUID) error
	RecoverRecent(ctx context.Context, window time.Duration) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// sessionStore is the slice of the checkout repository the materializer needs.
type sessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	WithTx(tx *gorm.DB) *checkout.Repository
}

// sessionRevalidator re-runs the live stock and price check on a session.
type sessionRevalidator interface {
	Revalidate(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) (*checkout.RevalidationResult, error)
}

type cartClearer interface {
	Clear(ctx context.Context, owner identity.OwnerKey) error
}

type stockDecrementer interface {
	DecrementForOrder(ctx context.Context, variantID uuid.UUID, qty int, orderID uuid.UUID) (*inventory.DecrementResult, error)
}

type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo      *Repository
	tx        txRunner
	sessions  sessionStore
	quotes    sessionRevalidator
	carts     cartClearer
	inventory stockDecrementer
	provider  payments.Provider
	events    eventEmitter
	logg      *logger.Logger
	metrics   *metrics.PipelineMetrics
	now       func() time.Time
}

// NewService wires the order materializer.
func NewService(
	repo *Repository,
	tx txRunner,
	sessions sessionStore,
	quotes sessionRevalidator,
	carts cartClearer,
	stock stockDecrementer,
	provider payments.Provider,
	events eventEmitter,
	logg *logger.Logger,
	pipelineMetrics *metrics.PipelineMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("checkout session store is required")
	}
	if quotes == nil {
		return nil, fmt.Errorf("checkout revalidator is required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart service is required")
	}
	if stock == nil {
		return nil, fmt.Errorf("inventory service is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("payment provider is required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		sessions:  sessions,
		quotes:    quotes,
		carts:     carts,
		inventory: stock,
		provider:  provider,
		events:    events,
		logg:      logg,
		metrics:   pipelineMetrics,
		now:       time.Now,
	}, nil
}

// BeginPayment revalidates a consumable checkout session against live stock
// and creates a payment intent for it. The session's frozen total is the only
// amount the processor ever sees; the client cannot influence it.
func (s *service) BeginPayment(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID, email string) (*payments.Intent, error) {
	session, err := s.consumableSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}

	// Last look at live stock before any money moves. Price drift keeps the
	// frozen total; a line that can no longer be filled stops the payment.
	recheck, err := s.quotes.Revalidate(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}
	if !recheck.CanProceed {
		return nil, apperrors.New(apperrors.CodeOutOfStock, "stock changed since this quote was created").
			WithDetails(map[string]any{"conflicts": recheck.Conflicts})
	}

	intent, err := s.provider.CreateIntent(ctx, int64(session.TotalCents), string(session.Currency), map[string]string{
		metaSessionID: session.ID.String(),
		metaOwnerKind: string(session.OwnerKind),
		metaOwnerID:   session.OwnerID,
		metaEmail:     email,
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"session_id":        session.ID.String(),
		"payment_intent_id": intent.ID,
		"amount_cents":      intent.AmountCents,
	})
	s.logg.Info(ctx, "payment intent created")
	return intent, nil
}

// Materialize converts a succeeded payment intent into exactly one order.
// Safe to call any number of times for the same intent: replays return the
// order produced by the first successful call and re-run any side effects
// that did not finish.
func (s *service) Materialize(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	if paymentIntentID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "payment intent id is required")
	}
	start := s.now()

	existing, err := s.repo.GetByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to look up payment intent")
	}
	if existing != nil {
		// Replay. The order exists; make sure its side effects do too.
		s.finish(ctx, existing)
		return existing, nil
	}

	intent, err := s.provider.RetrieveIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != payments.IntentStatusSucceeded {
		return nil, apperrors.New(apperrors.CodePaymentNotComplete, "payment has not completed").
			WithDetails(map[string]any{"status": string(intent.Status)})
	}

	session, err := s.sessionForIntent(ctx, intent)
	if err != nil {
		return nil, err
	}
	if int64(session.TotalCents) != intent.AmountCents {
		return nil, apperrors.New(apperrors.CodeStaleQuote, "captured amount does not match the quoted total").
			WithDetails(map[string]any{
				"quoted_cents":   session.TotalCents,
				"captured_cents": intent.AmountCents,
			})
	}

	order := buildOrder(session, intent.Metadata[metaEmail])
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := s.insertWithFreshNumber(ctx, tx, repo, order); err != nil {
			return err
		}

		record := &models.PaymentRecord{
			PaymentIntentID: intent.ID,
			OrderID:         order.ID,
			AmountCents:     intent.AmountCents,
			Currency:        intent.Currency,
		}
		if err := repo.InsertPaymentRecord(ctx, record); err != nil {
			if dbpkg.IsUniqueViolation(err, "payment_records_pkey") {
				return errIntentAlreadyMaterialized
			}
			return err
		}

		moved, err := s.sessions.WithTx(tx).UpdateStatus(ctx, session.ID, []enums.CheckoutSessionStatus{
			enums.CheckoutSessionStatusCreated,
			enums.CheckoutSessionStatusValidated,
		}, enums.CheckoutSessionStatusConsumed)
		if err != nil {
			return err
		}
		if !moved {
			return apperrors.New(apperrors.CodeStateConflict, "checkout session is no longer consumable")
		}
		return nil
	})
	if errors.Is(txErr, errIntentAlreadyMaterialized) {
		// Lost the race. The winner's transaction committed the order.
		winner, err := s.repo.GetByPaymentIntent(ctx, paymentIntentID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load concurrently materialized order")
		}
		if winner == nil {
			return nil, apperrors.New(apperrors.CodeInternal, "payment intent claimed but order not found")
		}
		return winner, nil
	}
	if txErr != nil {
		if appErr := apperrors.As(txErr); appErr != nil {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, txErr, "failed to materialize order")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":          order.ID.String(),
		"order_number":      order.OrderNumber,
		"payment_intent_id": intent.ID,
		"total_cents":       order.TotalCents,
	})
	s.logg.Info(ctx, "order materialized")
	s.metrics.IncOrdersMaterialized()
	s.metrics.ObserveMaterializeDuration(s.now().Sub(start))

	s.finish(ctx, order)
	return order, nil
}

// insertWithFreshNumber inserts the order, regenerating the order number on a
// collision. Savepoints keep the retry inside the surrounding transaction.
func (s *service) insertWithFreshNumber(ctx context.Context, tx *gorm.DB, repo *Repository, order *models.Order) error {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := GenerateOrderNumber(s.now())
		if err != nil {
			return err
		}
		order.OrderNumber = number
		if err := tx.SavePoint(orderNumberSavepoint).Error; err != nil {
			return err
		}
		insertErr := repo.InsertOrder(ctx, order)
		if insertErr == nil {
			return nil
		}
		if !dbpkg.IsUniqueViolation(insertErr, "ux_orders_order_number") {
			return insertErr
		}
		if rbErr := tx.RollbackTo(orderNumberSavepoint).Error; rbErr != nil {
			return rbErr
		}
	}
	return apperrors.New(apperrors.CodeOrderNumberExhausted, "could not allocate a unique order number")
}

// sessionForIntent loads and checks the session named in the intent metadata.
func (s *service) sessionForIntent(ctx context.Context, intent *payments.Intent) (*models.CheckoutSession, error) {
	raw := intent.Metadata[metaSessionID]
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeValidation, "payment intent does not reference a checkout session")
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load checkout session")
	}
	if session == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "checkout session not found")
	}
	switch session.Status {
	case enums.CheckoutSessionStatusConsumed:
		return nil, apperrors.New(apperrors.CodeStateConflict, "checkout session was already consumed")
	case enums.CheckoutSessionStatusAbandoned:
		return nil, apperrors.New(apperrors.CodeStateConflict, "checkout session was abandoned")
	case enums.CheckoutSessionStatusExpired:
		return nil, apperrors.New(apperrors.CodeSessionExpired, "checkout session has expired")
	}
	// Payment wins over the clock: the processor captured real money while
	// the session was live, so a TTL that lapsed during capture does not
	// void the order.
	return session, nil
}

// consumableSession enforces ownership and liveness before payment starts.
func (s *service) consumableSession(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load checkout session")
	}
	if session == nil || session.OwnerKind != owner.Kind || session.OwnerID != owner.ID {
		return nil, apperrors.New(apperrors.CodeNotFound, "checkout session not found")
	}
	if session.Status.IsTerminal() {
		if session.Status == enums.CheckoutSessionStatusExpired {
			return nil, apperrors.New(apperrors.CodeSessionExpired, "checkout session has expired")
		}
		return nil, apperrors.New(apperrors.CodeStateConflict, "checkout session is no longer payable")
	}
	if s.now().After(session.ExpiresAt) {
		return nil, apperrors.New(apperrors.CodeSessionExpired, "checkout session has expired")
	}
	return session, nil
}

// finish runs the side effects that follow a committed order: stock
// decrements, cart teardown, and the confirmation event. Every step is
// idempotent, so interrupted runs are replayed by Recover without double
// effects. Failures are logged, never returned; the order already exists.
func (s *service) finish(ctx context.Context, order *models.Order) {
	var errs error
	for _, item := range order.Items {
		if _, err := s.inventory.DecrementForOrder(ctx, item.VariantID, item.Quantity, order.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("decrement variant %s: %w", item.VariantID, err))
		}
	}

	owner := identity.OwnerKey{Kind: order.OwnerKind, ID: order.OwnerID}
	if err := s.carts.Clear(ctx, owner); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("clear cart: %w", err))
	}

	emitErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Owner:         &outbox.OwnerRef{Kind: order.OwnerKind, ID: order.OwnerID},
			Data: orderConfirmedPayload{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Email:       order.Email,
				TotalCents:  order.TotalCents,
				Currency:    string(order.Currency),
			},
			Version: 1,
		})
	})
	if emitErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("emit confirmation event: %w", emitErr))
	}

	if errs != nil {
		ctx = s.logg.WithField(ctx, "order_id", order.ID.String())
		s.logg.Warn(ctx, fmt.Sprintf("order side effects incomplete, recovery will retry: %v", errs))
	}
}

type orderConfirmedPayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Email       string    `json:"email"`
	TotalCents  int       `json:"totalCents"`
	Currency    string    `json:"currency"`
}

// Get loads an owner's order.
func (s *service) Get(ctx context.Context, owner identity.OwnerKey, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load order")
	}
	if order == nil || order.OwnerKind != owner.Kind || order.OwnerID != owner.ID {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// List pages through an owner's orders.
func (s *service) List(ctx context.Context, owner identity.OwnerKey, params pagination.Params) ([]models.Order, string, error) {
	rows, next, err := s.repo.ListByOwner(ctx, owner, params)
	if err != nil {
		if appErr := apperrors.As(err); appErr != nil {
			return nil, "", appErr
		}
		return nil, "", apperrors.Wrap(apperrors.CodeInternal, err, "failed to list orders")
	}
	return rows, next, nil
}

// Recover replays the post-commit side effects for one order.
func (s *service) Recover(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "failed to load order")
	}
	if order == nil {
		return apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	s.finish(ctx, order)
	return nil
}

// RecoverRecent replays side effects for every order created inside the
// window. The worker runs this on a timer to mop up crashes between the order
// commit and its follow-on steps.
func (s *service) RecoverRecent(ctx context.Context, window time.Duration) (int, error) {
	cutoff := s.now().Add(-window)
	rows, err := s.repo.ListCreatedSince(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, err, "failed to list recent orders")
	}
	for i := range rows {
		s.finish(ctx, &rows[i])
	}
	return len(rows), nil
}

// buildOrder copies the session's frozen lines and totals into a new order.
func buildOrder(session *models.CheckoutSession, email string) *models.Order {
	order := &models.Order{
		ID:                uuid.New(),
		OwnerKind:         session.OwnerKind,
		OwnerID:           session.OwnerID,
		Email:             email,
		Status:            enums.OrderStatusOpen,
		PaymentStatus:     enums.PaymentStatusPaid,
		FulfillmentStatus: enums.FulfillmentStatusUnfulfilled,
		SubtotalCents:     session.SubtotalCents,
		TaxCents:          session.TaxCents,
		ShippingCents:     session.ShippingCents,
		DiscountCents:     session.DiscountCents,
		TotalCents:        session.TotalCents,
		Currency:          session.Currency,
	}
	for _, line := range session.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			NameSnapshot:   line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
		})
	}
	return order
}
