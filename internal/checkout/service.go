package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplight/shoplight-backend/internal/cart"
	"github.com/shoplight/shoplight-backend/internal/catalog"
	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
	"github.com/shoplight/shoplight-backend/pkg/metrics"
	"github.com/shoplight/shoplight-backend/pkg/pricing"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartReader interface {
	GetCart(ctx context.Context, owner identity.OwnerKey) (*cart.CartView, error)
}

type variantLoader interface {
	GetVariantDetails(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]*catalog.VariantDetail, error)
}

// Service manages the checkout session lifecycle: snapshot, revalidation,
// explicit abandon, and the stale sweep.
type Service interface {
	CreateSession(ctx context.Context, owner identity.OwnerKey, discountCode string) (*models.CheckoutSession, error)
	GetSession(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) (*models.CheckoutSession, error)
	Revalidate(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) (*RevalidationResult, error)
	Abandon(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) error
	ExpireStale(ctx context.Context) (int64, error)
}

type service struct {
	repo     *Repository
	tx       txRunner
	carts    cartReader
	variants variantLoader
	checkout config.CheckoutConfig
	logg     *logger.Logger
	metrics  *metrics.PipelineMetrics
	now      func() time.Time
}

// NewService builds the checkout session manager.
func NewService(repo *Repository, tx txRunner, carts cartReader, variants variantLoader, checkoutCfg config.CheckoutConfig, logg *logger.Logger, pipelineMetrics *metrics.PipelineMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if variants == nil {
		return nil, fmt.Errorf("variant loader required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		carts:    carts,
		variants: variants,
		checkout: checkoutCfg,
		logg:     logg,
		metrics:  pipelineMetrics,
		now:      time.Now,
	}, nil
}

// CreateSession freezes the owner's cart into an immutable, TTL-bounded
// quote. Prices come from the live catalog read, never from the client.
func (s *service) CreateSession(ctx context.Context, owner identity.OwnerKey, discountCode string) (*models.CheckoutSession, error) {
	view, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(view.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	var depleted []map[string]any
	priceLines := make([]pricing.Line, 0, len(view.Lines))
	for _, line := range view.Lines {
		if line.AvailableQty <= 0 {
			depleted = append(depleted, map[string]any{
				"variantId": line.VariantID,
				"requested": line.Quantity,
				"available": line.AvailableQty,
			})
			continue
		}
		priceLines = append(priceLines, pricing.Line{UnitPriceCents: line.UnitPriceCents, Quantity: line.Quantity})
	}
	if len(depleted) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "one or more items are out of stock").WithDetails(map[string]any{
			"lines": depleted,
		})
	}

	totals, err := pricing.Quote(priceLines, discountCode, s.checkout)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.CheckoutSession{
		ID:            uuid.New(),
		OwnerKind:     owner.Kind,
		OwnerID:       owner.ID,
		Currency:      enums.CurrencyUSD,
		Status:        enums.CheckoutSessionStatusCreated,
		SubtotalCents: totals.SubtotalCents,
		TaxCents:      totals.TaxCents,
		ShippingCents: totals.ShippingCents,
		DiscountCents: totals.DiscountCents,
		TotalCents:    totals.TotalCents,
		ExpiresAt:     now.Add(s.checkout.SessionTTL),
	}
	if code := normalizeCode(discountCode); code != "" {
		session.DiscountCode = &code
	}
	for _, line := range view.Lines {
		session.Lines = append(session.Lines, models.CheckoutSessionLine{
			ID:             uuid.New(),
			SessionID:      session.ID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Insert(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"session_id":  session.ID.String(),
		"total_cents": session.TotalCents,
		"line_count":  len(session.Lines),
	})
	s.logg.Info(logCtx, "checkout session created")
	s.metrics.IncSessionsCreated()
	return session, nil
}

// GetSession loads a session scoped to its owner. Expiry is detected lazily:
// a stale non-terminal session is flipped to expired on read.
func (s *service) GetSession(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	session, err := s.ownedSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}
	if s.lazyExpire(ctx, session) {
		session.Status = enums.CheckoutSessionStatusExpired
	}
	return session, nil
}

// Abandon explicitly cancels a non-terminal session.
func (s *service) Abandon(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) error {
	session, err := s.ownedSession(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("session is already %s", session.Status))
	}
	moved, err := s.repo.UpdateStatus(ctx, session.ID,
		[]enums.CheckoutSessionStatus{enums.CheckoutSessionStatusCreated, enums.CheckoutSessionStatusValidated},
		enums.CheckoutSessionStatusAbandoned)
	if err != nil {
		return err
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "session state changed, reload and retry")
	}
	return nil
}

// ExpireStale is the worker-side sweep for sessions the lazy path never
// touched again.
func (s *service) ExpireStale(ctx context.Context) (int64, error) {
	moved, err := s.repo.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		logCtx := s.logg.WithField(ctx, "expired_count", moved)
		s.logg.Info(logCtx, "stale checkout sessions expired")
	}
	return moved, nil
}

func (s *service) ownedSession(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.OwnerKind != owner.Kind || session.OwnerID != owner.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return session, nil
}

// lazyExpire flips a stale session to expired in storage and reports whether
// it did. Terminal sessions are left alone.
func (s *service) lazyExpire(ctx context.Context, session *models.CheckoutSession) bool {
	if session.Status.IsTerminal() {
		return false
	}
	if s.now().Before(session.ExpiresAt) {
		return false
	}
	if _, err := s.repo.UpdateStatus(ctx, session.ID,
		[]enums.CheckoutSessionStatus{enums.CheckoutSessionStatusCreated, enums.CheckoutSessionStatusValidated},
		enums.CheckoutSessionStatusExpired); err != nil {
		s.logg.Error(ctx, "failed to expire session lazily", err)
	}
	// the TTL elapsed either way; the caller sees it expired
	return true
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
