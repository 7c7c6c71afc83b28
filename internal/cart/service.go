package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoplight/shoplight-backend/internal/catalog"
	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/pricing"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type variantLoader interface {
	GetVariantDetail(ctx context.Context, variantID uuid.UUID) (*catalog.VariantDetail, error)
	GetVariantDetails(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]*catalog.VariantDetail, error)
}

// CartView is the live read model returned by GetCart. Prices and stock
// flags are re-joined against the catalog on every read, unlike a checkout
// session which freezes them.
type CartView struct {
	Owner         identity.OwnerKey `json:"-"`
	Lines         []CartLineView    `json:"lines"`
	Totals        pricing.Totals    `json:"totals"`
	HasOutOfStock bool              `json:"hasOutOfStock"`
	HasLowStock   bool              `json:"hasLowStock"`
}

// CartLineView is one cart line joined with live catalog data.
type CartLineView struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"productId"`
	VariantID      uuid.UUID `json:"variantId"`
	Name           string    `json:"name"`
	UnitPriceCents int       `json:"unitPriceCents"`
	Quantity       int       `json:"quantity"`
	LineTotalCents int       `json:"lineTotalCents"`
	AvailableQty   int       `json:"availableQty"`
	OutOfStock     bool      `json:"outOfStock"`
	LowStock       bool      `json:"lowStock"`
}

// Service exposes cart persistence operations.
type Service interface {
	AddLine(ctx context.Context, owner identity.OwnerKey, variantID uuid.UUID, qty int) (*models.CartLine, error)
	SetQuantity(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, qty int) (*models.CartLine, error)
	RemoveLine(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID) error
	GetCart(ctx context.Context, owner identity.OwnerKey) (*CartView, error)
	Clear(ctx context.Context, owner identity.OwnerKey) error
	Adopt(ctx context.Context, guest identity.OwnerKey, user identity.OwnerKey) error
}

type service struct {
	repo     *Repository
	tx       txRunner
	catalog  variantLoader
	checkout config.CheckoutConfig
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, catalogRepo variantLoader, checkoutCfg config.CheckoutConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog loader required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		catalog:  catalogRepo,
		checkout: checkoutCfg,
	}, nil
}

// AddLine merges into an existing (owner, variant) row or inserts a new one.
// Adding to cart never reserves stock.
func (s *service) AddLine(ctx context.Context, owner identity.OwnerKey, variantID uuid.UUID, qty int) (*models.CartLine, error) {
	if owner.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	detail, err := s.catalog.GetVariantDetail(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if !detail.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}

	var out *models.CartLine
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetByOwnerAndVariant(ctx, owner, variantID)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Quantity += qty
			if err := repo.UpdateQuantity(ctx, existing.ID, existing.Quantity); err != nil {
				return err
			}
			out = existing
			return nil
		}
		line := &models.CartLine{
			ID:        uuid.New(),
			OwnerKind: owner.Kind,
			OwnerID:   owner.ID,
			ProductID: detail.ProductID,
			VariantID: variantID,
			Quantity:  qty,
		}
		if err := repo.Insert(ctx, line); err != nil {
			return err
		}
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetQuantity overwrites a line's quantity. Zero (or a negative clamped to
// zero) deletes the line.
func (s *service) SetQuantity(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID, qty int) (*models.CartLine, error) {
	if qty < 0 {
		qty = 0
	}
	line, err := s.ownedLine(ctx, owner, lineID)
	if err != nil {
		return nil, err
	}
	if qty == 0 {
		if err := s.repo.Delete(ctx, line.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := s.repo.UpdateQuantity(ctx, line.ID, qty); err != nil {
		return nil, err
	}
	line.Quantity = qty
	return line, nil
}

// RemoveLine deletes a line after enforcing ownership.
func (s *service) RemoveLine(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID) error {
	line, err := s.ownedLine(ctx, owner, lineID)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, line.ID)
}

// GetCart joins the owner's lines against live catalog prices and stock.
func (s *service) GetCart(ctx context.Context, owner identity.OwnerKey) (*CartView, error) {
	if owner.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	lines, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	view := &CartView{Owner: owner, Lines: make([]CartLineView, 0, len(lines))}
	if len(lines) == 0 {
		return view, nil
	}

	variantIDs := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		variantIDs = append(variantIDs, line.VariantID)
	}
	details, err := s.catalog.GetVariantDetails(ctx, variantIDs)
	if err != nil {
		return nil, err
	}

	priceLines := make([]pricing.Line, 0, len(lines))
	for _, line := range lines {
		detail, ok := details[line.VariantID]
		if !ok {
			// variant was removed from the catalog; surface the line as
			// unavailable instead of dropping it silently
			view.Lines = append(view.Lines, CartLineView{
				ID:         line.ID,
				ProductID:  line.ProductID,
				VariantID:  line.VariantID,
				Quantity:   line.Quantity,
				OutOfStock: true,
			})
			view.HasOutOfStock = true
			continue
		}
		lv := CartLineView{
			ID:             line.ID,
			ProductID:      detail.ProductID,
			VariantID:      line.VariantID,
			Name:           detail.ProductName,
			UnitPriceCents: detail.PriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: detail.PriceCents * line.Quantity,
			AvailableQty:   detail.AvailableQty,
			OutOfStock:     detail.AvailableQty <= 0,
			LowStock:       detail.AvailableQty > 0 && detail.AvailableQty <= s.checkout.LowStockThreshold,
		}
		if lv.OutOfStock {
			view.HasOutOfStock = true
		}
		if lv.LowStock {
			view.HasLowStock = true
		}
		view.Lines = append(view.Lines, lv)
		priceLines = append(priceLines, pricing.Line{UnitPriceCents: detail.PriceCents, Quantity: line.Quantity})
	}

	totals, err := pricing.Quote(priceLines, "", s.checkout)
	if err != nil {
		return nil, err
	}
	view.Totals = totals
	return view, nil
}

// Clear drops every line for the owner.
func (s *service) Clear(ctx context.Context, owner identity.OwnerKey) error {
	if owner.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	return s.repo.DeleteByOwner(ctx, owner)
}

// Adopt merges a guest cart into a user cart on login. Quantities for the
// same variant add together; the guest rows are removed.
func (s *service) Adopt(ctx context.Context, guest identity.OwnerKey, user identity.OwnerKey) error {
	if guest.Kind != enums.OwnerKindGuest {
		return pkgerrors.New(pkgerrors.CodeValidation, "adopt source must be a guest key")
	}
	if user.Kind != enums.OwnerKindUser {
		return pkgerrors.New(pkgerrors.CodeValidation, "adopt target must be a user key")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		guestLines, err := repo.ListByOwner(ctx, guest)
		if err != nil {
			return err
		}
		for _, guestLine := range guestLines {
			existing, err := repo.GetByOwnerAndVariant(ctx, user, guestLine.VariantID)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := repo.UpdateQuantity(ctx, existing.ID, existing.Quantity+guestLine.Quantity); err != nil {
					return err
				}
				continue
			}
			line := &models.CartLine{
				ID:        uuid.New(),
				OwnerKind: user.Kind,
				OwnerID:   user.ID,
				ProductID: guestLine.ProductID,
				VariantID: guestLine.VariantID,
				Quantity:  guestLine.Quantity,
			}
			if err := repo.Insert(ctx, line); err != nil {
				return err
			}
		}
		return repo.DeleteByOwner(ctx, guest)
	})
}

func (s *service) ownedLine(ctx context.Context, owner identity.OwnerKey, lineID uuid.UUID) (*models.CartLine, error) {
	if owner.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	if lineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart line id is required")
	}
	line, err := s.repo.GetByID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	// a line owned by someone else looks identical to a missing one
	if line == nil || line.OwnerKind != owner.Kind || line.OwnerID != owner.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return line, nil
}
