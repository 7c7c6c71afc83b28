package checkout

import (
	"context"

	"github.com/google/uuid"

	"github.com/shoplight/shoplight-backend/internal/identity"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/pricing"
)

// ConflictKind distinguishes the two ways a frozen quote can go stale.
type ConflictKind string

const (
	ConflictQuantityUnavailable ConflictKind = "quantity_unavailable"
	ConflictPriceDrift          ConflictKind = "price_drift"
)

// Conflict is one line whose live state disagrees with the snapshot.
type Conflict struct {
	Kind           ConflictKind `json:"kind"`
	VariantID      uuid.UUID    `json:"variantId"`
	Requested      int          `json:"requested,omitempty"`
	Available      int          `json:"available,omitempty"`
	SnapshotCents  int          `json:"snapshotCents,omitempty"`
	LivePriceCents int          `json:"livePriceCents,omitempty"`
}

// RevalidationResult reports whether the session can proceed to payment.
// Stock conflicts block; price drift is surfaced for a re-quote but does not.
type RevalidationResult struct {
	CanProceed       bool           `json:"canProceed"`
	Conflicts        []Conflict     `json:"conflicts"`
	RecomputedTotals pricing.Totals `json:"recomputedTotals"`
}

// Revalidate re-reads live price and stock for every line in the session,
// immediately before payment capture. An expired session fails here with
// SESSION_EXPIRED rather than producing a result.
func (s *service) Revalidate(ctx context.Context, owner identity.OwnerKey, sessionID uuid.UUID) (*RevalidationResult, error) {
	session, err := s.ownedSession(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}
	if s.lazyExpire(ctx, session) {
		return nil, pkgerrors.New(pkgerrors.CodeSessionExpired, "checkout session expired, re-quote from the cart").WithDetails(map[string]any{
			"sessionId": session.ID,
			"expiredAt": session.ExpiresAt,
		})
	}
	switch session.Status {
	case enums.CheckoutSessionStatusConsumed:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session was already consumed")
	case enums.CheckoutSessionStatusAbandoned:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session was abandoned")
	case enums.CheckoutSessionStatusExpired:
		return nil, pkgerrors.New(pkgerrors.CodeSessionExpired, "checkout session expired, re-quote from the cart")
	}

	variantIDs := make([]uuid.UUID, 0, len(session.Lines))
	for _, line := range session.Lines {
		variantIDs = append(variantIDs, line.VariantID)
	}
	details, err := s.variants.GetVariantDetails(ctx, variantIDs)
	if err != nil {
		return nil, err
	}

	result := &RevalidationResult{CanProceed: true}
	priceLines := make([]pricing.Line, 0, len(session.Lines))
	for _, line := range session.Lines {
		detail, ok := details[line.VariantID]
		if !ok {
			result.Conflicts = append(result.Conflicts, Conflict{
				Kind:      ConflictQuantityUnavailable,
				VariantID: line.VariantID,
				Requested: line.Quantity,
				Available: 0,
			})
			result.CanProceed = false
			continue
		}
		if detail.AvailableQty < line.Quantity {
			result.Conflicts = append(result.Conflicts, Conflict{
				Kind:      ConflictQuantityUnavailable,
				VariantID: line.VariantID,
				Requested: line.Quantity,
				Available: detail.AvailableQty,
			})
			result.CanProceed = false
		}
		if detail.PriceCents != line.UnitPriceCents {
			result.Conflicts = append(result.Conflicts, Conflict{
				Kind:           ConflictPriceDrift,
				VariantID:      line.VariantID,
				SnapshotCents:  line.UnitPriceCents,
				LivePriceCents: detail.PriceCents,
			})
		}
		priceLines = append(priceLines, pricing.Line{UnitPriceCents: detail.PriceCents, Quantity: line.Quantity})
	}

	code := ""
	if session.DiscountCode != nil {
		code = *session.DiscountCode
	}
	totals, err := pricing.Quote(priceLines, code, s.checkout)
	if err != nil {
		return nil, err
	}
	result.RecomputedTotals = totals

	if result.CanProceed && session.Status == enums.CheckoutSessionStatusCreated {
		if _, err := s.repo.UpdateStatus(ctx, session.ID,
			[]enums.CheckoutSessionStatus{enums.CheckoutSessionStatusCreated},
			enums.CheckoutSessionStatusValidated); err != nil {
			return nil, err
		}
	}
	return result, nil
}
