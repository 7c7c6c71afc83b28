package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shoplight/shoplight-backend/api/responses"
	"github.com/shoplight/shoplight-backend/api/validators"
	checkoutsvc "github.com/shoplight/shoplight-backend/internal/checkout"
	ordersvc "github.com/shoplight/shoplight-backend/internal/orders"
	"github.com/shoplight/shoplight-backend/pkg/db/models"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
)

type createCheckoutRequest struct {
	DiscountCode string `json:"discountCode" validate:"omitempty,max=64"`
}

type checkoutSessionResponse struct {
	ID            uuid.UUID                     `json:"id"`
	Status        string                        `json:"status"`
	Currency      string                        `json:"currency"`
	SubtotalCents int                           `json:"subtotalCents"`
	TaxCents      int                           `json:"taxCents"`
	ShippingCents int                           `json:"shippingCents"`
	DiscountCents int                           `json:"discountCents"`
	TotalCents    int                           `json:"totalCents"`
	DiscountCode  *string                       `json:"discountCode,omitempty"`
	Lines         []checkoutSessionLineResponse `json:"lines"`
	ExpiresAt     time.Time                     `json:"expiresAt"`
	CreatedAt     time.Time                     `json:"createdAt"`
}

type checkoutSessionLineResponse struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"productId"`
	VariantID      uuid.UUID `json:"variantId"`
	Name           string    `json:"name"`
	UnitPriceCents int       `json:"unitPriceCents"`
	Quantity       int       `json:"quantity"`
	LineTotalCents int       `json:"lineTotalCents"`
}

func newCheckoutSessionResponse(session *models.CheckoutSession) checkoutSessionResponse {
	lines := make([]checkoutSessionLineResponse, 0, len(session.Lines))
	for _, line := range session.Lines {
		lines = append(lines, checkoutSessionLineResponse{
			ID:             line.ID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
		})
	}

	return checkoutSessionResponse{
		ID:            session.ID,
		Status:        string(session.Status),
		Currency:      string(session.Currency),
		SubtotalCents: session.SubtotalCents,
		TaxCents:      session.TaxCents,
		ShippingCents: session.ShippingCents,
		DiscountCents: session.DiscountCents,
		TotalCents:    session.TotalCents,
		DiscountCode:  session.DiscountCode,
		Lines:         lines,
		ExpiresAt:     session.ExpiresAt,
		CreatedAt:     session.CreatedAt,
	}
}

// CheckoutCreate snapshots the cart into a priced, time-boxed session.
func CheckoutCreate(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		owner, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createCheckoutRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		session, err := svc.CreateSession(ctx, owner, payload.DiscountCode)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutSessionResponse(session))
	}
}

// CheckoutFetch returns one session the owner holds.
func CheckoutFetch(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		owner, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sessionID, err := pathUUID(r, "sessionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.GetSession(ctx, owner, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutSessionResponse(session))
	}
}

// CheckoutRevalidate re-checks a quote against live stock and prices.
func CheckoutRevalidate(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		owner, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sessionID, err := pathUUID(r, "sessionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Revalidate(ctx, owner, sessionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CheckoutAbandon releases a session the shopper walked away from.
func CheckoutAbandon(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		owner, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sessionID, err := pathUUID(r, "sessionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Abandon(ctx, owner, sessionID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

type checkoutPayRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CheckoutPay opens a payment intent for the session's frozen total.
func CheckoutPay(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		owner, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sessionID, err := pathUUID(r, "sessionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload checkoutPayRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		intent, err := svc.BeginPayment(ctx, owner, sessionID, payload.Email)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}
