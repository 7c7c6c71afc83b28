package controllers

import (
	"net/http"

	"github.com/shoplight/shoplight-backend/api/responses"
	"github.com/shoplight/shoplight-backend/api/validators"
	inventorysvc "github.com/shoplight/shoplight-backend/internal/inventory"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
)

type restockRequest struct {
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	ReferenceID string `json:"referenceId" validate:"omitempty,max=128"`
}

// InventoryRestock records a restock movement and bumps the counter.
func InventoryRestock(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		variantID, err := pathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload restockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Increment(ctx, variantID, payload.Quantity, enums.MovementReasonRestock, payload.ReferenceID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		available, err := svc.GetAvailable(ctx, variantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, availableResponse{VariantID: variantID.String(), AvailableQty: available})
	}
}

type adjustmentRequest struct {
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	ReferenceID string `json:"referenceId" validate:"omitempty,max=128"`
}

// InventoryAdjust records a manual correction movement.
func InventoryAdjust(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		variantID, err := pathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload adjustmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Increment(ctx, variantID, payload.Quantity, enums.MovementReasonAdjustment, payload.ReferenceID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		available, err := svc.GetAvailable(ctx, variantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, availableResponse{VariantID: variantID.String(), AvailableQty: available})
	}
}

type availableResponse struct {
	VariantID    string `json:"variantId"`
	AvailableQty int    `json:"availableQty"`
}

// InventoryLevel returns the cached available counter for a variant.
func InventoryLevel(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		variantID, err := pathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		available, err := svc.GetAvailable(ctx, variantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, availableResponse{VariantID: variantID.String(), AvailableQty: available})
	}
}

// InventoryMovements lists recent ledger entries for a variant.
func InventoryMovements(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		variantID, err := pathUUID(r, "variantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		movements, err := svc.Movements(ctx, variantID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, movements)
	}
}

type reconcileResponse struct {
	Drifts  []inventorysvc.Drift `json:"drifts"`
	Checked bool                 `json:"checked"`
}

// InventoryReconcile compares every counter against its movement log.
func InventoryReconcile(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		drifts, err := svc.Reconcile(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, reconcileResponse{Drifts: drifts, Checked: true})
	}
}
