package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/shoplight/shoplight-backend/pkg/db"
	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
	"github.com/shoplight/shoplight-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DecrementResult reports what a sale decrement actually did. AppliedQty can
// be lower than the requested quantity when stock ran out; the order still
// stands because payment was already captured.
type DecrementResult struct {
	VariantID    uuid.UUID
	RequestedQty int
	AppliedQty   int
	Clamped      bool
	AlreadyDone  bool
}

// Service exposes the inventory ledger operations.
type Service interface {
	DecrementForOrder(ctx context.Context, variantID uuid.UUID, qty int, orderID uuid.UUID) (*DecrementResult, error)
	Increment(ctx context.Context, variantID uuid.UUID, qty int, reason enums.MovementReason, referenceID string) error
	GetAvailable(ctx context.Context, variantID uuid.UUID) (int, error)
	Movements(ctx context.Context, variantID uuid.UUID, limit int) ([]models.InventoryMovement, error)
	Reconcile(ctx context.Context) ([]Drift, error)
}

// Drift is one variant whose counter disagrees with its movement log.
type Drift struct {
	VariantID  uuid.UUID `json:"variantId"`
	CounterQty int       `json:"counterQty"`
	LedgerQty  int       `json:"ledgerQty"`
}

type service struct {
	repo    *Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics
}

// NewService builds the inventory service.
func NewService(repo *Repository, tx txRunner, logg *logger.Logger, pipelineMetrics *metrics.PipelineMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, metrics: pipelineMetrics}, nil
}

// DecrementForOrder applies a sale decrement clamped at zero. The movement
// row carries the order reference, and a second call for the same
// (variant, order) pair is a no-op, so crashed finishers can re-run safely.
func (s *service) DecrementForOrder(ctx context.Context, variantID uuid.UUID, qty int, orderID uuid.UUID) (*DecrementResult, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	result := &DecrementResult{VariantID: variantID, RequestedQty: qty}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		done, err := repo.HasSaleMovement(ctx, variantID, orderID.String())
		if err != nil {
			return err
		}
		if done {
			result.AlreadyDone = true
			return nil
		}

		applied, err := applyClampedDecrement(ctx, repo, variantID, qty)
		if err != nil {
			return err
		}
		result.AppliedQty = applied
		result.Clamped = applied < qty

		movement := &models.InventoryMovement{
			ID:            uuid.New(),
			VariantID:     variantID,
			DeltaQty:      -applied,
			Reason:        enums.MovementReasonSale,
			ReferenceType: enums.MovementReferenceOrder,
			ReferenceID:   orderID.String(),
		}
		if err := repo.InsertMovement(ctx, movement); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_inventory_movements_sale_ref") {
				result.AlreadyDone = true
				result.AppliedQty = 0
				result.Clamped = false
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Clamped {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"variant_id": variantID.String(),
			"order_id":   orderID.String(),
			"requested":  qty,
			"applied":    result.AppliedQty,
		})
		s.logg.Warn(logCtx, "inventory decrement clamped at zero")
		s.metrics.IncInventoryClamps()
	}
	return result, nil
}

const casAttempts = 5

// applyClampedDecrement subtracts qty from the counter, floored at zero,
// using compare-and-swap so concurrent decrements never drive it negative.
func applyClampedDecrement(ctx context.Context, repo *Repository, variantID uuid.UUID, qty int) (int, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		level, err := repo.GetLevel(ctx, variantID)
		if err != nil {
			return 0, err
		}
		applied := qty
		if applied > level.AvailableQty {
			applied = level.AvailableQty
		}
		swapped, err := repo.CompareAndSetLevelQty(ctx, variantID, level.AvailableQty, level.AvailableQty-applied)
		if err != nil {
			return 0, err
		}
		if swapped {
			return applied, nil
		}
	}
	return 0, pkgerrors.New(pkgerrors.CodeConflict, "inventory counter contention, retry")
}

// Increment applies a restock or adjustment and appends the paired movement.
func (s *service) Increment(ctx context.Context, variantID uuid.UUID, qty int, reason enums.MovementReason, referenceID string) error {
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if reason != enums.MovementReasonRestock && reason != enums.MovementReasonAdjustment {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid increment reason %q", reason))
	}
	if referenceID == "" {
		referenceID = uuid.NewString()
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpsertLevel(ctx, variantID, qty); err != nil {
			return err
		}
		movement := &models.InventoryMovement{
			ID:            uuid.New(),
			VariantID:     variantID,
			DeltaQty:      qty,
			Reason:        reason,
			ReferenceType: enums.MovementReferenceManual,
			ReferenceID:   referenceID,
		}
		return repo.InsertMovement(ctx, movement)
	})
}

// GetAvailable returns the materialized counter for a variant.
func (s *service) GetAvailable(ctx context.Context, variantID uuid.UUID) (int, error) {
	level, err := s.repo.GetLevel(ctx, variantID)
	if err != nil {
		return 0, err
	}
	return level.AvailableQty, nil
}

// Movements returns the movement history for a variant.
func (s *service) Movements(ctx context.Context, variantID uuid.UUID, limit int) ([]models.InventoryMovement, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	return s.repo.ListMovements(ctx, variantID, limit)
}

// Reconcile compares every counter against its movement-log sum and reports
// variants that drifted. It never mutates; operators decide how to repair.
func (s *service) Reconcile(ctx context.Context) ([]Drift, error) {
	levels, err := s.repo.ListLevels(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	for _, level := range levels {
		ledger, err := s.repo.SumMovements(ctx, level.VariantID)
		if err != nil {
			return nil, err
		}
		if ledger != level.AvailableQty {
			drifts = append(drifts, Drift{
				VariantID:  level.VariantID,
				CounterQty: level.AvailableQty,
				LedgerQty:  ledger,
			})
		}
	}
	if len(drifts) > 0 {
		logCtx := s.logg.WithField(ctx, "drift_count", len(drifts))
		s.logg.Warn(logCtx, "inventory counters drifted from movement log")
	}
	return drifts, nil
}
