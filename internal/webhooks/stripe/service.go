package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/shoplight/shoplight-backend/pkg/db/models"
	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
)

// materializer is the slice of the order service the webhook drives.
type materializer interface {
	Materialize(ctx context.Context, paymentIntentID string) (*models.Order, error)
}

// Service reacts to Stripe payment events. A succeeded intent becomes an
// order; everything else is acknowledged and logged.
type Service struct {
	orders materializer
	logg   *logger.Logger
}

// NewService wires the webhook handler.
func NewService(orders materializer, logg *logger.Logger) (*Service, error) {
	if orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{orders: orders, logg: logg}, nil
}

// HandleEvent routes one verified Stripe event.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		if intent.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}

		order, err := s.orders.Materialize(ctx, intent.ID)
		if err != nil {
			return err
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": intent.ID,
			"order_id":          order.ID.String(),
			"order_number":      order.OrderNumber,
		})
		s.logg.Info(logCtx, "payment intent materialized")
		return nil
	case stripe.EventTypePaymentIntentPaymentFailed:
		intentID := event.GetObjectValue("id")
		logCtx := s.logg.WithField(ctx, "payment_intent_id", intentID)
		s.logg.Warn(logCtx, "payment intent failed")
		return nil
	default:
		// Not a payment event we act on.
		return nil
	}
}
