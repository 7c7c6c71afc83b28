package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/db/models"
	"github.com/shoplight/shoplight-backend/pkg/enums"
	"github.com/shoplight/shoplight-backend/pkg/logger"
	"github.com/shoplight/shoplight-backend/pkg/outbox"
	"github.com/shoplight/shoplight-backend/pkg/outbox/idempotency"
)

const orderConfirmationConsumer = "order-confirmations"

// eventStore is the slice of the outbox repository the dispatcher drains.
type eventStore interface {
	FetchUnpublished(limit int) ([]models.OutboxEvent, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, err error) error
}

type sender interface {
	SendOrderConfirmation(ctx context.Context, confirmation OrderConfirmation) error
}

// Dispatcher drains the transactional outbox and delivers each event to its
// handler. Today the only handler is the order confirmation email.
type Dispatcher struct {
	events      eventStore
	sender      sender
	idempotency *idempotency.Manager
	logg        *logger.Logger
	batchSize   int
	maxAttempts int
}

// NewDispatcher wires the outbox drain loop.
func NewDispatcher(events eventStore, sndr sender, manager *idempotency.Manager, logg *logger.Logger, cfg config.OutboxConfig) (*Dispatcher, error) {
	if events == nil {
		return nil, fmt.Errorf("outbox repository is required")
	}
	if sndr == nil {
		return nil, fmt.Errorf("notification sender is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 10
	}
	return &Dispatcher{
		events:      events,
		sender:      sndr,
		idempotency: manager,
		logg:        logg,
		batchSize:   batch,
		maxAttempts: attempts,
	}, nil
}

// Run drains the outbox on an interval until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				d.logg.Error(ctx, "outbox drain failed", err)
			}
		}
	}
}

// DrainOnce processes one batch of unpublished events and reports how many
// were published.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	rows, err := d.events.FetchUnpublished(d.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, row := range rows {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"outbox_event_id": row.ID.String(),
			"event_type":      string(row.EventType),
		})

		if row.AttemptCount >= d.maxAttempts {
			d.logg.Warn(logCtx, "dropping outbox event after max delivery attempts")
			if err := d.events.MarkPublished(row.ID); err != nil {
				return published, err
			}
			continue
		}

		if err := d.process(logCtx, row); err != nil {
			d.logg.Error(logCtx, "outbox event delivery failed", err)
			if markErr := d.events.MarkFailed(row.ID, err); markErr != nil {
				return published, markErr
			}
			continue
		}
		if err := d.events.MarkPublished(row.ID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

func (d *Dispatcher) process(ctx context.Context, row models.OutboxEvent) error {
	switch row.EventType {
	case enums.EventOrderConfirmed:
		return d.deliverOrderConfirmation(ctx, row)
	default:
		// Nothing downstream wants this event type yet.
		d.logg.Info(ctx, "no delivery handler for event type")
		return nil
	}
}

func (d *Dispatcher) deliverOrderConfirmation(ctx context.Context, row models.OutboxEvent) error {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	already, err := d.idempotency.CheckAndMarkProcessed(ctx, orderConfirmationConsumer, envelope.EventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		d.logg.Info(ctx, "event already delivered")
		return nil
	}

	var payload orderConfirmedPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		_ = d.idempotency.Delete(ctx, orderConfirmationConsumer, envelope.EventID)
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.Email == "" {
		// Guest checkouts without an email have nowhere to deliver to.
		d.logg.Info(ctx, "skipping confirmation without recipient")
		return nil
	}

	confirmation := OrderConfirmation{
		OrderNumber: payload.OrderNumber,
		Email:       payload.Email,
		TotalCents:  payload.TotalCents,
		Currency:    payload.Currency,
	}
	if err := d.sender.SendOrderConfirmation(ctx, confirmation); err != nil {
		_ = d.idempotency.Delete(ctx, orderConfirmationConsumer, envelope.EventID)
		return err
	}
	return nil
}

type orderConfirmedPayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Email       string    `json:"email"`
	TotalCents  int       `json:"totalCents"`
	Currency    string    `json:"currency"`
}
