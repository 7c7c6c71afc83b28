package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/logger"
	"github.com/shoplight/shoplight-backend/pkg/sendgrid"
)

// mailer is the slice of the SendGrid client this package uses.
type mailer interface {
	Send(ctx context.Context, mail sendgrid.Mail) error
}

// OrderConfirmation carries everything the confirmation email needs. The
// values come from the order row, never from live catalog data.
type OrderConfirmation struct {
	OrderNumber string
	Email       string
	TotalCents  int
	Currency    string
}

// Service sends customer-facing order notifications.
type Service interface {
	SendOrderConfirmation(ctx context.Context, confirmation OrderConfirmation) error
}

type service struct {
	mail mailer
	logg *logger.Logger
}

// NewService wires the notification sender.
func NewService(mail mailer, logg *logger.Logger) (Service, error) {
	if mail == nil {
		return nil, fmt.Errorf("mail client is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{mail: mail, logg: logg}, nil
}

func (s *service) SendOrderConfirmation(ctx context.Context, confirmation OrderConfirmation) error {
	if strings.TrimSpace(confirmation.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}
	if strings.TrimSpace(confirmation.OrderNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}

	amount := formatAmount(confirmation.TotalCents, confirmation.Currency)
	mail := sendgrid.Mail{
		To:      confirmation.Email,
		Subject: fmt.Sprintf("Order %s confirmed", confirmation.OrderNumber),
		PlainText: fmt.Sprintf(
			"Thanks for shopping with us!\n\nYour order %s is confirmed. We charged %s and will email you again when it ships.",
			confirmation.OrderNumber, amount,
		),
	}
	if err := s.mail.Send(ctx, mail); err != nil {
		return err
	}

	ctx = s.logg.WithField(ctx, "order_number", confirmation.OrderNumber)
	s.logg.Info(ctx, "order confirmation sent")
	return nil
}

// formatAmount renders minor units as a currency string, e.g. 3160 -> "USD 31.60".
func formatAmount(cents int, currency string) string {
	value := decimal.New(int64(cents), -2)
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "USD"
	}
	return fmt.Sprintf("%s %s", code, value.StringFixed(2))
}
