package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgerrors "github.com/shoplight/shoplight-backend/pkg/errors"
	"github.com/shoplight/shoplight-backend/pkg/metrics"
	pkgstripe "github.com/shoplight/shoplight-backend/pkg/stripe"
)

// stripeAPI is the subset of Stripe calls the provider needs, split out so
// the mapping logic is testable without the network.
type stripeAPI interface {
	NewIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeAPIWrapper struct{}

func (stripeAPIWrapper) NewIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (stripeAPIWrapper) GetIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Get(id, params)
}

type stripeProvider struct {
	api     stripeAPI
	metrics *metrics.PipelineMetrics
}

// NewStripeProvider wraps the initialized Stripe client as a Provider.
func NewStripeProvider(client *pkgstripe.Client, pipelineMetrics *metrics.PipelineMetrics) (Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &stripeProvider{api: stripeAPIWrapper{}, metrics: pipelineMetrics}, nil
}

// CreateIntent creates a processor-side intent for a fixed amount. Amounts
// are validated here so a zero or negative total can never reach Stripe.
func (p *stripeProvider) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment amount must be positive").WithDetails(map[string]any{
			"amountCents": amountCents,
		})
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.NewIntent(ctx, params)
	if err != nil {
		p.metrics.IncProviderFailures()
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentUnavailable, err, "stripe create intent failed")
	}
	return fromStripeIntent(pi), nil
}

// RetrieveIntent reads the live intent state.
func (p *stripeProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	pi, err := p.api.GetIntent(ctx, id, nil)
	if err != nil {
		p.metrics.IncProviderFailures()
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentUnavailable, err, "stripe retrieve intent failed")
	}
	return fromStripeIntent(pi), nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Status:       mapIntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
}

// mapIntentStatus collapses Stripe's intent states into the four the
// pipeline tracks. Anything pre-confirmation still needs customer action;
// canceled counts as failed.
func mapIntentStatus(status stripe.PaymentIntentStatus) IntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return IntentStatusProcessing
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture:
		return IntentStatusRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		return IntentStatusFailed
	default:
		return IntentStatusFailed
	}
}
