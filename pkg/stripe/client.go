// Package stripe owns the process-wide Stripe setup: the package-level API
// key the payment provider calls through, and the webhook signing secret the
// webhook controller verifies deliveries against.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/logger"
)

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
	errNotASecretKey  = errors.New("stripe api key must be a secret key (sk_ or rk_)")
)

// Client carries the validated Stripe credentials.
type Client struct {
	signingSecret string
}

// NewClient validates the configured secrets and installs the API key.
// Publishable keys are rejected outright; they cannot create payment intents.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	mode, err := keyMode(apiKey)
	if err != nil {
		return nil, err
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s mode)", mode))
	}

	return &Client{signingSecret: signingSecret}, nil
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func keyMode(key string) (string, error) {
	switch {
	case strings.HasPrefix(key, "sk_test"), strings.HasPrefix(key, "rk_test"):
		return "test", nil
	case strings.HasPrefix(key, "sk_live"), strings.HasPrefix(key, "rk_live"):
		return "live", nil
	default:
		return "", errNotASecretKey
	}
}
