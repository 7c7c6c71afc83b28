package payments

import "context"

// IntentStatus is the pipeline's view of the processor's intent state
// machine. The adapter maps whatever the processor reports into these four.
type IntentStatus string

const (
	IntentStatusRequiresAction IntentStatus = "requires_action"
	IntentStatusProcessing     IntentStatus = "processing"
	IntentStatusSucceeded      IntentStatus = "succeeded"
	IntentStatusFailed         IntentStatus = "failed"
)

// Intent is the opaque processor-side payment record the pipeline reads.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"clientSecret"`
	AmountCents  int64             `json:"amountCents"`
	Currency     string            `json:"currency"`
	Status       IntentStatus      `json:"status"`
	Metadata     map[string]string `json:"-"`
}

// Provider is the thin boundary to the external payment processor. It owns
// no business state; it only translates amounts and statuses.
type Provider interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}
