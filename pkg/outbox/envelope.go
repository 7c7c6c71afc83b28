package outbox

import (
	"encoding/json"
	"time"

	"github.com/shoplight/shoplight-backend/pkg/enums"
)

// OwnerRef identifies the cart owner on whose behalf the event was produced.
type OwnerRef struct {
	Kind enums.OwnerKind `json:"kind"`
	ID   string          `json:"id"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Owner      *OwnerRef       `json:"owner,omitempty"`
	Data       json.RawMessage `json:"data"`
}
