package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Webhook represents an account's subscription to an event kind.
type Webhook struct {
	WebhookID string
	Account   common.Address
	Event     EventKind
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
