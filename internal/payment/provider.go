package payment

import (
	"context"

	"shopfront/internal/domain"
)

// Provider event types that affect orders
const (
	EventIntentSucceeded = string(domain.PaymentSucceeded)
	EventIntentFailed    = string(domain.PaymentFailed)
)

// DefaultRefundReason is used when an administrator does not give one
const DefaultRefundReason = "requested_by_customer"

var ErrInvalidSignature = domain.NewValidationError("invalid webhook signature", nil)

// Intent is the provider's view of a payment intent
type Intent struct {
	ID           string            `json:"paymentIntentId"`
	ClientSecret string            `json:"clientSecret,omitempty"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Refund is the provider's record of a refund
type Refund struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// Event is a verified webhook notification.
// IntentID is set only for payment intent events.
type Event struct {
	ID       string
	Type     string
	IntentID string
}

// Provider is the payment gateway collaborator
type Provider interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	CreateRefund(ctx context.Context, intentID string, amount int64, reason string) (*Refund, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
