package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the payment lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
)

// Terminal reports whether no webhook event can move the order further
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// PaymentEvent is an order-affecting event
type PaymentEvent string

const (
	PaymentSucceeded PaymentEvent = "payment_intent.succeeded"
	PaymentFailed    PaymentEvent = "payment_intent.payment_failed"
	PaymentRetried   PaymentEvent = "retry"
)

// ErrInvalidTransition is returned for an edge that does not exist in the state machine
var ErrInvalidTransition = NewConflictError("invalid order status transition")

// Transition applies ev to s. changed is false when the event is absorbed
// without effect, which is how replayed provider events are tolerated.
//
//	pending|processing --succeeded--> completed
//	pending|processing --failed-----> failed
//	failed             --retry------> pending
func Transition(s OrderStatus, ev PaymentEvent) (next OrderStatus, changed bool, err error) {
	switch ev {
	case PaymentSucceeded:
		if s == OrderStatusPending || s == OrderStatusProcessing {
			return OrderStatusCompleted, true, nil
		}
		if s.Terminal() {
			return s, false, nil
		}
	case PaymentFailed:
		if s == OrderStatusPending || s == OrderStatusProcessing {
			return OrderStatusFailed, true, nil
		}
		if s.Terminal() {
			return s, false, nil
		}
	case PaymentRetried:
		if s == OrderStatusFailed {
			return OrderStatusPending, true, nil
		}
		return s, false, fmt.Errorf("cannot retry order in status %q: %w", s, ErrInvalidTransition)
	}
	return s, false, fmt.Errorf("unknown event %q for status %q: %w", ev, s, ErrInvalidTransition)
}

// Address is a postal address
type Address struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode" validate:"required"`
}

// OrderItem is a line of an order with a price snapshot
type OrderItem struct {
	ProductID uuid.UUID       `json:"productId" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"price" db:"unit_price"`
}

// LineTotal returns price times quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a checkout record owned by a user or a guest email
type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OrderNumber     string          `json:"orderNumber" db:"order_number"`
	UserID          *uuid.UUID      `json:"userId,omitempty" db:"user_id"`
	GuestEmail      string          `json:"guestEmail,omitempty" db:"guest_email"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress Address         `json:"shippingAddress" db:"shipping_address"`
	PaymentMethod   string          `json:"paymentMethod" db:"payment_method"`
	Subtotal        decimal.Decimal `json:"subtotal" db:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping" db:"shipping"`
	TotalAmount     decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Currency        string          `json:"currency" db:"currency"`
	Status          OrderStatus     `json:"status" db:"status"`
	PaymentIntentID string          `json:"paymentIntentId,omitempty" db:"payment_intent_id"`
	Attempts        int             `json:"attempts" db:"attempts"`
	RefundedAmount  decimal.Decimal `json:"refundedAmount" db:"refunded_amount"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// OwnedBy reports whether the order belongs to the user
func (o *Order) OwnedBy(userID uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == userID
}

// Refundable returns how much of the order can still be refunded
func (o *Order) Refundable() decimal.Decimal {
	remaining := o.TotalAmount.Sub(o.RefundedAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Refund records an administrative refund against a completed order
type Refund struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	OrderID          uuid.UUID       `json:"orderId" db:"order_id"`
	ProviderRefundID string          `json:"providerRefundId" db:"provider_refund_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Currency         string          `json:"currency" db:"currency"`
	Reason           string          `json:"reason" db:"reason"`
	Status           string          `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
}
