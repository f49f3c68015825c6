package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopfront/internal/config"
	"shopfront/internal/domain"
	"shopfront/internal/events"
	"shopfront/internal/payment"
	"shopfront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AllowedCountries are the shipping countries offered at checkout
var AllowedCountries = []string{"US", "CA", "GB", "AU"}

var (
	ErrAmountTooSmall  = domain.NewValidationError("amount is below the minimum charge", map[string]string{"amount": fmt.Sprintf("must be at least %d", domain.MinChargeMinorUnits)})
	ErrRefundForbidden = domain.NewForbiddenError("only administrators can issue refunds")
	ErrNotRefundable   = domain.NewConflictError("only completed orders can be refunded")
	ErrInvalidRefund   = domain.NewValidationError("refund amount must be positive", map[string]string{"amount": "must be greater than zero"})
)

// PaymentConfig is the public checkout configuration
type PaymentConfig struct {
	PublishableKey   string   `json:"publishableKey"`
	Currency         string   `json:"currency"`
	AllowedCountries []string `json:"allowedCountries"`
}

// RefundRequest is an administrator's refund of a completed order.
// A nil Amount refunds whatever remains refundable.
type RefundRequest struct {
	PaymentIntentID string
	Amount          *decimal.Decimal
	Reason          string
}

// PaymentService fronts the payment provider and applies its webhook events to orders
type PaymentService interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payment.Intent, error)
	GetIntent(ctx context.Context, id string) (*payment.Intent, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Refund(ctx context.Context, caller Caller, req RefundRequest) (*domain.Refund, error)
	Config() PaymentConfig
}

type paymentService struct {
	provider  payment.Provider
	orderRepo repository.OrderRepository
	publisher events.Publisher
	cfg       config.StripeConfig
	logger    *zap.Logger
}

// NewPaymentService creates a new instance of PaymentService
func NewPaymentService(
	provider payment.Provider,
	orderRepo repository.OrderRepository,
	publisher events.Publisher,
	cfg config.StripeConfig,
	logger *zap.Logger,
) PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = domain.DefaultCurrency
	}
	return &paymentService{
		provider:  provider,
		orderRepo: orderRepo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *paymentService) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	if amount < domain.MinChargeMinorUnits {
		return nil, ErrAmountTooSmall
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.cfg.Currency
	}

	intent, err := s.provider.CreateIntent(ctx, amount, currency, metadata)
	if err != nil {
		return nil, providerError("failed to create payment intent", err)
	}

	s.logger.Info("Payment intent created",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", intent.Amount),
		zap.String("currency", intent.Currency),
	)
	return intent, nil
}

func (s *paymentService) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	intent, err := s.provider.RetrieveIntent(ctx, id)
	if err != nil {
		return nil, providerError("failed to retrieve payment intent", err)
	}
	// The client secret is only handed out at creation
	intent.ClientSecret = ""
	return intent, nil
}

// HandleWebhook verifies and applies a provider event. Events that do not move
// an order (unknown or stale intents, terminal orders, other event types) are
// acknowledged without mutation so the provider stops redelivering them.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn("Rejected webhook", zap.Error(err))
		return err
	}

	var paymentEvent domain.PaymentEvent
	switch evt.Type {
	case payment.EventIntentSucceeded:
		paymentEvent = domain.PaymentSucceeded
	case payment.EventIntentFailed:
		paymentEvent = domain.PaymentFailed
	default:
		s.logger.Debug("Ignoring webhook event", zap.String("event_type", evt.Type), zap.String("event_id", evt.ID))
		return nil
	}

	log := s.logger.With(
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
		zap.String("payment_intent_id", evt.IntentID),
	)

	order, err := s.orderRepo.FindByPaymentIntent(ctx, evt.IntentID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Info("No order for payment intent")
			return nil
		}
		return fmt.Errorf("failed to find order: %w", err)
	}

	next, changed, err := domain.Transition(order.Status, paymentEvent)
	if err != nil || !changed {
		log.Info("Webhook event does not change order", zap.String("status", string(order.Status)))
		return nil
	}

	applied, err := s.orderRepo.TransitionStatus(ctx, order.ID, order.Status, next)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if !applied {
		log.Info("Order status changed concurrently, event absorbed")
		return nil
	}

	log.Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(next)),
	)

	eventType := events.OrderCompleted
	if next == domain.OrderStatusFailed {
		eventType = events.OrderFailed
	}
	order.Status = next
	events.PublishAsync(ctx, s.publisher, s.logger, events.Event{
		Type:    eventType,
		Key:     order.ID.String(),
		Payload: order,
	})
	return nil
}

func (s *paymentService) Refund(ctx context.Context, caller Caller, req RefundRequest) (*domain.Refund, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, ErrRefundForbidden
	}

	order, err := s.orderRepo.FindByPaymentIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if order.Status != domain.OrderStatusCompleted {
		return nil, ErrNotRefundable
	}

	remaining := order.Refundable()
	amount := remaining
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidRefund
	}
	if amount.GreaterThan(remaining) {
		return nil, repository.ErrRefundExceedsAmount
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = payment.DefaultRefundReason
	}

	providerRefund, err := s.provider.CreateRefund(ctx, order.PaymentIntentID, domain.ToMinorUnits(amount), reason)
	if err != nil {
		return nil, providerError("failed to create refund", err)
	}

	refund := &domain.Refund{
		ID:               uuid.New(),
		OrderID:          order.ID,
		ProviderRefundID: providerRefund.ID,
		Amount:           amount,
		Currency:         order.Currency,
		Reason:           reason,
		Status:           providerRefund.Status,
		CreatedAt:        time.Now(),
	}
	if err := s.orderRepo.AddRefund(ctx, refund); err != nil {
		s.logger.Error("Refund issued but not recorded",
			zap.String("provider_refund_id", providerRefund.ID),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}

	s.logger.Info("Refund issued",
		zap.String("order_id", order.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("admin_id", caller.UserID.String()),
	)

	events.PublishAsync(ctx, s.publisher, s.logger, events.Event{
		Type:    events.OrderRefunded,
		Key:     order.ID.String(),
		Payload: refund,
	})
	return refund, nil
}

func (s *paymentService) Config() PaymentConfig {
	return PaymentConfig{
		PublishableKey:   s.cfg.PublishableKey,
		Currency:         s.cfg.Currency,
		AllowedCountries: AllowedCountries,
	}
}
