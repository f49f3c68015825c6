package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"shopfront/internal/config"
	"shopfront/internal/domain"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider on the Stripe API
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a provider whose HTTP calls are bounded by cfg.Timeout
func NewStripeProvider(cfg config.StripeConfig) *StripeProvider {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return NewStripeProviderWithBackends(cfg.SecretKey, cfg.WebhookSecret, stripe.NewBackends(httpClient))
}

// NewStripeProviderWithBackends creates a provider on explicit API backends
func NewStripeProviderWithBackends(secretKey, webhookSecret string, backends *stripe.Backends) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeProvider{api: api, webhookSecret: webhookSecret}
}

// CreateIntent creates a card payment intent for amount minor units
func (p *StripeProvider) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify("failed to create payment intent", err)
	}

	return toIntent(pi), nil
}

// RetrieveIntent looks up the current status of an intent
func (p *StripeProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, classify("failed to retrieve payment intent", err)
	}

	intent := toIntent(pi)
	intent.ClientSecret = ""
	return intent, nil
}

// CreateRefund refunds amount minor units of a captured intent
func (p *StripeProvider) CreateRefund(ctx context.Context, intentID string, amount int64, reason string) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
		Reason:        stripe.String(reason),
	}
	params.Context = ctx

	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, classify("failed to create refund", err)
	}

	return &Refund{
		ID:       r.ID,
		Amount:   r.Amount,
		Currency: string(r.Currency),
		Status:   string(r.Status),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && event.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("malformed %s payload", out.Type), nil)
		}
		out.IntentID = pi.ID
	}

	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}
}

// classify maps request errors the caller can fix to validation errors and everything
// else to retryable upstream errors
func classify(msg string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeCard:
			return &domain.Error{Kind: domain.KindValidation, Message: stripeErr.Msg, Err: err}
		}
	}
	return domain.NewUpstreamError(msg, err)
}
