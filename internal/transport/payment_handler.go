package transport

import (
	"io"
	"net/http"

	"shopfront/internal/middleware"
	"shopfront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxWebhookBytes caps provider webhook payloads
const maxWebhookBytes = 1 << 16

// SignatureHeader carries the provider's webhook signature
const SignatureHeader = "Stripe-Signature"

// CreateIntentRequest represents a payment intent request; amount is in minor units
type CreateIntentRequest struct {
	Amount   int64             `json:"amount" validate:"required"`
	Currency string            `json:"currency" validate:"omitempty,len=3"`
	Metadata map[string]string `json:"metadata"`
}

// RefundRequest represents an administrator's refund; a missing amount refunds the remainder
type RefundRequest struct {
	PaymentIntentID string           `json:"paymentIntentId" validate:"required"`
	Amount          *decimal.Decimal `json:"amount"`
	Reason          string           `json:"reason" validate:"omitempty,oneof=duplicate fraudulent requested_by_customer"`
}

// PaymentHandler handles HTTP requests for payments
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// RegisterRoutes registers all payment routes
func (h *PaymentHandler) RegisterRoutes(r chi.Router, optionalAuth, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api/payments", func(r chi.Router) {
		r.With(optionalAuth).Post("/create-payment-intent", h.CreateIntent)
		r.Post("/webhook", h.Webhook)
		r.Get("/config", h.Config)
		r.Get("/success/{id}", h.GetIntent)

		r.With(authMiddleware, adminOnly).Post("/refund", h.Refund)
	})
}

// CreateIntent creates a payment intent for an amount in minor units
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req CreateIntentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	metadata := map[string]string{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if caller, ok := callerFrom(r); ok {
		metadata["userId"] = caller.UserID.String()
	}

	intent, err := h.paymentService.CreateIntent(r.Context(), req.Amount, req.Currency, metadata)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithData(w, http.StatusOK, intent)
}

// Webhook receives provider events. The raw body is needed for signature verification.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "unable to read webhook body")
		return
	}

	if err := h.paymentService.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// Config returns the public checkout configuration
func (h *PaymentHandler) Config(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithData(w, http.StatusOK, h.paymentService.Config())
}

// GetIntent reports the provider status of a payment intent
func (h *PaymentHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := h.paymentService.GetIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithData(w, http.StatusOK, intent)
}

// Refund refunds part or all of a completed order (admin)
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	var req RefundRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	refund, err := h.paymentService.Refund(r.Context(), caller, service.RefundRequest{
		PaymentIntentID: req.PaymentIntentID,
		Amount:          req.Amount,
		Reason:          req.Reason,
	})
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusOK, "Refund processed successfully", refund)
}
