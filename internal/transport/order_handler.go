package transport

import (
	"net/http"

	"shopfront/internal/domain"
	"shopfront/internal/middleware"
	"shopfront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderLineRequest is one cart line of a checkout
type OrderLineRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gte=1"`
}

// OrderRequest represents an authenticated checkout. Totals are computed server-side.
type OrderRequest struct {
	Items           []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress domain.Address     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod" validate:"omitempty,oneof=card"`
	Currency        string             `json:"currency" validate:"omitempty,len=3"`
}

// GuestOrderRequest represents a checkout without an account
type GuestOrderRequest struct {
	GuestEmail string `json:"guestEmail" validate:"required,email"`
	OrderRequest
}

func (req OrderRequest) input() service.CheckoutInput {
	lines := make([]service.LineInput, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, service.LineInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return service.CheckoutInput{
		Items:           lines,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Currency:        req.Currency,
	}
}

// OrderHandler handles HTTP requests for orders
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers all order routes. staffOnly guards the listing of every order.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, staffOnly func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		// Public routes
		r.Post("/guest", h.CreateGuest)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Get("/", h.ListMine)
			r.Post("/", h.Create)
			r.With(staffOnly).Get("/all", h.ListAll)
			r.Get("/{id}", h.Get)
			r.Post("/{id}/retry", h.Retry)
		})
	})
}

// Create places an order for the caller
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	var req OrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Order validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	checkout, err := h.orderService.Create(r.Context(), caller.UserID, req.input())
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusCreated, "Order created successfully", checkout)
}

// CreateGuest places an order for a guest email
func (h *OrderHandler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	var req GuestOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Guest order validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	checkout, err := h.orderService.CreateGuest(r.Context(), req.GuestEmail, req.OrderRequest.input())
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusCreated, "Guest order created successfully", checkout)
}

// ListMine returns the caller's orders, newest first
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	page, limit := pageParams(r)
	orders, total, err := h.orderService.ListMine(r.Context(), caller.UserID, page, limit)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithPage(w, orders, middleware.NewPage(len(orders), total, page, limit))
}

// ListAll returns every order, optionally filtered by status (admin, moderator)
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	status := domain.OrderStatus(r.URL.Query().Get("status"))

	orders, total, err := h.orderService.ListAll(r.Context(), status, page, limit)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithPage(w, orders, middleware.NewPage(len(orders), total, page, limit))
}

// Get returns one order visible to the caller
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orderService.Get(r.Context(), id, caller)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithData(w, http.StatusOK, order)
}

// Retry attaches a new payment intent to the caller's failed order
func (h *OrderHandler) Retry(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	checkout, err := h.orderService.Retry(r.Context(), id, caller)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusOK, "Payment retry initiated", map[string]any{
		"orderId":         checkout.Order.ID,
		"paymentIntentId": checkout.Order.PaymentIntentID,
		"clientSecret":    checkout.ClientSecret,
		"attempts":        checkout.Order.Attempts,
	})
}
