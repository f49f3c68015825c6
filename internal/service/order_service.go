package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopfront/internal/domain"
	"shopfront/internal/events"
	"shopfront/internal/payment"
	"shopfront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultPaymentMethod is recorded when checkout does not name one
const DefaultPaymentMethod = "card"

var (
	ErrNotOrderOwner = domain.NewForbiddenError("you do not have access to this order")
	ErrEmptyOrder    = domain.NewValidationError("order has no items", map[string]string{"items": "at least one item is required"})
)

// Caller is the authenticated identity an operation runs on behalf of
type Caller struct {
	UserID uuid.UUID
	Role   domain.Role
}

// IsStaff reports whether the caller may see every order
func (c Caller) IsStaff() bool {
	return c.Role == domain.RoleAdmin || c.Role == domain.RoleModerator
}

// LineInput is one requested cart line
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CheckoutInput is the client's order request. Prices and totals are never
// taken from the client.
type CheckoutInput struct {
	Items           []LineInput
	ShippingAddress domain.Address
	PaymentMethod   string
	Currency        string
}

// Checkout is a stored order plus the client secret needed to confirm its payment
type Checkout struct {
	Order        *domain.Order `json:"order"`
	ClientSecret string        `json:"clientSecret"`
}

// OrderService turns carts into orders with a payment intent attached
type OrderService interface {
	Create(ctx context.Context, userID uuid.UUID, in CheckoutInput) (*Checkout, error)
	CreateGuest(ctx context.Context, guestEmail string, in CheckoutInput) (*Checkout, error)
	Retry(ctx context.Context, orderID uuid.UUID, caller Caller) (*Checkout, error)
	Get(ctx context.Context, orderID uuid.UUID, caller Caller) (*domain.Order, error)
	ListMine(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Order, int, error)
	ListAll(ctx context.Context, status domain.OrderStatus, page, limit int) ([]*domain.Order, int, error)
}

type orderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	provider    payment.Provider
	publisher   events.Publisher
	currency    string
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	provider payment.Provider,
	publisher events.Publisher,
	currency string,
	logger *zap.Logger,
) OrderService {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &orderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		provider:    provider,
		publisher:   publisher,
		currency:    currency,
		logger:      logger,
		now:         time.Now,
	}
}

// Create places an order for an authenticated user; it starts pending
func (s *orderService) Create(ctx context.Context, userID uuid.UUID, in CheckoutInput) (*Checkout, error) {
	order, err := s.buildOrder(ctx, in)
	if err != nil {
		return nil, err
	}
	order.UserID = &userID
	order.Status = domain.OrderStatusPending

	return s.place(ctx, order, map[string]string{"userId": userID.String()})
}

// CreateGuest places an order for a guest email; it starts processing
func (s *orderService) CreateGuest(ctx context.Context, guestEmail string, in CheckoutInput) (*Checkout, error) {
	guestEmail = normalizeEmail(guestEmail)
	if guestEmail == "" {
		return nil, domain.NewValidationError("guest email is required", map[string]string{"guestEmail": "is required"})
	}

	order, err := s.buildOrder(ctx, in)
	if err != nil {
		return nil, err
	}
	order.GuestEmail = guestEmail
	order.Status = domain.OrderStatusProcessing

	return s.place(ctx, order, map[string]string{"guestEmail": guestEmail})
}

// Retry attaches a fresh payment intent to a failed order and moves it back to pending
func (s *orderService) Retry(ctx context.Context, orderID uuid.UUID, caller Caller) (*Checkout, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if !order.OwnedBy(caller.UserID) {
		return nil, ErrNotOrderOwner
	}

	if _, _, err := domain.Transition(order.Status, domain.PaymentRetried); err != nil {
		return nil, err
	}

	intent, err := s.createIntent(ctx, order, map[string]string{"userId": caller.UserID.String()})
	if err != nil {
		return nil, err
	}

	changed, err := s.orderRepo.Retry(ctx, order.ID, intent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to retry order: %w", err)
	}
	if !changed {
		// Another retry or webhook won the race
		return nil, domain.ErrInvalidTransition
	}

	order, err = s.orderRepo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	s.logger.Info("Order payment retried",
		zap.String("order_id", order.ID.String()),
		zap.Int("attempts", order.Attempts),
	)
	return &Checkout{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// Get returns an order visible to the caller
func (s *orderService) Get(ctx context.Context, orderID uuid.UUID, caller Caller) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if !order.OwnedBy(caller.UserID) && !caller.IsStaff() {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}

func (s *orderService) ListMine(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Order, int, error) {
	page, limit = normalizePage(page, limit)
	orders, total, err := s.orderRepo.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (s *orderService) ListAll(ctx context.Context, status domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	switch status {
	case "", domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusCompleted, domain.OrderStatusFailed:
	default:
		return nil, 0, domain.NewValidationError("invalid status filter", map[string]string{
			"status": "must be one of pending, processing, completed, failed",
		})
	}

	page, limit = normalizePage(page, limit)
	orders, total, err := s.orderRepo.ListAll(ctx, status, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// buildOrder resolves the requested lines against the catalogue and prices them
func (s *orderService) buildOrder(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	lines, err := mergeLines(in.Items)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	subtotal := decimal.Zero
	items := make([]domain.OrderItem, 0, len(lines))
	fields := map[string]string{}
	for i, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, domain.NewNotFoundError(fmt.Sprintf("product %s not found", line.ProductID))
		}
		if product.Stock < line.Quantity {
			fields[fmt.Sprintf("items[%d].quantity", i)] = fmt.Sprintf("only %d of %s in stock", product.Stock, product.Name)
			continue
		}
		item := domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		}
		subtotal = subtotal.Add(item.LineTotal())
		items = append(items, item)
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError("insufficient stock", fields)
	}

	address := in.ShippingAddress
	address.Country = strings.TrimSpace(address.Country)
	if address.Country == "" {
		address.Country = "US"
	}
	if address.Street == "" || address.City == "" || address.PostalCode == "" {
		return nil, domain.NewValidationError("incomplete shipping address", map[string]string{
			"shippingAddress": "street, city and postalCode are required",
		})
	}

	paymentMethod := in.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}
	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = s.currency
	}

	shipping := domain.ShippingFor(subtotal)
	now := s.now()
	return &domain.Order{
		ID:              uuid.New(),
		OrderNumber:     newOrderNumber(now),
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
		Subtotal:        subtotal,
		Shipping:        shipping,
		TotalAmount:     subtotal.Add(shipping),
		Currency:        currency,
		Attempts:        1,
		RefundedAmount:  decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// place creates the payment intent first so that a provider failure leaves no order behind
func (s *orderService) place(ctx context.Context, order *domain.Order, owner map[string]string) (*Checkout, error) {
	intent, err := s.createIntent(ctx, order, owner)
	if err != nil {
		return nil, err
	}
	order.PaymentIntentID = intent.ID

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("Order insert failed after payment intent creation",
			zap.String("payment_intent_id", intent.ID),
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)

	events.PublishAsync(ctx, s.publisher, s.logger, events.Event{
		Type:    events.OrderCreated,
		Key:     order.ID.String(),
		Payload: order,
	})

	return &Checkout{Order: order, ClientSecret: intent.ClientSecret}, nil
}

func (s *orderService) createIntent(ctx context.Context, order *domain.Order, owner map[string]string) (*payment.Intent, error) {
	amount := domain.ToMinorUnits(order.TotalAmount)
	if amount < domain.MinChargeMinorUnits {
		return nil, domain.NewValidationError("order total is below the minimum charge", map[string]string{
			"amount": fmt.Sprintf("must be at least %d minor units", domain.MinChargeMinorUnits),
		})
	}

	metadata := map[string]string{
		"orderId":     order.ID.String(),
		"orderNumber": order.OrderNumber,
	}
	for k, v := range owner {
		metadata[k] = v
	}

	intent, err := s.provider.CreateIntent(ctx, amount, order.Currency, metadata)
	if err != nil {
		return nil, providerError("failed to create payment intent", err)
	}
	return intent, nil
}

// mergeLines validates quantities and folds repeated products into one line
func mergeLines(in []LineInput) ([]LineInput, error) {
	if len(in) == 0 {
		return nil, ErrEmptyOrder
	}

	index := make(map[uuid.UUID]int, len(in))
	lines := make([]LineInput, 0, len(in))
	for i, line := range in {
		if line.Quantity < 1 {
			return nil, domain.NewValidationError("invalid quantity", map[string]string{
				fmt.Sprintf("items[%d].quantity", i): "must be at least 1",
			})
		}
		if j, ok := index[line.ProductID]; ok {
			lines[j].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(lines)
		lines = append(lines, line)
	}
	return lines, nil
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = domain.DefaultPageLimit
	}
	if limit > domain.MaxPageLimit {
		limit = domain.MaxPageLimit
	}
	return page, limit
}

// providerError keeps classified provider errors and marks anything else retryable
func providerError(msg string, err error) error {
	var appErr *domain.Error
	if errors.As(err, &appErr) {
		return err
	}
	return domain.NewUpstreamError(msg, err)
}
