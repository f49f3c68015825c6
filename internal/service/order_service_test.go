package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"shopfront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type orderFixture struct {
	svc       OrderService
	orders    *mockOrderRepository
	products  *mockProductRepository
	provider  *mockProvider
	publisher *recordingPublisher
	lamp      *domain.Product
	mug       *domain.Product
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		orders:    newMockOrderRepository(),
		products:  newMockProductRepository(),
		provider:  newMockProvider(),
		publisher: &recordingPublisher{},
	}
	f.svc = NewOrderService(f.orders, f.products, f.provider, f.publisher, "usd", zap.NewNop())
	f.lamp = f.products.add(&domain.Product{Name: "Desk Lamp", Price: decimal.RequireFromString("24.99"), Stock: 5})
	f.mug = f.products.add(&domain.Product{Name: "Mug", Price: decimal.RequireFromString("8.50"), Stock: 1})
	return f
}

func testAddress() domain.Address {
	return domain.Address{Street: "1 Main St", City: "Springfield", PostalCode: "12345"}
}

var orderNumberPattern = regexp.MustCompile(`^ORD-\d+-[0-9A-F]{4}$`)

func TestOrderService_CreateComputesTotalsServerSide(t *testing.T) {
	f := newOrderFixture()
	userID := uuid.New()

	checkout, err := f.svc.Create(context.Background(), userID, CheckoutInput{
		Items: []LineInput{
			{ProductID: f.lamp.ID, Quantity: 1},
			{ProductID: f.mug.ID, Quantity: 1},
			{ProductID: f.lamp.ID, Quantity: 1},
		},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	order := checkout.Order
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Len(t, order.Items, 2)
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("58.48")), order.Subtotal.String())
	assert.True(t, order.Shipping.Equal(domain.FlatShipping))
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("64.47")), order.TotalAmount.String())
	assert.Equal(t, "US", order.ShippingAddress.Country)
	assert.Equal(t, DefaultPaymentMethod, order.PaymentMethod)
	assert.Regexp(t, orderNumberPattern, order.OrderNumber)
	assert.NotEmpty(t, checkout.ClientSecret)

	intent := f.provider.intents[order.PaymentIntentID]
	require.NotNil(t, intent)
	assert.Equal(t, int64(6447), intent.Amount)
	assert.Equal(t, order.ID.String(), intent.Metadata["orderId"])
	assert.Equal(t, userID.String(), intent.Metadata["userId"])
	assert.Equal(t, 1, f.orders.count())
}

func TestOrderService_GuestOrdersStartProcessing(t *testing.T) {
	f := newOrderFixture()

	checkout, err := f.svc.CreateGuest(context.Background(), "Guest@Example.com", CheckoutInput{
		Items:           []LineInput{{ProductID: f.lamp.ID, Quantity: 2}},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, checkout.Order.Status)
	assert.Equal(t, "guest@example.com", checkout.Order.GuestEmail)
	assert.Nil(t, checkout.Order.UserID)

	_, err = f.svc.CreateGuest(context.Background(), " ", CheckoutInput{
		Items:           []LineInput{{ProductID: f.lamp.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOrderService_RejectsBadCarts(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	tests := []struct {
		name  string
		input CheckoutInput
		kind  *domain.Error
	}{
		{"empty", CheckoutInput{ShippingAddress: testAddress()}, domain.ErrValidation},
		{"zero quantity", CheckoutInput{Items: []LineInput{{ProductID: f.lamp.ID, Quantity: 0}}, ShippingAddress: testAddress()}, domain.ErrValidation},
		{"over stock", CheckoutInput{Items: []LineInput{{ProductID: f.mug.ID, Quantity: 2}}, ShippingAddress: testAddress()}, domain.ErrValidation},
		{"unknown product", CheckoutInput{Items: []LineInput{{ProductID: uuid.New(), Quantity: 1}}, ShippingAddress: testAddress()}, domain.ErrNotFound},
		{"no address", CheckoutInput{Items: []LineInput{{ProductID: f.lamp.ID, Quantity: 1}}}, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, uuid.New(), tt.input)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
	assert.Zero(t, f.orders.count())
	assert.Empty(t, f.provider.intents)
}

func TestOrderService_ProviderFailureWritesNoOrder(t *testing.T) {
	f := newOrderFixture()
	f.provider.createErr = errors.New("dial tcp: i/o timeout")

	_, err := f.svc.Create(context.Background(), uuid.New(), CheckoutInput{
		Items:           []LineInput{{ProductID: f.lamp.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
	})
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Zero(t, f.orders.count())
}

func TestOrderService_RetryOnlyFromFailed(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	userID := uuid.New()
	caller := Caller{UserID: userID, Role: domain.RoleUser}

	checkout, err := f.svc.Create(ctx, userID, CheckoutInput{
		Items:           []LineInput{{ProductID: f.lamp.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)
	orderID := checkout.Order.ID
	firstIntent := checkout.Order.PaymentIntentID

	_, err = f.svc.Retry(ctx, orderID, caller)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.orders.TransitionStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusFailed)
	require.NoError(t, err)

	_, err = f.svc.Retry(ctx, orderID, Caller{UserID: uuid.New(), Role: domain.RoleUser})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	retried, err := f.svc.Retry(ctx, orderID, caller)
	require.NoError(t, err)
	assert.Equal(t, orderID, retried.Order.ID)
	assert.Equal(t, domain.OrderStatusPending, retried.Order.Status)
	assert.Equal(t, 2, retried.Order.Attempts)
	assert.NotEqual(t, firstIntent, retried.Order.PaymentIntentID)
	assert.NotEmpty(t, retried.ClientSecret)
	assert.Equal(t, 1, f.orders.count())
}

func TestOrderService_GetVisibility(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	owner := uuid.New()

	checkout, err := f.svc.Create(ctx, owner, CheckoutInput{
		Items:           []LineInput{{ProductID: f.lamp.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)
	id := checkout.Order.ID

	_, err = f.svc.Get(ctx, id, Caller{UserID: owner, Role: domain.RoleUser})
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, id, Caller{UserID: uuid.New(), Role: domain.RoleAdmin})
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, id, Caller{UserID: uuid.New(), Role: domain.RoleUser})
	assert.ErrorIs(t, err, ErrNotOrderOwner)
	_, err = f.svc.Get(ctx, uuid.New(), Caller{UserID: owner, Role: domain.RoleUser})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	orders, total, err := f.svc.ListMine(ctx, owner, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, orders, 1)

	_, _, err = f.svc.ListAll(ctx, "shipped", 1, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMergeLines(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	lines, err := mergeLines([]LineInput{{a, 1}, {b, 2}, {a, 3}})
	require.NoError(t, err)
	assert.Equal(t, []LineInput{{a, 4}, {b, 2}}, lines)

	_, err = mergeLines(nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)
}
