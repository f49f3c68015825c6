package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shopfront/internal/domain"
	"shopfront/internal/events"
	"shopfront/internal/payment"
	"shopfront/internal/repository"

	"github.com/google/uuid"
)

type mockProductRepository struct {
	products map[uuid.UUID]*domain.Product
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[uuid.UUID]*domain.Product)}
}

func (m *mockProductRepository) add(p *domain.Product) *domain.Product {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Ratings.Breakdown == nil {
		p.Ratings = domain.ComputeRatings(nil)
	}
	m.products[p.ID] = p
	return p
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	if _, ok := m.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *mockProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error) {
	var out []*domain.Product
	for _, p := range m.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockProductRepository) Categories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range m.products {
		if p.Category != "" && !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockProductRepository) Featured(ctx context.Context, limit int) ([]*domain.Product, error) {
	var out []*domain.Product
	for _, p := range m.products {
		if p.Featured && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

// mockReviewRepository keeps the product aggregate in step with its reviews
// the way the transactional repository does
type mockReviewRepository struct {
	reviews  map[uuid.UUID]*domain.Review
	products *mockProductRepository
	failNext error
}

func newMockReviewRepository(products *mockProductRepository) *mockReviewRepository {
	return &mockReviewRepository{reviews: make(map[uuid.UUID]*domain.Review), products: products}
}

func (m *mockReviewRepository) recompute(productID uuid.UUID) domain.Ratings {
	counts := map[int]int{}
	for _, r := range m.reviews {
		if r.ProductID == productID {
			counts[r.Rating]++
		}
	}
	ratings := domain.ComputeRatings(counts)
	m.products.products[productID].Ratings = ratings
	return ratings
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) (domain.Ratings, error) {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return domain.Ratings{}, err
	}
	if _, ok := m.products.products[review.ProductID]; !ok {
		return domain.Ratings{}, repository.ErrProductNotFound
	}
	for _, r := range m.reviews {
		if r.ProductID == review.ProductID && r.UserID == review.UserID {
			return domain.Ratings{}, repository.ErrReviewAlreadyExists
		}
	}
	copied := *review
	m.reviews[review.ID] = &copied
	return m.recompute(review.ProductID), nil
}

func (m *mockReviewRepository) Update(ctx context.Context, review *domain.Review) (domain.Ratings, error) {
	if _, ok := m.reviews[review.ID]; !ok {
		return domain.Ratings{}, repository.ErrReviewNotFound
	}
	copied := *review
	m.reviews[review.ID] = &copied
	return m.recompute(review.ProductID), nil
}

func (m *mockReviewRepository) Delete(ctx context.Context, review *domain.Review) (domain.Ratings, error) {
	if _, ok := m.reviews[review.ID]; !ok {
		return domain.Ratings{}, repository.ErrReviewNotFound
	}
	delete(m.reviews, review.ID)
	return m.recompute(review.ProductID), nil
}

func (m *mockReviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	r, ok := m.reviews[id]
	if !ok {
		return nil, repository.ErrReviewNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *mockReviewRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Review, error) {
	out := []*domain.Review{}
	for _, r := range m.reviews {
		if r.ProductID == productID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockReviewRepository) IncrementHelpful(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	r, ok := m.reviews[id]
	if !ok {
		return nil, repository.ErrReviewNotFound
	}
	r.Helpful++
	copied := *r
	return &copied, nil
}

type mockOrderRepository struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*domain.Order
	refunds []*domain.Refund
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *mockOrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentIntentID == intentID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.OwnedBy(userID) {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepository) ListAll(ctx context.Context, status domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *mockOrderRepository) Retry(ctx context.Context, id uuid.UUID, intentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != domain.OrderStatusFailed {
		return false, nil
	}
	o.Status = domain.OrderStatusPending
	o.PaymentIntentID = intentID
	o.Attempts++
	return true, nil
}

func (m *mockOrderRepository) AddRefund(ctx context.Context, refund *domain.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[refund.OrderID]
	if !ok || o.Status != domain.OrderStatusCompleted || o.RefundedAmount.Add(refund.Amount).GreaterThan(o.TotalAmount) {
		return repository.ErrRefundExceedsAmount
	}
	o.RefundedAmount = o.RefundedAmount.Add(refund.Amount)
	m.refunds = append(m.refunds, refund)
	return nil
}

func (m *mockOrderRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// mockProvider is an in-memory payment provider. Webhook payloads are the
// event type and intent id separated by a space; the signature must be "valid".
type mockProvider struct {
	mu        sync.Mutex
	intents   map[string]*payment.Intent
	refunds   []*payment.Refund
	createErr error
	seq       int
}

func newMockProvider() *mockProvider {
	return &mockProvider{intents: make(map[string]*payment.Intent)}
}

func (m *mockProvider) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.seq++
	id := fmt.Sprintf("pi_%d", m.seq)
	intent := &payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       amount,
		Currency:     currency,
		Status:       "requires_payment_method",
		Metadata:     metadata,
	}
	m.intents[id] = intent
	return intent, nil
}

func (m *mockProvider) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[id]
	if !ok {
		return nil, domain.NewValidationError("no such payment_intent", nil)
	}
	copied := *intent
	return &copied, nil
}

func (m *mockProvider) CreateRefund(ctx context.Context, intentID string, amount int64, reason string) (*payment.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	refund := &payment.Refund{ID: fmt.Sprintf("re_%d", m.seq), Amount: amount, Currency: "usd", Status: "succeeded"}
	m.refunds = append(m.refunds, refund)
	return refund, nil
}

func (m *mockProvider) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if signature != "valid" {
		return nil, payment.ErrInvalidSignature
	}
	var evtType, intentID string
	if _, err := fmt.Sscanf(string(payload), "%s %s", &evtType, &intentID); err != nil {
		return nil, payment.ErrInvalidSignature
	}
	return &payment.Event{ID: "evt_" + intentID, Type: evtType, IntentID: intentID}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
