package cart

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"shopfront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidQuantity = domain.NewValidationError("quantity must be at least 1", map[string]string{"quantity": "must be at least 1"})

// Line is one product in the cart with a snapshot of its name, price and stock
type Line struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"imageUrl"`
	Quantity  int             `json:"quantity"`
	Stock     int             `json:"stock"`
}

// Total returns price times quantity
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals are derived from the lines on every read
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

// Store persists cart snapshots
type Store interface {
	Load() ([]Line, error)
	Save(lines []Line) error
}

// Cart is a client-local shopping cart. Every mutation is persisted before it returns.
type Cart struct {
	mu     sync.Mutex
	lines  []Line
	store  Store
	logger *zap.Logger
}

// Open rehydrates a cart from store. A missing snapshot gives an empty cart, and so does
// a corrupt one, which is logged and overwritten by the next mutation.
func Open(store Store, logger *zap.Logger) (*Cart, error) {
	c := &Cart{store: store, logger: logger}

	lines, err := store.Load()
	switch {
	case errors.Is(err, ErrCorruptSnapshot):
		logger.Warn("Ignoring corrupt cart snapshot", zap.Error(err))
	case err != nil:
		return nil, fmt.Errorf("failed to load cart: %w", err)
	default:
		c.lines = sanitize(lines)
	}

	return c, nil
}

// Add puts qty of product in the cart, merging with an existing line for the same product
func (c *Cart) Add(product *domain.Product, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}

	return c.mutate(func(lines []Line) []Line {
		for i := range lines {
			if lines[i].ProductID == product.ID {
				lines[i].Quantity += qty
				return lines
			}
		}

		image := product.ImageURL
		if image == "" {
			image = domain.DefaultProductImage
		}
		return append(lines, Line{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			ImageURL:  image,
			Quantity:  qty,
			Stock:     product.Stock,
		})
	})
}

// Remove drops the line of a product; removing an absent product is a no-op
func (c *Cart) Remove(productID uuid.UUID) error {
	return c.mutate(func(lines []Line) []Line {
		return slices.DeleteFunc(lines, func(l Line) bool { return l.ProductID == productID })
	})
}

// SetQuantity overwrites the quantity of a line, removing it when qty < 1
func (c *Cart) SetQuantity(productID uuid.UUID, qty int) error {
	if qty < 1 {
		return c.Remove(productID)
	}

	return c.mutate(func(lines []Line) []Line {
		for i := range lines {
			if lines[i].ProductID == productID {
				lines[i].Quantity = qty
			}
		}
		return lines
	})
}

// Clear empties the cart
func (c *Cart) Clear() error {
	return c.mutate(func([]Line) []Line { return nil })
}

// Lines returns a copy of the cart lines in insertion order
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

// Totals computes subtotal, shipping, total and item count from the current lines
func (c *Cart) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return computeTotals(c.lines)
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// mutate applies fn to a copy of the lines and keeps the result only once it is saved
func (c *Cart) mutate(fn func([]Line) []Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(slices.Clone(c.lines))
	if err := c.store.Save(next); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	c.lines = next
	return nil
}

func computeTotals(lines []Line) Totals {
	t := Totals{Subtotal: decimal.Zero}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.Total())
		t.ItemCount += l.Quantity
	}
	t.Shipping = domain.ShippingFor(t.Subtotal)
	t.Total = t.Subtotal.Add(t.Shipping)
	return t
}

// sanitize drops lines a hand-edited snapshot may carry with a non-positive quantity
func sanitize(lines []Line) []Line {
	return slices.DeleteFunc(lines, func(l Line) bool { return l.Quantity < 1 })
}
