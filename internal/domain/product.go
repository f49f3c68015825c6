package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultProductImage is used when a product is created without an image
const DefaultProductImage = "https://via.placeholder.com/300"

// Product represents a product in the catalogue
type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Category    string          `json:"category" db:"category"`
	Stock       int             `json:"stock" db:"stock"`
	ImageURL    string          `json:"imageUrl" db:"image_url"`
	Featured    bool            `json:"featured" db:"featured"`
	CreatedBy   *uuid.UUID      `json:"createdBy,omitempty" db:"created_by"`
	Ratings     Ratings         `json:"ratings"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// Ratings is the aggregate of all reviews of a product.
// It is derived by the rating aggregator and never written by clients.
type Ratings struct {
	Average   float64   `json:"average"`
	Count     int       `json:"count"`
	Breakdown Breakdown `json:"breakdown"`
}

// Breakdown maps a star value 1..5 to the number of reviews with that rating
type Breakdown map[int]int

// NewBreakdown returns a breakdown with every star value present and zero
func NewBreakdown() Breakdown {
	return Breakdown{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
}

// Total returns the sum of all counts
func (b Breakdown) Total() int {
	total := 0
	for _, n := range b {
		total += n
	}
	return total
}

// ComputeRatings derives the aggregate from per-star review counts.
// Stars outside 1..5 are ignored.
func ComputeRatings(counts map[int]int) Ratings {
	breakdown := NewBreakdown()
	count, sum := 0, 0
	for star, n := range counts {
		if star < MinRating || star > MaxRating || n <= 0 {
			continue
		}
		breakdown[star] = n
		count += n
		sum += star * n
	}

	r := Ratings{Count: count, Breakdown: breakdown}
	if count > 0 {
		r.Average = float64(sum) / float64(count)
	}
	return r
}

// ProductFilter describes a catalogue listing query
type ProductFilter struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	InStock  bool
	Featured bool
	Search   string
	Sort     string
	Page     int
	Limit    int
}

// Product listing sort keys
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
)

// Listing defaults
const (
	DefaultPageLimit = 12
	MaxPageLimit     = 100
	FeaturedLimit    = 8

	// MaxPage keeps (page-1)*limit well inside a Postgres OFFSET
	MaxPage = 10000
)

// Normalize applies listing defaults and bounds
func (f *ProductFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	switch f.Sort {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortRating:
	default:
		f.Sort = SortNewest
	}
}
