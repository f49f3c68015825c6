package domain

import (
	"time"

	"github.com/google/uuid"
)

// Rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

// Review is a single user's rating of a product.
// At most one review exists per (product, user) pair.
type Review struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ProductID uuid.UUID `json:"productId" db:"product_id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Username  string    `json:"username,omitempty" db:"username"`
	Rating    int       `json:"rating" db:"rating"`
	Title     string    `json:"title" db:"title"`
	Comment   string    `json:"comment" db:"comment"`
	Helpful   int       `json:"helpful" db:"helpful"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ProductDetail is a product joined with its reviews
type ProductDetail struct {
	*Product
	Reviews []*Review `json:"reviews"`
}
