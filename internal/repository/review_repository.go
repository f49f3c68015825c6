package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shopfront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrReviewNotFound      = domain.NewNotFoundError("review not found")
	ErrReviewAlreadyExists = domain.NewConflictError("you have already reviewed this product")
)

// ReviewRepository defines the interface for review data access.
// Every mutation that can change a rating recomputes the product aggregate
// in the same transaction and returns it.
type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) (domain.Ratings, error)
	Update(ctx context.Context, review *domain.Review) (domain.Ratings, error)
	Delete(ctx context.Context, review *domain.Review) (domain.Ratings, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Review, error)
	IncrementHelpful(ctx context.Context, id uuid.UUID) (*domain.Review, error)
}

type reviewRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewReviewRepository creates a new instance of ReviewRepository
func NewReviewRepository(db *sql.DB, timeout time.Duration) ReviewRepository {
	return &reviewRepository{db: db, timeout: timeout}
}

const reviewSelect = `
	SELECT r.id, r.product_id, r.user_id, COALESCE(u.username, ''), r.rating, r.title, r.comment,
	       r.helpful, r.created_at, r.updated_at
	FROM reviews r
	LEFT JOIN users u ON u.id = r.user_id
`

func scanReview(row rowScanner) (*domain.Review, error) {
	review := &domain.Review{}
	err := row.Scan(
		&review.ID,
		&review.ProductID,
		&review.UserID,
		&review.Username,
		&review.Rating,
		&review.Title,
		&review.Comment,
		&review.Helpful,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	return review, err
}

// mutate runs write under the product lock and recomputes the aggregate before commit
func (r *reviewRepository) mutate(ctx context.Context, productID uuid.UUID, write func(ctx context.Context, tx *sql.Tx) error) (domain.Ratings, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var ratings domain.Ratings
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockProduct(ctx, tx, productID); err != nil {
			return err
		}
		if err := write(ctx, tx); err != nil {
			return err
		}
		var err error
		ratings, err = recomputeRatings(ctx, tx, productID)
		return err
	})
	return ratings, err
}

// Create inserts a review; a second review by the same user for the same product is a conflict
func (r *reviewRepository) Create(ctx context.Context, review *domain.Review) (domain.Ratings, error) {
	return r.mutate(ctx, review.ProductID, func(ctx context.Context, tx *sql.Tx) error {
		query := `
			INSERT INTO reviews (id, product_id, user_id, rating, title, comment, helpful, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := tx.ExecContext(
			ctx,
			query,
			review.ID,
			review.ProductID,
			review.UserID,
			review.Rating,
			review.Title,
			review.Comment,
			review.Helpful,
			review.CreatedAt,
			review.UpdatedAt,
		)
		if err != nil {
			if _, ok := uniqueConstraint(err); ok {
				return ErrReviewAlreadyExists
			}
			return dbError("create review", err)
		}
		return nil
	})
}

// Update rewrites the rating and text of a review
func (r *reviewRepository) Update(ctx context.Context, review *domain.Review) (domain.Ratings, error) {
	return r.mutate(ctx, review.ProductID, func(ctx context.Context, tx *sql.Tx) error {
		query := `
			UPDATE reviews
			SET rating = $2, title = $3, comment = $4, updated_at = $5
			WHERE id = $1
		`
		result, err := tx.ExecContext(ctx, query, review.ID, review.Rating, review.Title, review.Comment, review.UpdatedAt)
		if err != nil {
			return dbError("update review", err)
		}
		return expectOne(result, ErrReviewNotFound)
	})
}

// Delete removes a review
func (r *reviewRepository) Delete(ctx context.Context, review *domain.Review) (domain.Ratings, error) {
	return r.mutate(ctx, review.ProductID, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, review.ID)
		if err != nil {
			return dbError("delete review", err)
		}
		return expectOne(result, ErrReviewNotFound)
	})
}

// FindByID retrieves a review with its author's username
func (r *reviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	review, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, dbError("find review by ID", err)
	}

	return review, nil
}

// ListByProduct returns a product's reviews, newest first
func (r *reviewRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Review, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, reviewSelect+` WHERE r.product_id = $1 ORDER BY r.created_at DESC`, productID)
	if err != nil {
		return nil, dbError("list reviews", err)
	}
	defer rows.Close()

	reviews := []*domain.Review{}
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, dbError("scan review", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate reviews", err)
	}

	return reviews, nil
}

// IncrementHelpful bumps the helpful counter; ratings are unaffected
func (r *reviewRepository) IncrementHelpful(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `UPDATE reviews SET helpful = helpful + 1 WHERE id = $1`, id)
	if err != nil {
		return nil, dbError("increment helpful", err)
	}
	if err := expectOne(result, ErrReviewNotFound); err != nil {
		return nil, err
	}

	review, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, dbError("find review by ID", err)
	}
	return review, nil
}
