package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shopfront/internal/domain"

	"github.com/google/uuid"
)

// RatingAggregator rebuilds the rating aggregate of a product from its reviews
type RatingAggregator interface {
	Recompute(ctx context.Context, productID uuid.UUID) (domain.Ratings, error)
	ProductIDs(ctx context.Context) ([]uuid.UUID, error)
}

type ratingAggregator struct {
	db      *sql.DB
	timeout time.Duration
}

// NewRatingAggregator creates a new instance of RatingAggregator
func NewRatingAggregator(db *sql.DB, timeout time.Duration) RatingAggregator {
	return &ratingAggregator{db: db, timeout: timeout}
}

// Recompute locks the product row and rewrites its aggregate in one transaction
func (a *ratingAggregator) Recompute(ctx context.Context, productID uuid.UUID) (domain.Ratings, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	var ratings domain.Ratings
	err := inTx(ctx, a.db, func(tx *sql.Tx) error {
		if err := lockProduct(ctx, tx, productID); err != nil {
			return err
		}
		var err error
		ratings, err = recomputeRatings(ctx, tx, productID)
		return err
	})
	return ratings, err
}

// ProductIDs lists every product for a full rebuild
func (a *ratingAggregator) ProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	rows, err := a.db.QueryContext(ctx, `SELECT id FROM products ORDER BY created_at`)
	if err != nil {
		return nil, dbError("list product ids", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, dbError("scan product id", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate product ids", err)
	}

	return ids, nil
}

// lockProduct takes the per-product write lock held until the transaction ends
func lockProduct(ctx context.Context, tx *sql.Tx, productID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		return dbError("lock product", err)
	}
	return nil
}

// recomputeRatings aggregates the committed and pending reviews visible to tx
// and writes the result onto the product row
func recomputeRatings(ctx context.Context, tx *sql.Tx, productID uuid.UUID) (domain.Ratings, error) {
	rows, err := tx.QueryContext(ctx, `SELECT rating, COUNT(*) FROM reviews WHERE product_id = $1 GROUP BY rating`, productID)
	if err != nil {
		return domain.Ratings{}, dbError("aggregate ratings", err)
	}
	defer rows.Close()

	counts := make(map[int]int, domain.MaxRating)
	for rows.Next() {
		var star, n int
		if err := rows.Scan(&star, &n); err != nil {
			return domain.Ratings{}, dbError("scan rating count", err)
		}
		counts[star] = n
	}
	if err := rows.Err(); err != nil {
		return domain.Ratings{}, dbError("iterate rating counts", err)
	}

	ratings := domain.ComputeRatings(counts)
	b := ratings.Breakdown

	query := `
		UPDATE products
		SET rating_average = $2, rating_count = $3,
		    rating_1 = $4, rating_2 = $5, rating_3 = $6, rating_4 = $7, rating_5 = $8
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, productID, ratings.Average, ratings.Count, b[1], b[2], b[3], b[4], b[5]); err != nil {
		return domain.Ratings{}, dbError("update product ratings", err)
	}

	return ratings, nil
}
