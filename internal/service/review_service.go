package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"shopfront/internal/domain"
	"shopfront/internal/events"
	"shopfront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotReviewOwner = domain.NewForbiddenError("you can only modify your own reviews")

// ReviewInput carries the client-writable fields of a review
type ReviewInput struct {
	Rating  int
	Title   string
	Comment string
}

// ReviewResult is a written review together with the product aggregate it produced
type ReviewResult struct {
	Review  *domain.Review `json:"review,omitempty"`
	Ratings domain.Ratings `json:"ratings"`
}

// ReviewService manages reviews. Every mutation recomputes the product's rating
// aggregate in the same transaction.
type ReviewService interface {
	Create(ctx context.Context, productID, userID uuid.UUID, in ReviewInput) (*ReviewResult, error)
	Update(ctx context.Context, reviewID, userID uuid.UUID, in ReviewInput) (*ReviewResult, error)
	Delete(ctx context.Context, reviewID, userID uuid.UUID) (*ReviewResult, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Review, error)
	MarkHelpful(ctx context.Context, reviewID uuid.UUID) (*domain.Review, error)
}

type reviewService struct {
	reviewRepo  repository.ReviewRepository
	productRepo repository.ProductRepository
	publisher   events.Publisher
	logger      *zap.Logger
}

// NewReviewService creates a new instance of ReviewService
func NewReviewService(
	reviewRepo repository.ReviewRepository,
	productRepo repository.ProductRepository,
	publisher events.Publisher,
	logger *zap.Logger,
) ReviewService {
	return &reviewService{
		reviewRepo:  reviewRepo,
		productRepo: productRepo,
		publisher:   publisher,
		logger:      logger,
	}
}

func (s *reviewService) Create(ctx context.Context, productID, userID uuid.UUID, in ReviewInput) (*ReviewResult, error) {
	if err := validateReview(&in); err != nil {
		return nil, err
	}

	now := time.Now()
	review := &domain.Review{
		ID:        uuid.New(),
		ProductID: productID,
		UserID:    userID,
		Rating:    in.Rating,
		Title:     in.Title,
		Comment:   in.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ratings, err := s.reviewRepo.Create(ctx, review)
	if err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	s.ratingsChanged(ctx, productID, ratings)
	return &ReviewResult{Review: review, Ratings: ratings}, nil
}

func (s *reviewService) Update(ctx context.Context, reviewID, userID uuid.UUID, in ReviewInput) (*ReviewResult, error) {
	if err := validateReview(&in); err != nil {
		return nil, err
	}

	review, err := s.ownedReview(ctx, reviewID, userID)
	if err != nil {
		return nil, err
	}

	review.Rating = in.Rating
	review.Title = in.Title
	review.Comment = in.Comment
	review.UpdatedAt = time.Now()

	ratings, err := s.reviewRepo.Update(ctx, review)
	if err != nil {
		return nil, fmt.Errorf("failed to update review: %w", err)
	}

	s.ratingsChanged(ctx, review.ProductID, ratings)
	return &ReviewResult{Review: review, Ratings: ratings}, nil
}

func (s *reviewService) Delete(ctx context.Context, reviewID, userID uuid.UUID) (*ReviewResult, error) {
	review, err := s.ownedReview(ctx, reviewID, userID)
	if err != nil {
		return nil, err
	}

	ratings, err := s.reviewRepo.Delete(ctx, review)
	if err != nil {
		return nil, fmt.Errorf("failed to delete review: %w", err)
	}

	s.ratingsChanged(ctx, review.ProductID, ratings)
	return &ReviewResult{Ratings: ratings}, nil
}

func (s *reviewService) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Review, error) {
	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	reviews, err := s.reviewRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// MarkHelpful increments the helpful counter; the rating aggregate is unaffected
func (s *reviewService) MarkHelpful(ctx context.Context, reviewID uuid.UUID) (*domain.Review, error) {
	review, err := s.reviewRepo.IncrementHelpful(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark review helpful: %w", err)
	}
	return review, nil
}

func (s *reviewService) ownedReview(ctx context.Context, reviewID, userID uuid.UUID) (*domain.Review, error) {
	review, err := s.reviewRepo.FindByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	if review.UserID != userID {
		return nil, ErrNotReviewOwner
	}
	return review, nil
}

func (s *reviewService) ratingsChanged(ctx context.Context, productID uuid.UUID, ratings domain.Ratings) {
	s.logger.Debug("Product ratings recomputed",
		zap.String("product_id", productID.String()),
		zap.Float64("average", ratings.Average),
		zap.Int("count", ratings.Count),
	)
	events.PublishAsync(ctx, s.publisher, s.logger, events.Event{
		Type: events.ProductRatingUpdated,
		Key:  productID.String(),
		Payload: map[string]any{
			"productId": productID,
			"ratings":   ratings,
		},
	})
}

func validateReview(in *ReviewInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Comment = strings.TrimSpace(in.Comment)

	fields := map[string]string{}
	if in.Rating < domain.MinRating || in.Rating > domain.MaxRating {
		fields["rating"] = fmt.Sprintf("must be between %d and %d", domain.MinRating, domain.MaxRating)
	}
	if in.Title == "" {
		fields["title"] = "is required"
	} else if utf8.RuneCountInString(in.Title) > 100 {
		fields["title"] = "must be at most 100 characters"
	}
	if in.Comment == "" {
		fields["comment"] = "is required"
	} else if utf8.RuneCountInString(in.Comment) > 500 {
		fields["comment"] = "must be at most 500 characters"
	}
	if len(fields) > 0 {
		return domain.NewValidationError("invalid review", fields)
	}
	return nil
}
