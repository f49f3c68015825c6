package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"shopfront/internal/domain"
	"shopfront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductInput carries the client-writable fields of a product.
// Ratings are deliberately absent.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
	ImageURL    string
	Featured    bool
}

// ProductUpdate holds the product fields to change; nil fields are kept
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Category    *string
	Stock       *int
	ImageURL    *string
	Featured    *bool
}

// ProductService manages the catalogue
type ProductService interface {
	Create(ctx context.Context, in ProductInput, createdBy uuid.UUID) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, update ProductUpdate) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ProductDetail, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error)
	Categories(ctx context.Context) ([]string, error)
	Featured(ctx context.Context) ([]*domain.Product, error)
}

type productService struct {
	productRepo repository.ProductRepository
	reviewRepo  repository.ReviewRepository
	logger      *zap.Logger
}

// NewProductService creates a new instance of ProductService
func NewProductService(productRepo repository.ProductRepository, reviewRepo repository.ReviewRepository, logger *zap.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		reviewRepo:  reviewRepo,
		logger:      logger,
	}
}

func (s *productService) Create(ctx context.Context, in ProductInput, createdBy uuid.UUID) (*domain.Product, error) {
	now := time.Now()
	product := &domain.Product{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Category:    strings.TrimSpace(in.Category),
		Stock:       in.Stock,
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Featured:    in.Featured,
		CreatedBy:   &createdBy,
		Ratings:     domain.ComputeRatings(nil),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if product.ImageURL == "" {
		product.ImageURL = domain.DefaultProductImage
	}

	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.String("product_id", product.ID.String()))
	return product, nil
}

func (s *productService) Update(ctx context.Context, id uuid.UUID, update ProductUpdate) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	if update.Name != nil {
		product.Name = strings.TrimSpace(*update.Name)
	}
	if update.Description != nil {
		product.Description = strings.TrimSpace(*update.Description)
	}
	if update.Price != nil {
		product.Price = *update.Price
	}
	if update.Category != nil {
		product.Category = strings.TrimSpace(*update.Category)
	}
	if update.Stock != nil {
		product.Stock = *update.Stock
	}
	if update.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*update.ImageURL)
		if product.ImageURL == "" {
			product.ImageURL = domain.DefaultProductImage
		}
	}
	if update.Featured != nil {
		product.Featured = *update.Featured
	}
	product.UpdatedAt = time.Now()

	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

func (s *productService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

// Get returns the product together with its reviews
func (s *productService) Get(ctx context.Context, id uuid.UUID) (*domain.ProductDetail, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	reviews, err := s.reviewRepo.ListByProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	return &domain.ProductDetail{Product: product, Reviews: reviews}, nil
}

func (s *productService) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error) {
	filter.Normalize()
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, 0, domain.NewValidationError("invalid price range", map[string]string{
			"minPrice": "must not exceed maxPrice",
		})
	}

	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

func (s *productService) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.productRepo.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *productService) Featured(ctx context.Context) ([]*domain.Product, error) {
	products, err := s.productRepo.Featured(ctx, domain.FeaturedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured products: %w", err)
	}
	return products, nil
}

func validateProduct(p *domain.Product) error {
	fields := map[string]string{}
	if p.Name == "" {
		fields["name"] = "is required"
	} else if utf8.RuneCountInString(p.Name) > 100 {
		fields["name"] = "must be at most 100 characters"
	}
	if p.Description == "" {
		fields["description"] = "is required"
	} else if utf8.RuneCountInString(p.Description) > 1000 {
		fields["description"] = "must be at most 1000 characters"
	}
	if p.Price.IsNegative() {
		fields["price"] = "must not be negative"
	}
	if p.Category == "" {
		fields["category"] = "is required"
	}
	if p.Stock < 0 {
		fields["stock"] = "must not be negative"
	}
	if len(fields) > 0 {
		return domain.NewValidationError("invalid product", fields)
	}
	return nil
}
