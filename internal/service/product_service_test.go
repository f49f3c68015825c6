package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"shopfront/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProductService() (ProductService, *mockProductRepository, *mockReviewRepository) {
	products := newMockProductRepository()
	reviews := newMockReviewRepository(products)
	return NewProductService(products, reviews, zap.NewNop()), products, reviews
}

// Feature: shopfront, Property 15: New products start with an empty rating aggregate
func TestProperty_NewProductsStartUnrated(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("created products carry zero ratings and a placeholder image", prop.ForAll(
		func(name string, cents int64, stock int) bool {
			svc, _, _ := newTestProductService()

			product, err := svc.Create(context.Background(), ProductInput{
				Name:        name,
				Description: "A product",
				Price:       decimal.New(cents, -2),
				Category:    "misc",
				Stock:       stock,
			}, uuid.New())
			if err != nil {
				return false
			}

			return product.Ratings.Count == 0 &&
				product.Ratings.Average == 0 &&
				product.Ratings.Breakdown.Total() == 0 &&
				len(product.Ratings.Breakdown) == 5 &&
				product.ImageURL == domain.DefaultProductImage
		},
		gen.RegexMatch(`[A-Za-z ]{1,40}`).SuchThat(func(s string) bool { return len(s) > 0 && s[0] != ' ' }),
		gen.Int64Range(0, 1000000),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProductService_CreateValidation(t *testing.T) {
	svc, _, _ := newTestProductService()

	_, err := svc.Create(context.Background(), ProductInput{
		Name:        "Mug",
		Description: "Ceramic",
		Price:       decimal.NewFromInt(-1),
		Category:    "kitchen",
		Stock:       -3,
	}, uuid.New())

	var appErr *domain.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Fields, "price")
	assert.Contains(t, appErr.Fields, "stock")

	// limits count characters, not bytes
	created, err := svc.Create(context.Background(), ProductInput{
		Name:        strings.Repeat("ü", 100),
		Description: strings.Repeat("日", 1000),
		Price:       decimal.RequireFromString("4.50"),
		Category:    "kitchen",
		Stock:       1,
	}, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 100, utf8.RuneCountInString(created.Name))

	_, err = svc.Create(context.Background(), ProductInput{
		Name:        strings.Repeat("ü", 101),
		Description: "Ceramic",
		Price:       decimal.RequireFromString("4.50"),
		Category:    "kitchen",
	}, uuid.New())
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "name")
}

func TestProductService_UpdateKeepsRatings(t *testing.T) {
	svc, products, _ := newTestProductService()
	ctx := context.Background()

	product := seedProduct(products)
	product.Ratings = domain.ComputeRatings(map[int]int{5: 2})

	price := decimal.RequireFromString("19.50")
	featured := true
	updated, err := svc.Update(ctx, product.ID, ProductUpdate{Price: &price, Featured: &featured})
	require.NoError(t, err)

	assert.True(t, updated.Price.Equal(price))
	assert.True(t, updated.Featured)
	assert.Equal(t, "Desk Lamp", updated.Name)
	assert.Equal(t, 2, updated.Ratings.Count)

	_, err = svc.Update(ctx, uuid.New(), ProductUpdate{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProductService_GetIncludesReviews(t *testing.T) {
	svc, products, reviews := newTestProductService()
	ctx := context.Background()
	product := seedProduct(products)

	_, err := reviews.Create(ctx, &domain.Review{ID: uuid.New(), ProductID: product.ID, UserID: uuid.New(), Rating: 4})
	require.NoError(t, err)

	detail, err := svc.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Reviews, 1)
	assert.Equal(t, 4.0, detail.Ratings.Average)
}

func TestProductService_ListRejectsInvertedPriceRange(t *testing.T) {
	svc, _, _ := newTestProductService()

	lo, hi := decimal.NewFromInt(50), decimal.NewFromInt(10)
	_, _, err := svc.List(context.Background(), domain.ProductFilter{MinPrice: &lo, MaxPrice: &hi})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProductService_DeleteMissing(t *testing.T) {
	svc, _, _ := newTestProductService()

	err := svc.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
