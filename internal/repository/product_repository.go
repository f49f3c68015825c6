package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopfront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = domain.NewNotFoundError("product not found")
)

// ProductRepository defines the interface for catalogue data access.
// Rating columns are written only by the rating aggregator.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error)
	Categories(ctx context.Context) ([]string, error)
	Featured(ctx context.Context, limit int) ([]*domain.Product, error)
}

type productRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB, timeout time.Duration) ProductRepository {
	return &productRepository{db: db, timeout: timeout}
}

const productColumns = `id, name, description, price, category, stock, image_url, featured, created_by,
	rating_average, rating_count, rating_1, rating_2, rating_3, rating_4, rating_5, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{Ratings: domain.Ratings{Breakdown: domain.NewBreakdown()}}
	var r1, r2, r3, r4, r5 int
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Category,
		&p.Stock,
		&p.ImageURL,
		&p.Featured,
		&p.CreatedBy,
		&p.Ratings.Average,
		&p.Ratings.Count,
		&r1, &r2, &r3, &r4, &r5,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Ratings.Breakdown = domain.Breakdown{1: r1, 2: r2, 3: r3, 4: r4, 5: r5}
	return p, nil
}

// Create inserts a new product with an empty rating aggregate
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO products (id, name, description, price, category, stock, image_url, featured, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
		product.Stock,
		product.ImageURL,
		product.Featured,
		product.CreatedBy,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return dbError("create product", err)
	}

	product.Ratings = domain.ComputeRatings(nil)
	return nil
}

// Update writes the client-editable product fields
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, category = $5,
		    stock = $6, image_url = $7, featured = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Category,
		product.Stock,
		product.ImageURL,
		product.Featured,
		product.UpdatedAt,
	)

	if err != nil {
		return dbError("update product", err)
	}

	return expectOne(result, ErrProductNotFound)
}

// Delete removes a product; its reviews cascade
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return dbError("delete product", err)
	}

	return expectOne(result, ErrProductNotFound)
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, dbError("find product by ID", err)
	}

	return product, nil
}

// FindByIDs retrieves the products that exist among ids
func (r *productRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	products := make(map[uuid.UUID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("find products", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, dbError("scan product", err)
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate products", err)
	}

	return products, nil
}

var productOrderBy = map[string]string{
	domain.SortNewest:    "created_at DESC",
	domain.SortPriceAsc:  "price ASC, created_at DESC",
	domain.SortPriceDesc: "price DESC, created_at DESC",
	domain.SortRating:    "rating_average DESC, rating_count DESC",
}

// likeEscaper makes LIKE wildcards in user input match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildProductWhere translates a filter into a WHERE clause and its arguments
func buildProductWhere(filter domain.ProductFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.MinPrice != nil {
		add("price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add("price <= $%d", *filter.MaxPrice)
	}
	if filter.InStock {
		conditions = append(conditions, "stock > 0")
	}
	if filter.Featured {
		conditions = append(conditions, "featured")
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add(`(name ILIKE $%[1]d ESCAPE '\' OR description ILIKE $%[1]d ESCAPE '\')`, "%"+likeEscaper.Replace(s)+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// List retrieves products matching the filter with pagination and sorting
func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error) {
	filter.Normalize()

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	whereClause, args := buildProductWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, dbError("count products", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, productOrderBy[filter.Sort], len(args)+1, len(args)+2)

	args = append(args, filter.Limit, offset)

	products, err := r.queryProducts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// Categories returns the distinct non-empty categories in name order
func (r *productRepository) Categories(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category ASC`)
	if err != nil {
		return nil, dbError("list categories", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, dbError("scan category", err)
		}
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate categories", err)
	}

	return categories, nil
}

// Featured returns the newest featured products
func (r *productRepository) Featured(ctx context.Context, limit int) ([]*domain.Product, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + productColumns + ` FROM products WHERE featured ORDER BY created_at DESC LIMIT $1`
	return r.queryProducts(ctx, query, limit)
}

func (r *productRepository) queryProducts(ctx context.Context, query string, args ...any) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("list products", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, dbError("scan product", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("iterate products", err)
	}

	return products, nil
}

// expectOne maps a zero-row update or delete to notFound
func expectOne(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return dbError("get rows affected", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
