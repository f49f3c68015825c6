package transport

import (
	"net/http"
	"strings"

	"shopfront/internal/domain"
	"shopfront/internal/middleware"
	"shopfront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateProductRequest represents the product creation payload.
// Ratings are derived from reviews and cannot be supplied.
type CreateProductRequest struct {
	Name        string           `json:"name" validate:"required,max=100"`
	Description string           `json:"description" validate:"required,max=1000"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Category    string           `json:"category" validate:"required,max=50"`
	Stock       int              `json:"stock" validate:"gte=0"`
	ImageURL    string           `json:"imageUrl" validate:"omitempty,url"`
	Featured    bool             `json:"featured"`
}

// UpdateProductRequest represents a partial product update
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=1000"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category" validate:"omitempty,max=50"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
	ImageURL    *string          `json:"imageUrl" validate:"omitempty,url"`
	Featured    *bool            `json:"featured"`
}

// ProductHandler handles HTTP requests for the catalogue
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// RegisterRoutes registers the catalogue routes and nests the product review routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler, reviews *ReviewHandler) {
	r.Route("/api/products", func(r chi.Router) {
		// Public routes
		r.Get("/", h.List)
		r.Get("/categories/list", h.Categories)
		r.Get("/featured/list", h.Featured)
		r.Get("/{id}", h.Get)

		r.Route("/{id}/reviews", func(r chi.Router) {
			r.Get("/", reviews.ListByProduct)
			r.With(authMiddleware).Post("/", reviews.Create)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminOnly)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// List handles the filtered, paginated catalogue listing
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseProductFilter(w, r)
	if !ok {
		return
	}

	products, total, err := h.productService.List(r.Context(), filter)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	filter.Normalize()
	middleware.RespondWithPage(w, products, middleware.NewPage(len(products), total, filter.Page, filter.Limit))
}

// Get returns a product with its reviews
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.productService.Get(r.Context(), id)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithData(w, http.StatusOK, detail)
}

func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.productService.Categories(r.Context())
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, categories)
}

func (h *ProductHandler) Featured(w http.ResponseWriter, r *http.Request) {
	products, err := h.productService.Featured(r.Context())
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, products)
}

// Create handles product creation (admin)
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.productService.Create(r.Context(), service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Category:    req.Category,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
		Featured:    req.Featured,
	}, caller.UserID)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusCreated, "Product created successfully", product)
}

// Update handles partial product updates (admin)
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.productService.Update(r.Context(), id, service.ProductUpdate{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
		Featured:    req.Featured,
	})
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusOK, "Product updated successfully", product)
}

// Delete handles product deletion (admin)
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.productService.Delete(r.Context(), id); err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusOK, "Product deleted successfully", nil)
}

func parseProductFilter(w http.ResponseWriter, r *http.Request) (domain.ProductFilter, bool) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Category: strings.TrimSpace(q.Get("category")),
		InStock:  q.Get("inStock") == "true",
		Featured: q.Get("featured") == "true",
		Search:   strings.TrimSpace(q.Get("search")),
		Sort:     q.Get("sort"),
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", domain.DefaultPageLimit),
	}

	for name, dst := range map[string]**decimal.Decimal{"minPrice": &filter.MinPrice, "maxPrice": &filter.MaxPrice} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			middleware.RespondWithValidationErrors(w, []middleware.ValidationError{{Field: name, Message: "Invalid value"}})
			return filter, false
		}
		*dst = &v
	}
	return filter, true
}
