package transport

import (
	"net/http"

	"shopfront/internal/middleware"
	"shopfront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ReviewRequest represents a review payload
type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Title   string `json:"title" validate:"required,max=100"`
	Comment string `json:"comment" validate:"required,max=500"`
}

func (req ReviewRequest) input() service.ReviewInput {
	return service.ReviewInput{Rating: req.Rating, Title: req.Title, Comment: req.Comment}
}

// ReviewHandler handles HTTP requests for reviews
type ReviewHandler struct {
	reviewService service.ReviewService
	logger        *zap.Logger
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviewService service.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviewService: reviewService,
		logger:        logger,
	}
}

// RegisterRoutes registers the routes addressing a review by id.
// Product-scoped review routes are nested by ProductHandler.
func (h *ReviewHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/reviews", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Put("/{id}/helpful", h.MarkHelpful)
	})
}

// ListByProduct returns the reviews of a product
func (h *ReviewHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	reviews, err := h.reviewService.ListByProduct(r.Context(), productID)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	count := len(reviews)
	middleware.RespondWithJSON(w, http.StatusOK, middleware.SuccessResponse{Success: true, Data: reviews, Count: &count})
}

// Create adds the caller's review to a product
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ReviewRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	result, err := h.reviewService.Create(r.Context(), productID, caller.UserID, req.input())
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusCreated, "Review added successfully", result)
}

// Update changes the caller's own review
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	reviewID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ReviewRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	result, err := h.reviewService.Update(r.Context(), reviewID, caller.UserID, req.input())
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusOK, "Review updated successfully", result)
}

// Delete removes the caller's own review
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	reviewID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.reviewService.Delete(r.Context(), reviewID, caller.UserID)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusOK, "Review deleted successfully", result)
}

// MarkHelpful increments the helpful counter of a review
func (h *ReviewHandler) MarkHelpful(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	review, err := h.reviewService.MarkHelpful(r.Context(), reviewID)
	if err != nil {
		middleware.RespondWithServiceError(w, err, h.logger)
		return
	}

	middleware.RespondWithMessage(w, http.StatusOK, "Review marked as helpful", review)
}
