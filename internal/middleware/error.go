package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"shopfront/internal/domain"
	applog "shopfront/internal/logger"

	"go.uber.org/zap"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// SuccessResponse is the envelope of every successful response
type SuccessResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Total      *int        `json:"total,omitempty"`
	Page       *int        `json:"page,omitempty"`
	TotalPages *int        `json:"totalPages,omitempty"`
}

// Page describes one page of a listing
type Page struct {
	Count      int
	Total      int
	Page       int
	TotalPages int
}

// NewPage computes page metadata for a listing
func NewPage(count, total, page, limit int) Page {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page{Count: count, Total: total, Page: page, TotalPages: totalPages}
}

// RespondWithError sends a structured error response
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithErrorDetails(w, statusCode, message, nil)
}

// respondWithErrorDetails sends a structured error response with additional details
func respondWithErrorDetails(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	response := ErrorResponse{
		Success: false,
		Message: message,
		Error: ErrorDetail{
			Code:      http.StatusText(statusCode),
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	RespondWithJSON(w, statusCode, response)
}

// RespondWithValidationErrors sends validation error response
func RespondWithValidationErrors(w http.ResponseWriter, errors []ValidationError) {
	details := make(map[string]interface{})
	details["validation_errors"] = errors

	respondWithErrorDetails(w, http.StatusBadRequest, "validation failed", details)
}

// RespondWithDecodeError answers a request whose body failed to decode or validate
func RespondWithDecodeError(w http.ResponseWriter, err error) {
	if validationErrors := FormatValidationErrors(err); len(validationErrors) > 0 {
		RespondWithValidationErrors(w, validationErrors)
		return
	}
	RespondWithError(w, http.StatusBadRequest, "invalid request body")
}

// RespondWithServiceError maps a classified error to its HTTP status.
// Unclassified errors are logged and reported as a generic 500.
func RespondWithServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var appErr *domain.Error
	if !errors.As(err, &appErr) {
		logger.Error("Unhandled error", zap.Error(err))
		RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := appErr.StatusCode()
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("Request failed", zap.Error(err), zap.String("kind", string(appErr.Kind)))
	default:
		logger.Debug("Request rejected", zap.Error(err), zap.String("kind", string(appErr.Kind)))
	}

	message := appErr.Message
	if message == "" {
		message = http.StatusText(status)
	}

	var details map[string]interface{}
	if len(appErr.Fields) > 0 {
		errs := make([]ValidationError, 0, len(appErr.Fields))
		for field, msg := range appErr.Fields {
			errs = append(errs, ValidationError{Field: field, Message: msg})
		}
		details = map[string]interface{}{"validation_errors": errs}
	}
	if appErr.Kind == domain.KindUpstream {
		details = map[string]interface{}{"retryable": true}
	}

	respondWithErrorDetails(w, status, message, details)
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					applog.FromContext(r.Context(), logger).Error("Panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
					)

					RespondWithError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// RespondWithData wraps data in the success envelope
func RespondWithData(w http.ResponseWriter, statusCode int, data interface{}) {
	RespondWithJSON(w, statusCode, SuccessResponse{Success: true, Data: data})
}

// RespondWithMessage sends a success envelope carrying a message and optional data
func RespondWithMessage(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	RespondWithJSON(w, statusCode, SuccessResponse{Success: true, Message: message, Data: data})
}

// RespondWithPage sends one page of a listing in the success envelope
func RespondWithPage(w http.ResponseWriter, data interface{}, page Page) {
	RespondWithJSON(w, http.StatusOK, SuccessResponse{
		Success:    true,
		Data:       data,
		Count:      &page.Count,
		Total:      &page.Total,
		Page:       &page.Page,
		TotalPages: &page.TotalPages,
	})
}
