package transport

import (
	"net/http"
	"strconv"

	"shopfront/internal/domain"
	"shopfront/internal/middleware"
	"shopfront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// callerFrom reads the authenticated identity placed in the context by the auth middleware
func callerFrom(r *http.Request) (service.Caller, bool) {
	userIDStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		return service.Caller{}, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return service.Caller{}, false
	}
	role, _ := middleware.GetUserRole(r.Context())
	return service.Caller{UserID: userID, Role: domain.Role(role)}, true
}

// sessionFrom describes the access token of an authenticated request
func sessionFrom(r *http.Request) (service.Session, bool) {
	caller, ok := callerFrom(r)
	if !ok {
		return service.Session{}, false
	}
	session := service.Session{UserID: caller.UserID}
	session.TokenID, _ = middleware.GetTokenID(r.Context())
	session.ExpiresAt, _ = middleware.GetTokenExpiry(r.Context())
	return session, true
}

// requireCaller answers 401 when the request carries no usable identity
func requireCaller(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (service.Caller, bool) {
	caller, ok := callerFrom(r)
	if !ok {
		logger.Error("User ID not found in context")
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
	}
	return caller, ok
}

// pathID parses a uuid path parameter, answering 400 when it is malformed
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt returns the integer query parameter or def when absent or malformed
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// pageParams reads page and limit with listing defaults and bounds applied
func pageParams(r *http.Request) (page, limit int) {
	page = max(queryInt(r, "page", 1), 1)
	limit = queryInt(r, "limit", domain.DefaultPageLimit)
	if limit < 1 {
		limit = domain.DefaultPageLimit
	}
	return page, min(limit, domain.MaxPageLimit)
}
