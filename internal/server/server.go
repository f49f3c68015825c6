package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"shopfront/internal/cache"
	"shopfront/internal/config"
	"shopfront/internal/database"
	"shopfront/internal/domain"
	"shopfront/internal/events"
	custommiddleware "shopfront/internal/middleware"
	"shopfront/internal/payment"
	"shopfront/internal/repository"
	"shopfront/internal/service"
	"shopfront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const requestTimeout = 60 * time.Second

// Dependencies are the external resources the API is built on. The server owns them once constructed.
type Dependencies struct {
	DB        database.Service
	Redis     *redis.Client
	Payments  payment.Provider
	Publisher events.Publisher
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	deps   Dependencies
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	router := NewRouter(cfg, logger, deps)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	return server
}

// NewRouter wires repositories, services and handlers into the HTTP routing tree
func NewRouter(cfg *config.Config, logger *zap.Logger, deps Dependencies) http.Handler {
	router := chi.NewRouter()

	// Add basic middleware
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(middleware.Timeout(requestTimeout))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, !cfg.IsProduction()))

	router.Get("/health", healthHandler(deps))

	db := deps.DB.DB()
	timeout := cfg.Database.QueryTimeout

	// Initialize repositories
	userRepo := repository.NewUserRepository(db, timeout)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db, timeout)
	productRepo := repository.NewProductRepository(db, timeout)
	reviewRepo := repository.NewReviewRepository(db, timeout)
	orderRepo := repository.NewOrderRepository(db, timeout)

	denylist := cache.NewTokenDenylist(deps.Redis)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, denylist, cfg.JWT, logger)
	productService := service.NewProductService(productRepo, reviewRepo, logger)
	reviewService := service.NewReviewService(reviewRepo, productRepo, deps.Publisher, logger)
	orderService := service.NewOrderService(orderRepo, productRepo, deps.Payments, deps.Publisher, cfg.Stripe.Currency, logger)
	paymentService := service.NewPaymentService(deps.Payments, orderRepo, deps.Publisher, cfg.Stripe, logger)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger)
	productHandler := transport.NewProductHandler(productService, logger)
	reviewHandler := transport.NewReviewHandler(reviewService, logger)
	orderHandler := transport.NewOrderHandler(orderService, logger)
	paymentHandler := transport.NewPaymentHandler(paymentService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, denylist, logger)
	optionalAuth := custommiddleware.OptionalAuthMiddleware(cfg.JWT.Secret, denylist, logger)
	adminOnly := custommiddleware.RequireAdmin(logger)
	staffOnly := custommiddleware.RequireRole([]string{string(domain.RoleAdmin), string(domain.RoleModerator)}, logger)
	authRateLimit := custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.Requests,
		Window:            cfg.RateLimit.Window,
		KeyPrefix:         "ratelimit:auth",
	}, logger)

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware, authRateLimit)
	productHandler.RegisterRoutes(router, authMiddleware, adminOnly, reviewHandler)
	reviewHandler.RegisterRoutes(router, authMiddleware)
	orderHandler.RegisterRoutes(router, authMiddleware, staffOnly)
	paymentHandler.RegisterRoutes(router, optionalAuth, authMiddleware, adminOnly)

	return router
}

func healthHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok"}

		db := deps.DB.Health()
		body["database"] = db
		if db["status"] != "up" {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			body["redis"] = "down"
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		} else {
			body["redis"] = "up"
		}

		custommiddleware.RespondWithJSON(w, status, body)
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Close(); err != nil {
			s.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.deps.DB != nil {
		if err := s.deps.DB.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
