package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopfront/internal/domain"
	"shopfront/internal/middleware"
	"shopfront/internal/payment"
	"shopfront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

var errNotStubbed = errors.New("not stubbed")

type stubUserService struct {
	register       func(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	login          func(ctx context.Context, email, password string) (*service.AuthResult, error)
	logout         func(ctx context.Context, session service.Session, refreshToken string) error
	refresh        func(ctx context.Context, refreshToken string) (string, time.Time, error)
	getUser        func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	updateProfile  func(ctx context.Context, id uuid.UUID, update service.ProfileUpdate) (*domain.User, error)
	changePassword func(ctx context.Context, session service.Session, current, next string) (*service.AuthResult, error)
}

func (s *stubUserService) Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	if s.register == nil {
		return nil, errNotStubbed
	}
	return s.register(ctx, in)
}

func (s *stubUserService) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	if s.login == nil {
		return nil, errNotStubbed
	}
	return s.login(ctx, email, password)
}

func (s *stubUserService) Logout(ctx context.Context, session service.Session, refreshToken string) error {
	if s.logout == nil {
		return errNotStubbed
	}
	return s.logout(ctx, session, refreshToken)
}

func (s *stubUserService) RefreshToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if s.refresh == nil {
		return "", time.Time{}, errNotStubbed
	}
	return s.refresh(ctx, refreshToken)
}

func (s *stubUserService) ValidateToken(tokenString string) (*service.Claims, error) {
	return nil, errNotStubbed
}

func (s *stubUserService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if s.getUser == nil {
		return nil, errNotStubbed
	}
	return s.getUser(ctx, id)
}

func (s *stubUserService) UpdateProfile(ctx context.Context, id uuid.UUID, update service.ProfileUpdate) (*domain.User, error) {
	if s.updateProfile == nil {
		return nil, errNotStubbed
	}
	return s.updateProfile(ctx, id, update)
}

func (s *stubUserService) ChangePassword(ctx context.Context, session service.Session, current, next string) (*service.AuthResult, error) {
	if s.changePassword == nil {
		return nil, errNotStubbed
	}
	return s.changePassword(ctx, session, current, next)
}

type stubProductService struct {
	create     func(ctx context.Context, in service.ProductInput, createdBy uuid.UUID) (*domain.Product, error)
	update     func(ctx context.Context, id uuid.UUID, update service.ProductUpdate) (*domain.Product, error)
	get        func(ctx context.Context, id uuid.UUID) (*domain.ProductDetail, error)
	list       func(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error)
	categories []string
}

func (s *stubProductService) Create(ctx context.Context, in service.ProductInput, createdBy uuid.UUID) (*domain.Product, error) {
	if s.create == nil {
		return nil, errNotStubbed
	}
	return s.create(ctx, in, createdBy)
}

func (s *stubProductService) Update(ctx context.Context, id uuid.UUID, update service.ProductUpdate) (*domain.Product, error) {
	if s.update == nil {
		return nil, errNotStubbed
	}
	return s.update(ctx, id, update)
}

func (s *stubProductService) Delete(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (s *stubProductService) Get(ctx context.Context, id uuid.UUID) (*domain.ProductDetail, error) {
	if s.get == nil {
		return nil, errNotStubbed
	}
	return s.get(ctx, id)
}

func (s *stubProductService) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, int, error) {
	if s.list == nil {
		return nil, 0, errNotStubbed
	}
	return s.list(ctx, filter)
}

func (s *stubProductService) Categories(ctx context.Context) ([]string, error) {
	return s.categories, nil
}

func (s *stubProductService) Featured(ctx context.Context) ([]*domain.Product, error) {
	return []*domain.Product{}, nil
}

type stubReviewService struct {
	create func(ctx context.Context, productID, userID uuid.UUID, in service.ReviewInput) (*service.ReviewResult, error)
	update func(ctx context.Context, reviewID, userID uuid.UUID, in service.ReviewInput) (*service.ReviewResult, error)
	remove func(ctx context.Context, reviewID, userID uuid.UUID) (*service.ReviewResult, error)
	list   func(ctx context.Context, productID uuid.UUID) ([]*domain.Review, error)
}

func (s *stubReviewService) Create(ctx context.Context, productID, userID uuid.UUID, in service.ReviewInput) (*service.ReviewResult, error) {
	if s.create == nil {
		return nil, errNotStubbed
	}
	return s.create(ctx, productID, userID, in)
}

func (s *stubReviewService) Update(ctx context.Context, reviewID, userID uuid.UUID, in service.ReviewInput) (*service.ReviewResult, error) {
	if s.update == nil {
		return nil, errNotStubbed
	}
	return s.update(ctx, reviewID, userID, in)
}

func (s *stubReviewService) Delete(ctx context.Context, reviewID, userID uuid.UUID) (*service.ReviewResult, error) {
	if s.remove == nil {
		return nil, errNotStubbed
	}
	return s.remove(ctx, reviewID, userID)
}

func (s *stubReviewService) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.Review, error) {
	if s.list == nil {
		return nil, errNotStubbed
	}
	return s.list(ctx, productID)
}

func (s *stubReviewService) MarkHelpful(ctx context.Context, reviewID uuid.UUID) (*domain.Review, error) {
	return &domain.Review{ID: reviewID, Helpful: 1}, nil
}

type stubOrderService struct {
	create  func(ctx context.Context, userID uuid.UUID, in service.CheckoutInput) (*service.Checkout, error)
	guest   func(ctx context.Context, email string, in service.CheckoutInput) (*service.Checkout, error)
	retry   func(ctx context.Context, orderID uuid.UUID, caller service.Caller) (*service.Checkout, error)
	get     func(ctx context.Context, orderID uuid.UUID, caller service.Caller) (*domain.Order, error)
	listAll func(ctx context.Context, status domain.OrderStatus, page, limit int) ([]*domain.Order, int, error)
}

func (s *stubOrderService) Create(ctx context.Context, userID uuid.UUID, in service.CheckoutInput) (*service.Checkout, error) {
	if s.create == nil {
		return nil, errNotStubbed
	}
	return s.create(ctx, userID, in)
}

func (s *stubOrderService) CreateGuest(ctx context.Context, email string, in service.CheckoutInput) (*service.Checkout, error) {
	if s.guest == nil {
		return nil, errNotStubbed
	}
	return s.guest(ctx, email, in)
}

func (s *stubOrderService) Retry(ctx context.Context, orderID uuid.UUID, caller service.Caller) (*service.Checkout, error) {
	if s.retry == nil {
		return nil, errNotStubbed
	}
	return s.retry(ctx, orderID, caller)
}

func (s *stubOrderService) Get(ctx context.Context, orderID uuid.UUID, caller service.Caller) (*domain.Order, error) {
	if s.get == nil {
		return nil, errNotStubbed
	}
	return s.get(ctx, orderID, caller)
}

func (s *stubOrderService) ListMine(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Order, int, error) {
	return []*domain.Order{}, 0, nil
}

func (s *stubOrderService) ListAll(ctx context.Context, status domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if s.listAll == nil {
		return nil, 0, errNotStubbed
	}
	return s.listAll(ctx, status, page, limit)
}

type stubPaymentService struct {
	createIntent func(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payment.Intent, error)
	webhook      func(ctx context.Context, payload []byte, signature string) error
	refund       func(ctx context.Context, caller service.Caller, req service.RefundRequest) (*domain.Refund, error)
}

func (s *stubPaymentService) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	if s.createIntent == nil {
		return nil, errNotStubbed
	}
	return s.createIntent(ctx, amount, currency, metadata)
}

func (s *stubPaymentService) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	return &payment.Intent{ID: id, Status: "succeeded"}, nil
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhook == nil {
		return errNotStubbed
	}
	return s.webhook(ctx, payload, signature)
}

func (s *stubPaymentService) Refund(ctx context.Context, caller service.Caller, req service.RefundRequest) (*domain.Refund, error) {
	if s.refund == nil {
		return nil, errNotStubbed
	}
	return s.refund(ctx, caller, req)
}

func (s *stubPaymentService) Config() service.PaymentConfig {
	return service.PaymentConfig{PublishableKey: "pk_test", Currency: "usd", AllowedCountries: service.AllowedCountries}
}

type testServices struct {
	users    *stubUserService
	products *stubProductService
	reviews  *stubReviewService
	orders   *stubOrderService
	payments *stubPaymentService
}

// newTestRouter wires every handler with the real auth and role middleware
func newTestRouter() (http.Handler, *testServices) {
	logger := zap.NewNop()
	svcs := &testServices{
		users:    &stubUserService{},
		products: &stubProductService{},
		reviews:  &stubReviewService{},
		orders:   &stubOrderService{},
		payments: &stubPaymentService{},
	}

	auth := middleware.AuthMiddleware(testSecret, nil, logger)
	optionalAuth := middleware.OptionalAuthMiddleware(testSecret, nil, logger)
	adminOnly := middleware.RequireAdmin(logger)
	staffOnly := middleware.RequireRole([]string{string(domain.RoleAdmin), string(domain.RoleModerator)}, logger)
	passthrough := func(next http.Handler) http.Handler { return next }

	r := chi.NewRouter()
	reviewHandler := NewReviewHandler(svcs.reviews, logger)
	NewUserHandler(svcs.users, logger).RegisterRoutes(r, auth, passthrough)
	NewProductHandler(svcs.products, logger).RegisterRoutes(r, auth, adminOnly, reviewHandler)
	reviewHandler.RegisterRoutes(r, auth)
	NewOrderHandler(svcs.orders, logger).RegisterRoutes(r, auth, staffOnly)
	NewPaymentHandler(svcs.payments, logger).RegisterRoutes(r, optionalAuth, auth, adminOnly)
	return r, svcs
}

func bearer(t *testing.T, userID uuid.UUID, role domain.Role) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"role":    string(role),
		"jti":     "jti-" + userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}
