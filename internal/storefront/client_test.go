package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"shopfront/internal/cart"
	"shopfront/internal/domain"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorBody(message string) map[string]any {
	return map[string]any{
		"success": false,
		"message": message,
		"error":   map[string]any{"code": "Bad Request", "message": message},
	}
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithBackoff(func() retry.Backoff { return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond)) }),
	}, opts...)
	return NewClient(srv.URL, opts...)
}

func TestLogin(t *testing.T) {
	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret1" {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid credentials"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"user":         map[string]any{"id": userID, "email": body["email"], "username": "jane"},
				"token":        "access",
				"refreshToken": "refresh",
				"expiresAt":    time.Now().Add(time.Hour),
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv)

	auth, err := client.Login(context.Background(), "jane@example.com", "secret1")
	require.NoError(t, err)
	session := SessionFromAuth(auth)
	assert.Equal(t, userID, session.UserID)
	assert.Equal(t, "access", session.Token)
	assert.Equal(t, "refresh", session.RefreshToken)
	assert.False(t, session.Expired(time.Now()))

	_, err = client.Login(context.Background(), "jane@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestListProductsEncodesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "lighting", q.Get("category"))
		assert.Equal(t, "10", q.Get("minPrice"))
		assert.Equal(t, "true", q.Get("inStock"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Empty(t, q.Get("featured"))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"data":       []map[string]any{{"id": uuid.New(), "name": "Lamp", "price": "24.99", "ratings": map[string]any{"average": 4.5, "count": 2, "breakdown": map[string]int{"4": 1, "5": 1}}}},
			"count":      1,
			"total":      13,
			"page":       2,
			"totalPages": 2,
		})
	}))
	defer srv.Close()

	minPrice := decimal.NewFromInt(10)
	page, err := newTestClient(srv).ListProducts(context.Background(), ProductQuery{
		Category: "lighting",
		MinPrice: &minPrice,
		InStock:  true,
		Page:     2,
	})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "24.99", page.Products[0].Price.StringFixed(2))
	assert.Equal(t, 2, page.Products[0].Ratings.Breakdown[5]+page.Products[0].Ratings.Breakdown[4])
	assert.Equal(t, 13, page.Total)
	assert.Equal(t, 2, page.TotalPages)
}

func TestReadsRetryOnUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, errorBody("database unavailable"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": uuid.New(), "name": "Lamp"}})
	}))
	defer srv.Close()

	detail, err := newTestClient(srv).GetProduct(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "Lamp", detail.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, errorBody("payment provider unavailable"))
	}))
	defer srv.Close()

	lines := []cart.Line{{ProductID: uuid.New(), Quantity: 1}}
	_, err := newTestClient(srv, WithToken("t")).Checkout(context.Background(), lines, domain.Address{})
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheckoutSendsCartLines(t *testing.T) {
	lamp := uuid.New()
	mug := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body orderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/api/orders":
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
			assert.Empty(t, body.GuestEmail)
		case "/api/orders/guest":
			assert.Empty(t, r.Header.Get("Authorization"))
			assert.Equal(t, "guest@example.com", body.GuestEmail)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			return
		}

		if !assert.Len(t, body.Items, 2) {
			return
		}
		assert.Equal(t, lamp, body.Items[0].ProductID)
		assert.Equal(t, 2, body.Items[0].Quantity)
		assert.Equal(t, "Springfield", body.ShippingAddress.City)

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"data": map[string]any{
				"order":        map[string]any{"id": uuid.New(), "orderNumber": "ORD-1-ABCD", "status": "pending", "totalAmount": "64.47"},
				"clientSecret": "pi_1_secret",
			},
		})
	}))
	defer srv.Close()

	lines := []cart.Line{{ProductID: lamp, Quantity: 2}, {ProductID: mug, Quantity: 1}}
	address := domain.Address{Street: "1 Main St", City: "Springfield", PostalCode: "12345"}

	result, err := newTestClient(srv, WithToken("access")).Checkout(context.Background(), lines, address)
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", result.ClientSecret)
	assert.Equal(t, "ORD-1-ABCD", result.Order.OrderNumber)
	assert.Equal(t, "64.47", result.Order.TotalAmount.StringFixed(2))

	_, err = newTestClient(srv).GuestCheckout(context.Background(), "guest@example.com", lines, address)
	require.NoError(t, err)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	client := NewClient("http://127.0.0.1:0")
	_, err := client.Checkout(context.Background(), nil, domain.Address{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(filepath.Join(t.TempDir(), "session.json"))

	session, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, session)

	saved := &Session{UserID: uuid.New(), Email: "jane@example.com", Token: "access", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.UserID, loaded.UserID)
	assert.True(t, loaded.Expired(time.Now()))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
