package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShop is a minimal shop API recording what the CLI sent
type fakeShop struct {
	mu      sync.Mutex
	lamp    uuid.UUID
	orders  []map[string]any
	paths   []string
	logouts []string
}

func (f *fakeShop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)

	reply := func(status int, data any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "data": data})
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/products/"+f.lamp.String():
		reply(http.StatusOK, map[string]any{"id": f.lamp, "name": "Lamp", "price": "24.99", "stock": 10, "reviews": []any{}})
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/login":
		reply(http.StatusOK, map[string]any{
			"user":         map[string]any{"id": uuid.New(), "email": "jane@example.com"},
			"token":        "access",
			"refreshToken": "refresh",
			"expiresAt":    time.Now().Add(time.Hour),
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout":
		f.logouts = append(f.logouts, r.Header.Get("Authorization"))
		reply(http.StatusOK, nil)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/orders/"):
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "authentication required"})
			return
		}
		reply(http.StatusOK, map[string]any{
			"id":          strings.TrimPrefix(r.URL.Path, "/api/orders/"),
			"orderNumber": "ORD-1-ABCD",
			"status":      "completed",
			"items":       []map[string]any{{"productId": f.lamp, "name": "Lamp", "quantity": 1, "price": "24.99"}},
			"totalAmount": "30.98",
			"currency":    "usd",
		})
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/orders"):
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.orders = append(f.orders, body)
		reply(http.StatusCreated, map[string]any{
			"order":        map[string]any{"id": uuid.New(), "orderNumber": "ORD-1-ABCD", "status": "pending", "totalAmount": "55.97", "currency": "usd"},
			"clientSecret": "pi_1_secret_2",
		})
	default:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "not found"})
	}
}

type harness struct {
	t    *testing.T
	api  *fakeShop
	url  string
	home string
}

func newHarness(t *testing.T) *harness {
	api := &fakeShop{lamp: uuid.New()}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return &harness{t: t, api: api, url: srv.URL, home: t.TempDir()}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--api", h.url, "--home", h.home}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCartCommands(t *testing.T) {
	h := newHarness(t)
	lamp := h.api.lamp.String()

	out, err := h.run("cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "cart is empty")

	_, err = h.run("cart", "add", lamp, "--qty", "2")
	require.NoError(t, err)
	out, err = h.run("cart", "add", lamp)
	require.NoError(t, err)
	assert.Contains(t, out, "Lamp")
	assert.Contains(t, out, "74.97")

	out, err = h.run("cart", "set", lamp, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "30.98", "24.99 plus 5.99 shipping")

	_, err = h.run("cart", "add", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid product id")

	_, err = h.run("cart", "set", lamp, "many")
	assert.ErrorContains(t, err, "invalid quantity")

	_, err = h.run("cart", "add", uuid.NewString())
	assert.Error(t, err, "unknown product")

	out, err = h.run("cart", "remove", lamp)
	require.NoError(t, err)
	assert.Contains(t, out, "cart is empty")
}

func TestCheckoutAsGuest(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("cart", "add", h.api.lamp.String(), "--qty", "2")
	require.NoError(t, err)

	_, err = h.run("checkout", "--city", "Springfield")
	assert.ErrorContains(t, err, "not signed in")

	out, err := h.run("checkout", "--guest-email", "guest@example.com",
		"--street", "1 Main St", "--city", "Springfield", "--state", "IL", "--postal-code", "12345")
	require.NoError(t, err)
	assert.Contains(t, out, "ORD-1-ABCD")
	assert.Contains(t, out, "client secret: pi_1_secret_2")

	require.Len(t, h.api.orders, 1)
	order := h.api.orders[0]
	assert.Equal(t, "guest@example.com", order["guestEmail"])
	items := order["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(2), items[0].(map[string]any)["quantity"])
	assert.Equal(t, "Springfield", order["shippingAddress"].(map[string]any)["city"])
	assert.Contains(t, h.api.paths, "POST /api/orders/guest")

	out, err = h.run("cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "cart is empty")

	_, err = h.run("checkout", "--guest-email", "guest@example.com")
	assert.ErrorContains(t, err, "cart is empty")
}

func TestLoginCheckoutLogout(t *testing.T) {
	h := newHarness(t)

	t.Setenv("SHOP_PASSWORD", "")
	_, err := h.run("login", "--email", "jane@example.com")
	assert.ErrorContains(t, err, "--password")

	out, err := h.run("login", "--email", "jane@example.com", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as jane@example.com")
	_, err = os.Stat(filepath.Join(h.home, "session.json"))
	require.NoError(t, err)

	_, err = h.run("cart", "add", h.api.lamp.String())
	require.NoError(t, err)
	_, err = h.run("checkout", "--street", "1 Main St", "--city", "Springfield", "--postal-code", "12345")
	require.NoError(t, err)
	assert.Contains(t, h.api.paths, "POST /api/orders")

	out, err = h.run("order", uuid.NewString())
	require.NoError(t, err)
	assert.Contains(t, out, "ORD-1-ABCD: completed")
	assert.Contains(t, out, "1 x Lamp @ 24.99")

	_, err = h.run("cart", "add", h.api.lamp.String())
	require.NoError(t, err)

	out, err = h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")
	assert.Equal(t, []string{"Bearer access"}, h.api.logouts)

	_, err = os.Stat(filepath.Join(h.home, "session.json"))
	assert.True(t, os.IsNotExist(err))
	out, err = h.run("cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "cart is empty")

	_, err = h.run("order", uuid.NewString())
	assert.ErrorContains(t, err, "not signed in")

	// signing out twice is harmless
	_, err = h.run("logout")
	require.NoError(t, err)
	assert.Len(t, h.api.logouts, 1)
}

func TestProductsListRejectsBadPrice(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("products", "list", "--min-price", "cheap")
	assert.ErrorContains(t, err, "invalid --min-price")
}
