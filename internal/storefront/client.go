package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shopfront/internal/cart"
	"shopfront/internal/domain"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 15 * time.Second
	maxReadRetries = 3
)

// APIError is an error answered by the shop API
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Unwrap classifies the error by status so callers can match domain sentinels
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusServiceUnavailable:
		return domain.ErrUpstream
	}
	return domain.ErrInternal
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Count      int             `json:"count"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
	Error      *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// Client talks to the shop REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *zap.Logger
	backoff    func() retry.Backoff
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithToken authenticates requests with a bearer token
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// WithBackoff sets the retry schedule for reads answered with 503
func WithBackoff(b func() retry.Backoff) Option {
	return func(cl *Client) { cl.backoff = b }
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(maxReadRetries, retry.NewExponential(200*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken changes the bearer token used by subsequent requests
func (c *Client) SetToken(token string) {
	c.token = token
}

// AuthResponse is the result of a login
type AuthResponse struct {
	User         *domain.User `json:"user"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

// Login exchanges credentials for tokens
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"email": email, "password": password}
	if _, err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the current access token and the given refresh token
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refreshToken": refreshToken}
	_, err := c.do(ctx, http.MethodPost, "/api/auth/logout", body, nil)
	return err
}

// ProductQuery holds catalogue listing filters; zero values are omitted
type ProductQuery struct {
	Category string
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	InStock  bool
	Featured bool
	Sort     string
	Page     int
	Limit    int
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("category", q.Category)
	set("search", q.Search)
	set("sort", q.Sort)
	if q.MinPrice != nil {
		v.Set("minPrice", q.MinPrice.String())
	}
	if q.MaxPrice != nil {
		v.Set("maxPrice", q.MaxPrice.String())
	}
	if q.InStock {
		v.Set("inStock", "true")
	}
	if q.Featured {
		v.Set("featured", "true")
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// ProductPage is one page of the catalogue
type ProductPage struct {
	Products   []*domain.Product
	Total      int
	Page       int
	TotalPages int
}

// ListProducts returns one page of the catalogue
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	path := "/api/products"
	if encoded := q.values().Encode(); encoded != "" {
		path += "?" + encoded
	}

	var products []*domain.Product
	env, err := c.do(ctx, http.MethodGet, path, nil, &products)
	if err != nil {
		return nil, err
	}
	return &ProductPage{Products: products, Total: env.Total, Page: env.Page, TotalPages: env.TotalPages}, nil
}

// GetProduct returns a product with its reviews
func (c *Client) GetProduct(ctx context.Context, id uuid.UUID) (*domain.ProductDetail, error) {
	var out domain.ProductDetail
	if _, err := c.do(ctx, http.MethodGet, "/api/products/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckoutResult is the order created at checkout and the secret that completes its payment
type CheckoutResult struct {
	Order        *domain.Order `json:"order"`
	ClientSecret string        `json:"clientSecret"`
}

type orderLine struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type orderRequest struct {
	GuestEmail      string         `json:"guestEmail,omitempty"`
	Items           []orderLine    `json:"items"`
	ShippingAddress domain.Address `json:"shippingAddress"`
}

// Checkout submits cart lines as an order of the signed-in user
func (c *Client) Checkout(ctx context.Context, lines []cart.Line, address domain.Address) (*CheckoutResult, error) {
	return c.checkout(ctx, "/api/orders", orderRequest{Items: toOrderLines(lines), ShippingAddress: address})
}

// GuestCheckout submits cart lines as a guest order
func (c *Client) GuestCheckout(ctx context.Context, email string, lines []cart.Line, address domain.Address) (*CheckoutResult, error) {
	return c.checkout(ctx, "/api/orders/guest", orderRequest{GuestEmail: email, Items: toOrderLines(lines), ShippingAddress: address})
}

func (c *Client) checkout(ctx context.Context, path string, req orderRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, domain.NewValidationError("cart is empty", nil)
	}
	var out CheckoutResult
	if _, err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder returns one of the caller's orders
func (c *Client) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var out domain.Order
	if _, err := c.do(ctx, http.MethodGet, "/api/orders/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func toOrderLines(lines []cart.Line) []orderLine {
	out := make([]orderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, orderLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

// do sends one request and decodes the data field into out. Reads are retried on 503.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (*envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	if method != http.MethodGet {
		return c.send(ctx, method, path, payload, out)
	}

	var env *envelope
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var err error
		env, err = c.send(ctx, method, path, payload, out)
		if errors.Is(err, domain.ErrUpstream) {
			c.logger.Debug("Retrying read", zap.String("path", path), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	return env, err
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) (*envelope, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindUpstream, Message: "shop API unreachable", Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return nil, apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return &env, nil
}
