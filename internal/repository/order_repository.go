package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopfront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound       = domain.NewNotFoundError("order not found")
	ErrRefundExceedsAmount = domain.NewConflictError("refund exceeds the refundable amount of the order")
)

// OrderRepository defines the interface for order data access.
// Status changes are compare-and-set: they apply only when the stored
// status still equals the expected one and report whether a row changed.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Order, int, error)
	ListAll(ctx context.Context, status domain.OrderStatus, page, limit int) ([]*domain.Order, int, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error)
	Retry(ctx context.Context, id uuid.UUID, intentID string) (bool, error)
	AddRefund(ctx context.Context, refund *domain.Refund) error
}

type orderRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB, timeout time.Duration) OrderRepository {
	return &orderRepository{db: db, timeout: timeout}
}

const orderColumns = `id, order_number, user_id, guest_email, shipping_address, payment_method, subtotal, shipping,
	total_amount, currency, status, payment_intent_id, attempts, refunded_amount, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var address []byte
	var intentID sql.NullString
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.GuestEmail,
		&address,
		&order.PaymentMethod,
		&order.Subtotal,
		&order.Shipping,
		&order.TotalAmount,
		&order.Currency,
		&order.Status,
		&intentID,
		&order.Attempts,
		&order.RefundedAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	order.PaymentIntentID = intentID.String
	return order, nil
}

// Create inserts the order and its lines in one transaction
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO orders (id, order_number, user_id, guest_email, shipping_address, payment_method,
			                    subtotal, shipping, total_amount, currency, status, payment_intent_id,
			                    attempts, refunded_amount, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`
		_, err := tx.ExecContext(
			ctx,
			query,
			order.ID,
			order.OrderNumber,
			order.UserID,
			order.GuestEmail,
			address,
			order.PaymentMethod,
			order.Subtotal,
			order.Shipping,
			order.TotalAmount,
			order.Currency,
			order.Status,
			nullString(order.PaymentIntentID),
			order.Attempts,
			order.RefundedAmount,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			return dbError("create order", err)
		}

		for i, item := range order.Items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, position, product_id, name, quantity, unit_price) VALUES ($1, $2, $3, $4, $5, $6)`,
				order.ID, i, item.ProductID, item.Name, item.Quantity, item.UnitPrice,
			)
			if err != nil {
				return dbError("create order item", err)
			}
		}
		return nil
	})
}

// FindByID retrieves an order with its lines
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, "find order by ID", `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// FindByPaymentIntent retrieves the order whose current payment intent is intentID
func (r *orderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*domain.Order, error) {
	return r.findOne(ctx, "find order by payment intent", `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id = $1`, intentID)
}

func (r *orderRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.Order, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, dbError(op, err)
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByUser returns a user's orders, newest first
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]*domain.Order, int, error) {
	return r.list(ctx, "WHERE user_id = $1", []any{userID}, page, limit)
}

// ListAll returns every order, optionally restricted to one status
func (r *orderRepository) ListAll(ctx context.Context, status domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if status == "" {
		return r.list(ctx, "", nil, page, limit)
	}
	return r.list(ctx, "WHERE status = $1", []any{status}, page, limit)
}

func (r *orderRepository) list(ctx context.Context, whereClause string, args []any, page, limit int) ([]*domain.Order, int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, dbError("count orders", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, dbError("list orders", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, dbError("scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, dbError("iterate orders", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// loadItems fills the lines of orders with a single query
func (r *orderRepository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.Items = []domain.OrderItem{}
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return dbError("load order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return dbError("scan order item", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return dbError("iterate order items", err)
	}
	return nil
}

// TransitionStatus moves the order from one status to another if it is still in from
func (r *orderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, dbError("transition order status", err)
	}
	return changedRows(result)
}

// Retry moves a failed order back to pending with a fresh payment intent
func (r *orderRepository) Retry(ctx context.Context, id uuid.UUID, intentID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, payment_intent_id = $2, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, intentID, domain.OrderStatusPending, domain.OrderStatusFailed)
	if err != nil {
		return false, dbError("retry order", err)
	}
	return changedRows(result)
}

// AddRefund records a refund and raises the refunded amount of a completed order
func (r *orderRepository) AddRefund(ctx context.Context, refund *domain.Refund) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET refunded_amount = refunded_amount + $2, updated_at = NOW()
			WHERE id = $1 AND status = $3 AND refunded_amount + $2 <= total_amount
		`, refund.OrderID, refund.Amount, domain.OrderStatusCompleted)
		if err != nil {
			return dbError("update refunded amount", err)
		}
		if err := expectOne(result, ErrRefundExceedsAmount); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO refunds (id, order_id, provider_refund_id, amount, currency, reason, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, refund.ID, refund.OrderID, refund.ProviderRefundID, refund.Amount, refund.Currency,
			refund.Reason, refund.Status, refund.CreatedAt)
		if err != nil {
			return dbError("create refund", err)
		}
		return nil
	})
}

func changedRows(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, dbError("get rows affected", err)
	}
	return rowsAffected > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
