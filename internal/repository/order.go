package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/order"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/product"
)

const (
	insertOrderSQL = `INSERT INTO orders (
		id, pidx, transaction_id, product_id, user_id, quantity, total_amount,
		customer_name, customer_email, customer_phone,
		ship_street, ship_city, ship_district, ship_postal_code, ship_country,
		status, payment_status, timeline, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	// Conditional decrement: refuses to go negative and delists the product in
	// the same statement when the remaining stock hits zero, so there is no
	// window where a zero-stock product is still sellable.
	decrementStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity - $2,
		    status = CASE WHEN stock_quantity - $2 = 0 THEN 'delisted' ELSE status END,
		    updated_at = now()
		WHERE id = $1 AND status = 'active' AND stock_quantity >= $2
		RETURNING stock_quantity`

	availableStockSQL = `SELECT stock_quantity FROM products WHERE id = $1 AND status = 'active'`

	orderColumns = `id, pidx, transaction_id, product_id, user_id, quantity, total_amount,
		customer_name, customer_email, customer_phone,
		ship_street, ship_city, ship_district, ship_postal_code, ship_country,
		status, payment_status, carrier, tracking_number, estimated_delivery, delivered_at,
		cancellation_reason, refund_reason, timeline, created_at`

	getOrderByIDSQL   = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByPidxSQL = `SELECT ` + orderColumns + ` FROM orders WHERE pidx = $1`
	listOrdersSQL     = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	updateOrderSQL = `UPDATE orders SET
		status = $2, payment_status = $3, carrier = $4, tracking_number = $5,
		estimated_delivery = $6, delivered_at = $7,
		cancellation_reason = $8, refund_reason = $9, timeline = $10
	WHERE id = $1`
)

const uniqueViolationCode = "23505"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and decrements the product's stock in a single
// transaction. The unique index on pidx arbitrates concurrent creation: the
// losing insert maps to order.ErrDuplicatePidx before any stock is touched.
// The decrement is a single conditional UPDATE, so concurrent buyers of the
// same product cannot oversell it.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	timelineJSON, err := json.Marshal(o.Timeline)
	if err != nil {
		return fmt.Errorf("marshaling order timeline: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Pidx, o.TransactionID, o.ProductID, o.UserID, o.Quantity, o.TotalAmount,
		o.CustomerInfo.Name, o.CustomerInfo.Email, o.CustomerInfo.Phone,
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.District,
		o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.Status, o.PaymentStatus, timelineJSON, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return order.ErrDuplicatePidx
		}
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	var remaining int
	err = tx.QueryRow(ctx, decrementStockSQL, o.ProductID, o.Quantity).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.insufficientStock(ctx, tx, o.ProductID)
		}
		return fmt.Errorf("decrementing stock for product %q: %w", o.ProductID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// insufficientStock resolves the available count for the rejection message.
// A missing or delisted product reads as zero available.
func (r *OrderRepository) insufficientStock(ctx context.Context, tx pgx.Tx, productID string) error {
	var available int
	err := tx.QueryRow(ctx, availableStockSQL, productID).Scan(&available)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("reading stock for product %q: %w", productID, err)
	}
	return &product.InsufficientStockError{ProductID: productID, Available: available}
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByPidx returns the order created for the given payment session, if any.
func (r *OrderRepository) GetByPidx(ctx context.Context, pidx string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByPidxSQL, pidx)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// ListByUser returns all orders placed by a user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Update persists the mutable fulfillment fields of an order. Identity,
// snapshots and amounts are immutable after creation and never rewritten.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	timelineJSON, err := json.Marshal(o.Timeline)
	if err != nil {
		return fmt.Errorf("marshaling order timeline: %w", err)
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, o.Status, o.PaymentStatus,
		o.Shipping.Carrier, o.Shipping.TrackingNumber,
		o.Shipping.EstimatedDelivery, o.Shipping.DeliveredAt,
		o.CancellationReason, o.RefundReason, timelineJSON,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o            order.Order
		timelineJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.Pidx, &o.TransactionID, &o.ProductID, &o.UserID, &o.Quantity, &o.TotalAmount,
		&o.CustomerInfo.Name, &o.CustomerInfo.Email, &o.CustomerInfo.Phone,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.District,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.Status, &o.PaymentStatus, &o.Shipping.Carrier, &o.Shipping.TrackingNumber,
		&o.Shipping.EstimatedDelivery, &o.Shipping.DeliveredAt,
		&o.CancellationReason, &o.RefundReason, &timelineJSON, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(timelineJSON, &o.Timeline); err != nil {
		return o, fmt.Errorf("unmarshaling order timeline: %w", err)
	}
	return o, nil
}
