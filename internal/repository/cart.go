package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/cart"
)

const (
	// Lines whose product is delisted or out of stock are omitted rather than
	// surfaced: the cart is a wish-list of availability, not a reservation.
	getCartSQL = `SELECT ci.product_id, ci.name, ci.image, ci.price, ci.quantity, ci.added_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1 AND p.status = 'active' AND p.stock_quantity > 0
		ORDER BY ci.added_at, ci.product_id`

	upsertCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity, price, name, image, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	setCartQuantitySQL = `UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND product_id = $2`
	removeCartItemSQL  = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`
	clearCartSQL       = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart with unavailable lines filtered out. A user with
// no lines gets an empty cart, not an error.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}

	items, err := pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}
	return &cart.Cart{UserID: userID, Items: items}, nil
}

// Upsert inserts the line or replaces its quantity. The price, name and image
// snapshot of an existing line is kept; only the quantity moves.
func (r *CartRepository) Upsert(ctx context.Context, userID string, item cart.Item) error {
	_, err := r.pool.Exec(ctx, upsertCartItemSQL,
		userID, item.ProductID, item.Quantity, item.Price, item.Name, item.Image, item.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting cart item %q: %w", item.ProductID, err)
	}
	return nil
}

// SetQuantity replaces a line's quantity.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	_, err := r.pool.Exec(ctx, setCartQuantitySQL, userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("setting quantity for cart item %q: %w", productID, err)
	}
	return nil
}

// Remove deletes a line. Deleting an absent line is a no-op.
func (r *CartRepository) Remove(ctx context.Context, userID, productID string) error {
	_, err := r.pool.Exec(ctx, removeCartItemSQL, userID, productID)
	if err != nil {
		return fmt.Errorf("removing cart item %q: %w", productID, err)
	}
	return nil
}

// Clear deletes every line of the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, clearCartSQL, userID)
	if err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}

// Replace swaps the whole cart for the given lines in one transaction, used by
// the guest-merge bulk sync.
func (r *CartRepository) Replace(ctx context.Context, userID string, items []cart.Item) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	for _, item := range items {
		_, err := tx.Exec(ctx, upsertCartItemSQL,
			userID, item.ProductID, item.Quantity, item.Price, item.Name, item.Image, item.AddedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting cart item %q: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing cart replace for user %q: %w", userID, err)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ProductID, &it.Name, &it.Image, &it.Price, &it.Quantity, &it.AddedAt)
	return it, err
}
