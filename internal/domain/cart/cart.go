package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Item is one cart line. Price, Name and Image are snapshots captured when the
// line was first added; bumping the quantity later keeps the original snapshot.
type Item struct {
	ProductID string
	Name      string
	Image     string
	Price     decimal.Decimal
	Quantity  int
	AddedAt   time.Time
}

// Cart is the authoritative server cart for one authenticated user. Totals are
// always derived from the items, never stored.
type Cart struct {
	UserID string
	Items  []Item
}

// Total returns the sum of price × quantity over all lines.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// ItemCount returns the sum of quantities over all lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Item returns the line for the given product, or nil.
func (c *Cart) Item(productID string) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Repository defines persistence for per-user carts.
//
// Get must omit lines whose product has become delisted or out of stock: a
// cart is a wish-list of availability, not a reservation.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Upsert(ctx context.Context, userID string, item Item) error
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
	Replace(ctx context.Context, userID string, items []Item) error
}
