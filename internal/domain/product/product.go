package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist or is no
// longer sellable.
var ErrNotFound = errors.New("product not found")

// Status describes whether a product is visible and orderable.
type Status string

const (
	// StatusActive marks a product as listed and sellable.
	StatusActive Status = "active"
	// StatusDelisted marks a product as withdrawn from sale. A product is
	// delisted automatically when an order drains its stock to zero.
	StatusDelisted Status = "delisted"
)

// Product represents a vendor listing. StockQuantity is the authoritative
// available count; it is decremented only inside the order-create transaction.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	Category      string
	Image         Image
	StockQuantity int
	Status        Status
}

// Image holds display image URLs for a product.
type Image struct {
	Thumbnail string
	Full      string
}

// Sellable reports whether the product can currently be ordered.
func (p Product) Sellable() bool {
	return p.Status == StatusActive && p.StockQuantity > 0
}

// InsufficientStockError indicates a requested quantity exceeds the available
// stock. Available carries the current count so callers can tell the shopper
// how many are left.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available", e.ProductID, e.Available)
}

// Repository defines read operations for the catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
