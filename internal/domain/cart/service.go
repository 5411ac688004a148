package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/product"
)

// ErrInvalidQuantity is returned for quantities below 1.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// SyncItem is one line of a bulk cart replacement, as pushed by a client
// merging a guest cart after login.
type SyncItem struct {
	ProductID string
	Quantity  int
}

// Service implements the authenticated-cart operations. Stock is validated at
// mutation time, not at read time; reads instead drop unavailable lines.
type Service struct {
	carts    Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{
		carts:    carts,
		products: products,
		now:      time.Now,
	}
}

// Get returns the user's cart with unavailable lines already filtered out by
// the repository.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.carts.Get(ctx, userID)
}

// Add puts quantity more units of a product into the cart. The sum of the
// existing line quantity and the requested quantity must not exceed the
// current stock; violations carry the available count back to the shopper.
// A brand-new line snapshots the product's current price, name and image; an
// existing line keeps its original snapshot and only grows.
func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Sellable() {
		return nil, product.ErrNotFound
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	item := Item{
		ProductID: productID,
		Name:      p.Name,
		Image:     p.Image.Thumbnail,
		Price:     p.Price,
		Quantity:  quantity,
		AddedAt:   s.now(),
	}
	if existing := c.Item(productID); existing != nil {
		item = *existing
		item.Quantity = existing.Quantity + quantity
	}
	if item.Quantity > p.StockQuantity {
		return nil, &product.InsufficientStockError{ProductID: productID, Available: p.StockQuantity}
	}

	if err := s.carts.Upsert(ctx, userID, item); err != nil {
		return nil, errors.Wrap(err, "upsert cart item")
	}
	return s.carts.Get(ctx, userID)
}

// SetQuantity replaces a line's quantity, validated against current stock.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > p.StockQuantity {
		return nil, &product.InsufficientStockError{ProductID: productID, Available: p.StockQuantity}
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.Item(productID) == nil {
		return nil, errors.Wrap(product.ErrNotFound, fmt.Sprintf("no cart line for product %s", productID))
	}

	if err := s.carts.SetQuantity(ctx, userID, productID, quantity); err != nil {
		return nil, errors.Wrap(err, "set cart quantity")
	}
	return s.carts.Get(ctx, userID)
}

// Remove deletes a line from the cart. Removing an absent line is a no-op.
func (s *Service) Remove(ctx context.Context, userID, productID string) (*Cart, error) {
	if err := s.carts.Remove(ctx, userID, productID); err != nil {
		return nil, errors.Wrap(err, "remove cart item")
	}
	return s.carts.Get(ctx, userID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.carts.Clear(ctx, userID)
}

// Sync replaces the whole cart with the given lines, used by clients merging a
// guest cart after login. Lines whose product is gone or unsellable are
// dropped and quantities are capped at available stock rather than failing the
// whole merge: guest carts can be arbitrarily stale, and a wish-list merge
// should not abort on one dead line. Snapshots are taken from the current
// catalog since the server never saw the guest's add-time prices.
func (s *Service) Sync(ctx context.Context, userID string, items []SyncItem) (*Cart, error) {
	now := s.now()
	lines := make([]Item, 0, len(items))
	for _, in := range items {
		if in.Quantity < 1 {
			continue
		}
		p, err := s.products.GetByID(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				continue
			}
			return nil, errors.Wrapf(err, "get product %s", in.ProductID)
		}
		if !p.Sellable() {
			continue
		}
		qty := in.Quantity
		if qty > p.StockQuantity {
			qty = p.StockQuantity
		}
		lines = append(lines, Item{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image.Thumbnail,
			Price:     p.Price,
			Quantity:  qty,
			AddedAt:   now,
		})
	}

	if err := s.carts.Replace(ctx, userID, lines); err != nil {
		return nil, errors.Wrap(err, "replace cart")
	}
	return s.carts.Get(ctx, userID)
}
