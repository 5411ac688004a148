package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order lookup and creation.
var (
	// ErrNotFound is returned when no order matches the given id or pidx.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicatePidx is returned by the repository when an insert loses the
	// race on the unique pidx index.
	ErrDuplicatePidx = errors.New("order with this pidx already exists")
)

// PaymentStatus tracks whether the captured payment is still held or has been
// returned to the shopper. The transition to refunded is one-way.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// CustomerInfo is a snapshot of the purchaser's contact details, captured at
// order creation and never re-resolved from the account.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// ShippingAddress is a snapshot of the delivery destination.
type ShippingAddress struct {
	Street     string
	City       string
	District   string
	PostalCode string
	Country    string
}

// ShippingInfo is populated by fulfillment transitions, not at creation.
type ShippingInfo struct {
	Carrier           string
	TrackingNumber    string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
}

// Timeline records when each lifecycle milestone was reached. Entries are
// append-only: a milestone is stamped once and never rewritten.
type Timeline map[string]time.Time

// Stamp records the given milestone at t unless it was already recorded.
func (tl Timeline) Stamp(milestone string, t time.Time) {
	if _, ok := tl[milestone]; ok {
		return
	}
	tl[milestone] = t
}

// Order is the persisted record of one settled payment session. Pidx is the
// idempotency key: exactly one order exists per pidx.
type Order struct {
	ID                 string
	Pidx               string
	TransactionID      string
	ProductID          string
	UserID             string
	Quantity           int
	TotalAmount        decimal.Decimal
	CustomerInfo       CustomerInfo
	ShippingAddress    ShippingAddress
	Status             Status
	PaymentStatus      PaymentStatus
	Shipping           ShippingInfo
	Timeline           Timeline
	CancellationReason string
	RefundReason       string
	CreatedAt          time.Time
}

// Repository defines persistence operations for orders.
//
// Create must persist the order, decrement the product's stock by
// Order.Quantity, and delist the product when the remaining stock hits zero,
// all as a single transaction. It returns ErrDuplicatePidx when the pidx is
// already taken and *product.InsufficientStockError when the decrement would
// go negative.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPidx(ctx context.Context, pidx string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	Update(ctx context.Context, o *Order) error
}
