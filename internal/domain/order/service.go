package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/product"
)

// Authorization errors.
var (
	// ErrUnauthenticated is returned when order creation is attempted without
	// a purchaser identity.
	ErrUnauthenticated = errors.New("authenticated purchaser required")
	// ErrNotOwner is returned when a purchaser acts on an order they do not
	// own. Deliberately an authorization error rather than a not-found: order
	// ids are opaque UUIDs, so existence is not a meaningful leak here.
	ErrNotOwner = errors.New("order belongs to a different user")
	// ErrAdminOnly is returned when a non-admin attempts a forced transition.
	ErrAdminOnly = errors.New("administrator role required")
)

// ValidationError indicates a missing or malformed required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AlreadyPlacedError signals that an order for the given pidx already exists.
// It is not a business failure: callers must resolve it by adopting Existing,
// which is what makes a reloaded success page idempotent.
type AlreadyPlacedError struct {
	Existing *Order
}

func (e *AlreadyPlacedError) Error() string {
	return fmt.Sprintf("order %s already placed for pidx %s", e.Existing.ID, e.Existing.Pidx)
}

// Actor identifies the caller of an order operation.
type Actor struct {
	UserID string
	Admin  bool
}

// CreateRequest holds the input for idempotent order creation. Pidx is the
// payment session identifier confirmed settled by the gateway lookup.
type CreateRequest struct {
	Pidx            string
	TransactionID   string
	ProductID       string
	Quantity        int
	TotalAmount     decimal.Decimal
	CustomerInfo    CustomerInfo
	ShippingAddress ShippingAddress
}

// Service implements order creation and the fulfillment state machine.
type Service struct {
	orders   Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(orders Repository, products product.Repository) *Service {
	return &Service{
		orders:   orders,
		products: products,
		now:      time.Now,
	}
}

func (r CreateRequest) validate() error {
	switch {
	case r.Pidx == "":
		return &ValidationError{Field: "pidx", Reason: "required"}
	case r.ProductID == "":
		return &ValidationError{Field: "productId", Reason: "required"}
	case r.Quantity < 1:
		return &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	case !r.TotalAmount.IsPositive():
		return &ValidationError{Field: "totalAmount", Reason: "must be positive"}
	}
	return nil
}

// Create places an order for a settled payment session. The operation is
// idempotent on pidx: a replayed call returns *AlreadyPlacedError carrying the
// original order, and stock is decremented exactly once. The repository insert
// races on the unique pidx index, so two concurrent creators yield exactly one
// persisted order.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (*Order, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", req.ProductID)
	}

	// Fast path for replays: a previous call with this pidx already won.
	if existing, err := s.orders.GetByPidx(ctx, req.Pidx); err == nil {
		return nil, &AlreadyPlacedError{Existing: existing}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrapf(err, "lookup order by pidx %s", req.Pidx)
	}

	// Friendly rejection before touching storage. The authoritative check is
	// the conditional decrement inside Repository.Create.
	if p.StockQuantity < req.Quantity {
		return nil, &product.InsufficientStockError{ProductID: p.ID, Available: p.StockQuantity}
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		Pidx:            req.Pidx,
		TransactionID:   req.TransactionID,
		ProductID:       req.ProductID,
		UserID:          actor.UserID,
		Quantity:        req.Quantity,
		TotalAmount:     req.TotalAmount,
		CustomerInfo:    req.CustomerInfo,
		ShippingAddress: req.ShippingAddress,
		Status:          StatusConfirmed,
		PaymentStatus:   PaymentCompleted,
		Timeline:        Timeline{},
		CreatedAt:       now,
	}
	o.Timeline.Stamp("ordered", now)
	o.Timeline.Stamp(string(StatusConfirmed), now)

	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicatePidx) {
			// Lost the insert race: adopt the winner's record.
			existing, lerr := s.orders.GetByPidx(ctx, req.Pidx)
			if lerr != nil {
				return nil, errors.Wrapf(lerr, "fetch winning order for pidx %s", req.Pidx)
			}
			return nil, &AlreadyPlacedError{Existing: existing}
		}
		var stockErr *product.InsufficientStockError
		if errors.As(err, &stockErr) {
			return nil, stockErr
		}
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// Get returns an order by id, enforcing ownership for non-admin callers.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return nil, ErrNotOwner
	}
	return o, nil
}

// GetByPidx returns an order by payment session id, enforcing ownership for
// non-admin callers. This is the reconciliation path after a conflict or a
// lost order-creation response.
func (s *Service) GetByPidx(ctx context.Context, actor Actor, pidx string) (*Order, error) {
	o, err := s.orders.GetByPidx(ctx, pidx)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return nil, ErrNotOwner
	}
	return o, nil
}

// ListMine returns all orders placed by the acting user, newest first.
func (s *Service) ListMine(ctx context.Context, actor Actor) ([]Order, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return s.orders.ListByUser(ctx, actor.UserID)
}

// Cancel cancels an order. Purchasers may cancel only while the order is
// confirmed or processing; admins follow the same graph edge.
func (s *Service) Cancel(ctx context.Context, actor Actor, id, reason string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return nil, ErrNotOwner
	}
	if err := s.apply(o, StatusCancelled); err != nil {
		return nil, err
	}
	o.CancellationReason = reason
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "persist cancellation")
	}
	return o, nil
}

// Refund refunds a delivered order. Requires paymentStatus completed; on
// success the payment status flips to refunded, one-way.
func (s *Service) Refund(ctx context.Context, actor Actor, id, reason string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return nil, ErrNotOwner
	}
	if o.PaymentStatus != PaymentCompleted {
		return nil, &TransitionError{From: o.Status, To: StatusRefunded}
	}
	if err := s.apply(o, StatusRefunded); err != nil {
		return nil, err
	}
	o.RefundReason = reason
	o.PaymentStatus = PaymentRefunded
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "persist refund")
	}
	return o, nil
}

// ShippingUpdate carries optional fulfillment fields set alongside an admin
// transition.
type ShippingUpdate struct {
	Carrier           string
	TrackingNumber    string
	EstimatedDelivery *time.Time
}

// AdminTransition moves an order along the fulfillment graph on behalf of an
// administrator. Terminal states are never reopened. A transition to refunded
// flips the payment status; a transition to delivered stamps the actual
// delivery time.
func (s *Service) AdminTransition(ctx context.Context, actor Actor, id string, to Status, ship *ShippingUpdate) (*Order, error) {
	if !actor.Admin {
		return nil, ErrAdminOnly
	}
	if !to.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(o, to); err != nil {
		return nil, err
	}
	if to == StatusRefunded {
		o.PaymentStatus = PaymentRefunded
	}
	if ship != nil {
		if ship.Carrier != "" {
			o.Shipping.Carrier = ship.Carrier
		}
		if ship.TrackingNumber != "" {
			o.Shipping.TrackingNumber = ship.TrackingNumber
		}
		if ship.EstimatedDelivery != nil {
			o.Shipping.EstimatedDelivery = ship.EstimatedDelivery
		}
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "persist transition to %s", to)
	}
	return o, nil
}

// apply performs a graph-checked transition on o in memory, stamping the
// timeline milestone exactly once.
func (s *Service) apply(o *Order, to Status) error {
	if !o.Status.CanTransitionTo(to) {
		return &TransitionError{From: o.Status, To: to}
	}
	now := s.now()
	o.Status = to
	o.Timeline.Stamp(string(to), now)
	if to == StatusDelivered {
		o.Shipping.DeliveredAt = &now
	}
	return nil
}
