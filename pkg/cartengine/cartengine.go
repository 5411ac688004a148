// Package cartengine keeps a client-side shopping cart consistent across
// guest and authenticated browsing.
//
// Every mutation is applied to the in-memory model first, so the view updates
// immediately. For authenticated shoppers the matching server call follows;
// if it fails the exact inverse of the mutation is applied, so the local view
// never stays ahead of what the server will accept for longer than one failed
// round-trip. Guest mutations skip the server and persist to a durable local
// store instead, to be merged into the server cart on login.
package cartengine

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Session identifies the shopper on server calls. The zero value is a guest.
type Session struct {
	UserID string
	Token  string
}

// Authenticated reports whether the session can talk to the server cart.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Item is one cart line. Name, image and price are snapshots taken when the
// line was added.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// SyncItem is one line of a bulk cart replacement.
type SyncItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Server is the authoritative cart backend for authenticated shoppers.
type Server interface {
	Fetch(ctx context.Context, s Session) ([]Item, error)
	Add(ctx context.Context, s Session, productID string, quantity int) error
	SetQuantity(ctx context.Context, s Session, productID string, quantity int) error
	Remove(ctx context.Context, s Session, productID string) error
	Clear(ctx context.Context, s Session) error
	// Sync replaces the server cart wholesale and returns the resulting
	// cart, which may differ from the pushed items when the server drops
	// unavailable products or caps quantities at stock.
	Sync(ctx context.Context, s Session, items []SyncItem) ([]Item, error)
}

// LocalStore persists the guest cart between browser sessions.
type LocalStore interface {
	Load() ([]Item, error)
	Save(items []Item) error
	Clear() error
}

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrNotInCart       = errors.New("product is not in the cart")
	ErrNotLoggedIn     = errors.New("session is not authenticated")
)

// Engine is the optimistic cart model. All methods are safe for concurrent
// use.
type Engine struct {
	server Server
	local  LocalStore

	mu       sync.Mutex
	session  Session
	items    []Item
	syncedAt time.Time

	now func() time.Time
}

// New builds an Engine in the guest state, restoring any cart persisted by a
// previous guest visit.
func New(server Server, local LocalStore) (*Engine, error) {
	items, err := local.Load()
	if err != nil {
		return nil, errors.Wrap(err, "restore guest cart")
	}
	return &Engine{
		server: server,
		local:  local,
		items:  items,
		now:    time.Now,
	}, nil
}

// Items returns a copy of the current cart lines.
func (e *Engine) Items() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.items)
}

// Total is the sum of price times quantity over all lines.
func (e *Engine) Total() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := decimal.Zero
	for _, it := range e.items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// ItemCount is the total number of units across all lines.
func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	var n int
	for _, it := range e.items {
		n += it.Quantity
	}
	return n
}

// SyncedAt returns when the cart last reached durable agreement with its
// backing store (server or local), or the zero time if it never has.
func (e *Engine) SyncedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncedAt
}

// Session returns the current shopper session.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Add puts quantity units of a product into the cart. When the product is
// already present the existing snapshot is kept and only the quantity grows.
func (e *Engine) Add(ctx context.Context, item Item) error {
	if item.ProductID == "" {
		return errors.New("product id is empty")
	}
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.index(item.ProductID)
	m := &mutation{op: "add"}
	if idx >= 0 {
		prev := e.items[idx].Quantity
		m.apply = func() { e.items[idx].Quantity = prev + item.Quantity }
		m.invert = func() { e.items[idx].Quantity = prev }
	} else {
		m.apply = func() { e.items = append(e.items, item) }
		m.invert = func() { e.items = e.items[:len(e.items)-1] }
	}
	m.call = func(ctx context.Context) error {
		return e.server.Add(ctx, e.session, item.ProductID, item.Quantity)
	}
	return e.run(ctx, m)
}

// SetQuantity replaces a line's quantity.
func (e *Engine) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.index(productID)
	if idx < 0 {
		return ErrNotInCart
	}

	prev := e.items[idx].Quantity
	m := &mutation{
		op:     "set quantity",
		apply:  func() { e.items[idx].Quantity = quantity },
		invert: func() { e.items[idx].Quantity = prev },
		call: func(ctx context.Context) error {
			return e.server.SetQuantity(ctx, e.session, productID, quantity)
		},
	}
	return e.run(ctx, m)
}

// Remove drops a line from the cart. Removing an absent product is a no-op.
func (e *Engine) Remove(ctx context.Context, productID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.index(productID)
	if idx < 0 {
		return nil
	}

	removed := e.items[idx]
	m := &mutation{
		op: "remove",
		apply: func() {
			e.items = append(e.items[:idx], e.items[idx+1:]...)
		},
		invert: func() {
			e.items = append(e.items, Item{})
			copy(e.items[idx+1:], e.items[idx:])
			e.items[idx] = removed
		},
		call: func(ctx context.Context) error {
			return e.server.Remove(ctx, e.session, productID)
		},
	}
	return e.run(ctx, m)
}

// Clear empties the cart.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.items
	m := &mutation{
		op:     "clear",
		apply:  func() { e.items = nil },
		invert: func() { e.items = prev },
		call: func(ctx context.Context) error {
			return e.server.Clear(ctx, e.session)
		},
	}
	return e.run(ctx, m)
}

// Login switches the engine to an authenticated session and reconciles the
// guest cart with the server cart. An empty server cart adopts the guest
// lines through a bulk sync; a non-empty server cart wins and the guest copy
// is discarded.
func (e *Engine) Login(ctx context.Context, s Session) error {
	if !s.Authenticated() {
		return ErrNotLoggedIn
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	serverItems, err := e.server.Fetch(ctx, s)
	if err != nil {
		return errors.Wrap(err, "fetch server cart")
	}

	switch {
	case len(serverItems) == 0 && len(e.items) > 0:
		push := make([]SyncItem, len(e.items))
		for i, it := range e.items {
			push[i] = SyncItem{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		merged, err := e.server.Sync(ctx, s, push)
		if err != nil {
			return errors.Wrap(err, "merge guest cart")
		}
		e.items = merged
	default:
		e.items = serverItems
	}

	if err := e.local.Clear(); err != nil {
		return errors.Wrap(err, "discard guest cart")
	}

	e.session = s
	e.syncedAt = e.now()
	return nil
}

// Logout reverts the engine to a fresh guest state. The authenticated cart
// stays on the server.
func (e *Engine) Logout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session = Session{}
	e.items = nil
	e.syncedAt = time.Time{}
}

// run drives a mutation through its lifecycle: optimistic apply, then either
// a server call (authenticated) or a local persist (guest), inverting the
// mutation when that fails. Callers hold e.mu.
func (e *Engine) run(ctx context.Context, m *mutation) error {
	m.apply()
	m.state = mutationApplied

	if !e.session.Authenticated() {
		if err := e.local.Save(snapshot(e.items)); err != nil {
			m.rollback()
			return errors.Wrapf(err, "persist guest cart after %s", m.op)
		}
		m.state = mutationSynced
		e.syncedAt = e.now()
		return nil
	}

	if err := m.call(ctx); err != nil {
		m.rollback()
		return errors.Wrapf(err, "%s rejected by server", m.op)
	}
	m.state = mutationSynced
	e.syncedAt = e.now()
	return nil
}

func (e *Engine) index(productID string) int {
	for i, it := range e.items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func snapshot(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
