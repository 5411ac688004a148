package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/auth"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/cart"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/order"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/product"
	"github.com/Jungeey/ArtVibe-sub000/internal/khalti"
)

var testPepper = []byte("unit-test-pepper")

const (
	customerToken  = "customer-token"
	customer2Token = "second-customer-token"
	adminToken     = "admin-token"
)

func hashToken(token string) string {
	mac := hmac.New(sha256.New, testPepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// fakeSessions resolves token hashes to sessions the way the postgres store
// does, without the database.
type fakeSessions map[string]*auth.Session

func (f fakeSessions) FindByTokenHash(_ context.Context, hash string) (*auth.Session, error) {
	s, ok := f[hash]
	if !ok {
		return nil, errors.New("no session for token")
	}
	return s, nil
}

type fakeProducts struct {
	list []product.Product
}

func (f *fakeProducts) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(f.list))
	for _, p := range f.list {
		if p.Sellable() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	for i := range f.list {
		if f.list[i].ID == id {
			p := f.list[i]
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (f *fakeProducts) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, err := f.GetByID(ctx, id); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProducts) decrement(id string, by int) {
	for i := range f.list {
		if f.list[i].ID == id {
			f.list[i].StockQuantity -= by
			if f.list[i].StockQuantity <= 0 {
				f.list[i].StockQuantity = 0
				f.list[i].Status = product.StatusDelisted
			}
			return
		}
	}
}

// fakeOrders mirrors the transactional contract of the postgres repository:
// Create is atomic with the stock decrement and the delist at zero.
type fakeOrders struct {
	products *fakeProducts
	byID     map[string]order.Order
	seq      []string
}

func newFakeOrders(products *fakeProducts) *fakeOrders {
	return &fakeOrders{products: products, byID: map[string]order.Order{}}
}

func (f *fakeOrders) Create(ctx context.Context, o *order.Order) error {
	for _, existing := range f.byID {
		if existing.Pidx == o.Pidx {
			return order.ErrDuplicatePidx
		}
	}
	p, err := f.products.GetByID(ctx, o.ProductID)
	if err != nil {
		return err
	}
	if p.StockQuantity < o.Quantity {
		return &product.InsufficientStockError{ProductID: o.ProductID, Available: p.StockQuantity}
	}
	f.products.decrement(o.ProductID, o.Quantity)
	f.byID[o.ID] = *o
	f.seq = append(f.seq, o.ID)
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (f *fakeOrders) GetByPidx(_ context.Context, pidx string) (*order.Order, error) {
	for _, o := range f.byID {
		if o.Pidx == pidx {
			o := o
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for i := len(f.seq) - 1; i >= 0; i-- {
		if o := f.byID[f.seq[i]]; o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) Update(_ context.Context, o *order.Order) error {
	if _, ok := f.byID[o.ID]; !ok {
		return order.ErrNotFound
	}
	f.byID[o.ID] = *o
	return nil
}

type fakeCarts struct {
	products *fakeProducts
	items    map[string][]cart.Item
}

func newFakeCarts(products *fakeProducts) *fakeCarts {
	return &fakeCarts{products: products, items: map[string][]cart.Item{}}
}

func (f *fakeCarts) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var kept []cart.Item
	for _, it := range f.items[userID] {
		p, err := f.products.GetByID(ctx, it.ProductID)
		if err != nil || !p.Sellable() {
			continue
		}
		kept = append(kept, it)
	}
	return &cart.Cart{UserID: userID, Items: kept}, nil
}

func (f *fakeCarts) Upsert(_ context.Context, userID string, item cart.Item) error {
	lines := f.items[userID]
	for i := range lines {
		if lines[i].ProductID == item.ProductID {
			lines[i] = item
			return nil
		}
	}
	f.items[userID] = append(lines, item)
	return nil
}

func (f *fakeCarts) SetQuantity(_ context.Context, userID, productID string, quantity int) error {
	for i, it := range f.items[userID] {
		if it.ProductID == productID {
			f.items[userID][i].Quantity = quantity
		}
	}
	return nil
}

func (f *fakeCarts) Remove(_ context.Context, userID, productID string) error {
	lines := f.items[userID]
	for i, it := range lines {
		if it.ProductID == productID {
			f.items[userID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeCarts) Clear(_ context.Context, userID string) error {
	delete(f.items, userID)
	return nil
}

func (f *fakeCarts) Replace(_ context.Context, userID string, items []cart.Item) error {
	f.items[userID] = items
	return nil
}

type apiFixture struct {
	t        *testing.T
	srv      *httptest.Server
	products *fakeProducts
	orders   *fakeOrders
	carts    *fakeCarts
}

func seedCatalog() []product.Product {
	return []product.Product{
		{
			ID:       "bowl",
			Name:     "Singing Bowl 7in",
			Price:    decimal.NewFromFloat(3200),
			Category: "metalcraft",
			Image: product.Image{
				Thumbnail: "/img/bowl-thumb.jpg",
				Full:      "/img/bowl-full.jpg",
			},
			StockQuantity: 4,
			Status:        product.StatusActive,
		},
		{
			ID:            "journal",
			Name:          "Lokta Paper Journal",
			Price:         decimal.NewFromFloat(650),
			Category:      "paper",
			StockQuantity: 10,
			Status:        product.StatusActive,
		},
		{
			ID:            "sticker",
			Name:          "Mandala Sticker",
			Price:         decimal.NewFromFloat(5),
			Category:      "paper",
			StockQuantity: 50,
			Status:        product.StatusActive,
		},
		{
			ID:            "retired",
			Name:          "Retired Thangka",
			Price:         decimal.NewFromFloat(9000),
			Category:      "painting",
			StockQuantity: 0,
			Status:        product.StatusDelisted,
		},
	}
}

// newFixture wires a Handler with in-memory fakes and a stub gateway. Tests
// that never reach the gateway can pass nil.
func newFixture(t *testing.T, gateway http.HandlerFunc) *apiFixture {
	t.Helper()

	if gateway == nil {
		gateway = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
	gwSrv := httptest.NewServer(gateway)
	t.Cleanup(gwSrv.Close)

	products := &fakeProducts{list: seedCatalog()}
	orders := newFakeOrders(products)
	carts := newFakeCarts(products)
	sessions := fakeSessions{
		hashToken(customerToken):  {UserID: "user-1", Role: auth.RoleCustomer, TokenHash: hashToken(customerToken)},
		hashToken(customer2Token): {UserID: "user-2", Role: auth.RoleCustomer, TokenHash: hashToken(customer2Token)},
		hashToken(adminToken):     {UserID: "admin-1", Role: auth.RoleAdmin, TokenHash: hashToken(adminToken)},
	}

	h := NewHandler(
		Config{ImageBaseURL: "https://cdn.artvibe.example", SessionPepper: testPepper},
		products,
		order.NewService(orders, products),
		cart.NewService(carts, products),
		khalti.NewClient(khalti.Config{
			BaseURL:       gwSrv.URL,
			SecretKey:     "gw-secret",
			ReturnURL:     "https://artvibe.example/payment/return",
			WebsiteURL:    "https://artvibe.example",
			Timeout:       time.Second,
			LookupRetries: -1,
		}),
		sessions,
	)

	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiFixture{t: t, srv: srv, products: products, orders: orders, carts: carts}
}

// do performs a request and decodes the JSON response. A string body is sent
// raw; anything else is marshalled.
func (f *apiFixture) do(method, path, token string, body any) (int, any) {
	f.t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(f.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(f.t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)

	var decoded any
	if len(bytes.TrimSpace(raw)) > 0 {
		require.NoError(f.t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func obj(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected JSON object, got %T", v)
	return m
}

func arr(t *testing.T, v any) []any {
	t.Helper()
	a, ok := v.([]any)
	require.True(t, ok, "expected JSON array, got %T", v)
	return a
}

func orderBody(pidx string) map[string]any {
	return map[string]any{
		"pidx":          pidx,
		"transactionId": "txn-" + pidx,
		"productId":     "bowl",
		"quantity":      1,
		"totalAmount":   3200.00,
		"customerInfo": map[string]any{
			"name":  "Sita Sharma",
			"email": "sita@example.com",
			"phone": "9800000001",
		},
		"shippingAddress": map[string]any{
			"street":     "Jhamsikhel Road",
			"city":       "Lalitpur",
			"district":   "Lalitpur",
			"postalCode": "44600",
			"country":    "Nepal",
		},
	}
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{"missing header", "", http.StatusUnauthorized, "authentication required"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "authentication required"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "authentication required"},
		{"unknown token", "Bearer who-is-this", http.StatusUnauthorized, "invalid session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/cart", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := f.srv.Client().Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantMsg, body["message"])
		})
	}

	status, _ := f.do(http.MethodGet, "/api/cart", customerToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestListProducts(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, status)

	products := arr(t, body)
	require.Len(t, products, 3, "delisted products are not listed")

	first := obj(t, products[0])
	assert.Equal(t, "bowl", first["id"])
	assert.Equal(t, 3200.0, first["price"])
	assert.Equal(t, "active", first["status"])
	image := obj(t, first["image"])
	assert.Equal(t, "https://cdn.artvibe.example/img/bowl-thumb.jpg", image["thumbnail"])
	assert.Equal(t, "https://cdn.artvibe.example/img/bowl-full.jpg", image["full"])
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodGet, "/api/products/journal", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Lokta Paper Journal", obj(t, body)["name"])

	status, body = f.do(http.MethodGet, "/api/products/nope", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	envelope := obj(t, body)
	assert.Equal(t, float64(http.StatusNotFound), envelope["code"])
	assert.Equal(t, "product not found", envelope["message"])
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/orders", customerToken, orderBody("pidx-100"))
	require.Equal(t, http.StatusCreated, status)

	o := obj(t, body)
	assert.NotEmpty(t, o["id"])
	assert.Equal(t, "pidx-100", o["pidx"])
	assert.Equal(t, "user-1", o["userId"])
	assert.Equal(t, "confirmed", o["status"])
	assert.Equal(t, "completed", o["paymentStatus"])
	timeline := obj(t, o["timeline"])
	assert.Contains(t, timeline, "ordered")
	assert.Contains(t, timeline, "confirmed")

	// Stock came down with the order.
	status, body = f.do(http.MethodGet, "/api/products/bowl", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), obj(t, body)["stockQuantity"])
}

func TestCreateOrderDrainsStockAndDelists(t *testing.T) {
	f := newFixture(t, nil)

	req := orderBody("pidx-drain")
	req["quantity"] = 4
	req["totalAmount"] = 12800.00
	status, _ := f.do(http.MethodPost, "/api/orders", customerToken, req)
	require.Equal(t, http.StatusCreated, status)

	status, body := f.do(http.MethodGet, "/api/products/bowl", "", nil)
	require.Equal(t, http.StatusOK, status)
	p := obj(t, body)
	assert.Equal(t, float64(0), p["stockQuantity"])
	assert.Equal(t, "delisted", p["status"])

	status, body = f.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, status)
	for _, v := range arr(t, body) {
		assert.NotEqual(t, "bowl", obj(t, v)["id"])
	}
}

func TestCreateOrderReplayConflict(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/orders", customerToken, orderBody("pidx-dup"))
	require.Equal(t, http.StatusCreated, status)
	firstID := obj(t, body)["id"]

	status, body = f.do(http.MethodPost, "/api/orders", customerToken, orderBody("pidx-dup"))
	require.Equal(t, http.StatusConflict, status)
	envelope := obj(t, body)
	assert.Equal(t, firstID, envelope["orderId"])
	assert.Equal(t, "pidx-dup", envelope["pidx"])

	// The replay never touched the stock again.
	status, body = f.do(http.MethodGet, "/api/products/bowl", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), obj(t, body)["stockQuantity"])
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newFixture(t, nil)

	req := orderBody("pidx-greedy")
	req["quantity"] = 99
	status, body := f.do(http.MethodPost, "/api/orders", customerToken, req)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	envelope := obj(t, body)
	assert.Equal(t, float64(4), envelope["available"])
	assert.Contains(t, envelope["message"], "insufficient stock")
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, nil)

	req := orderBody("")
	status, body := f.do(http.MethodPost, "/api/orders", customerToken, req)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid pidx: required", obj(t, body)["message"])

	status, body = f.do(http.MethodPost, "/api/orders", customerToken, "{not json")
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "malformed request body", obj(t, body)["message"])
}

func TestOrderOwnership(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/orders", customerToken, orderBody("pidx-own"))
	require.Equal(t, http.StatusCreated, status)
	id := obj(t, body)["id"].(string)

	status, body = f.do(http.MethodGet, "/api/orders/"+id, customer2Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not allowed", obj(t, body)["message"])

	status, _ = f.do(http.MethodGet, "/api/orders/"+id, adminToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = f.do(http.MethodGet, "/api/orders/pidx/pidx-own", customer2Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not allowed", obj(t, body)["message"])
}

func TestGetOrderByPidx(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/orders", customerToken, orderBody("pidx-rec"))
	require.Equal(t, http.StatusCreated, status)
	id := obj(t, body)["id"]

	status, body = f.do(http.MethodGet, "/api/orders/pidx/pidx-rec", customerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, obj(t, body)["id"])

	status, _ = f.do(http.MethodGet, "/api/orders/pidx/pidx-missing", customerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t, nil)

	for _, pidx := range []string{"pidx-a", "pidx-b"} {
		status, _ := f.do(http.MethodPost, "/api/orders", customerToken, orderBody(pidx))
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := f.do(http.MethodPost, "/api/orders", customer2Token, orderBody("pidx-other"))
	require.Equal(t, http.StatusCreated, status)

	status, body := f.do(http.MethodGet, "/api/orders", customerToken, nil)
	require.Equal(t, http.StatusOK, status)

	mine := arr(t, body)
	require.Len(t, mine, 2)
	assert.Equal(t, "pidx-b", obj(t, mine[0])["pidx"], "newest first")
	assert.Equal(t, "pidx-a", obj(t, mine[1])["pidx"])
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/orders", customerToken, orderBody("pidx-cancel"))
	require.Equal(t, http.StatusCreated, status)
	id := obj(t, body)["id"].(string)

	status, body = f.do(http.MethodPost, "/api/orders/"+id+"/cancel", customerToken,
		map[string]any{"reason": "ordered by mistake"})
	require.Equal(t, http.StatusOK, status)

	o := obj(t, body)
	assert.Equal(t, "cancelled", o["status"])
	assert.Equal(t, "ordered by mistake", o["cancellationReason"])

	// Cancelled is terminal.
	status, body = f.do(http.MethodPost, "/api/orders/"+id+"/cancel", customerToken,
		map[string]any{"reason": "again"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, obj(t, body)["message"], "illegal order transition")
}

func TestRefundRequiresReason(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/orders", customerToken, orderBody("pidx-refund"))
	require.Equal(t, http.StatusCreated, status)
	id := obj(t, body)["id"].(string)

	status, body = f.do(http.MethodPost, "/api/orders/"+id+"/refund", customerToken, map[string]any{})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "reason required", obj(t, body)["message"])
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/orders", customerToken, orderBody("pidx-ship"))
	require.Equal(t, http.StatusCreated, status)
	id := obj(t, body)["id"].(string)

	// Fulfillment transitions are admin territory.
	status, body = f.do(http.MethodPatch, "/api/orders/"+id+"/status", customerToken,
		map[string]any{"status": "processing"})
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not allowed", obj(t, body)["message"])

	// Skipping ahead in the graph is rejected.
	status, body = f.do(http.MethodPatch, "/api/orders/"+id+"/status", adminToken,
		map[string]any{"status": "shipped"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, obj(t, body)["message"], "illegal order transition")

	for _, next := range []string{"processing", "ready_to_ship"} {
		status, _ = f.do(http.MethodPatch, "/api/orders/"+id+"/status", adminToken,
			map[string]any{"status": next})
		require.Equal(t, http.StatusOK, status)
	}

	status, body = f.do(http.MethodPatch, "/api/orders/"+id+"/status", adminToken, map[string]any{
		"status":         "shipped",
		"carrier":        "Nepal Can Move",
		"trackingNumber": "NCM-42",
	})
	require.Equal(t, http.StatusOK, status)
	o := obj(t, body)
	assert.Equal(t, "shipped", o["status"])
	assert.Equal(t, "Nepal Can Move", o["carrier"])
	assert.Equal(t, "NCM-42", o["trackingNumber"])

	status, body = f.do(http.MethodPatch, "/api/orders/"+id+"/status", adminToken,
		map[string]any{"status": "teleported"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, obj(t, body)["message"], "unknown status")
}

func TestCartFlow(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/cart/items", customerToken,
		map[string]any{"productId": "bowl", "quantity": 2})
	require.Equal(t, http.StatusOK, status)

	c := obj(t, body)
	items := arr(t, c["items"])
	require.Len(t, items, 1)
	line := obj(t, items[0])
	assert.Equal(t, "bowl", line["productId"])
	assert.Equal(t, float64(2), line["quantity"])
	assert.Equal(t, 6400.0, c["total"])
	assert.Equal(t, float64(2), c["itemCount"])

	// Over-stock update is rejected with the available count.
	status, body = f.do(http.MethodPut, "/api/cart/items/bowl", customerToken,
		map[string]any{"quantity": 99})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, float64(4), obj(t, body)["available"])

	status, body = f.do(http.MethodPut, "/api/cart/items/bowl", customerToken,
		map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 9600.0, obj(t, body)["total"])

	status, body = f.do(http.MethodPost, "/api/cart/items", customerToken,
		map[string]any{"productId": "bowl", "quantity": 0})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, cart.ErrInvalidQuantity.Error(), obj(t, body)["message"])

	status, body = f.do(http.MethodDelete, "/api/cart/items/bowl", customerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), obj(t, body)["itemCount"])

	status, _ = f.do(http.MethodPost, "/api/cart/items", customerToken,
		map[string]any{"productId": "journal", "quantity": 1})
	require.Equal(t, http.StatusOK, status)
	status, body = f.do(http.MethodDelete, "/api/cart", customerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, arr(t, obj(t, body)["items"]))
}

func TestCartsAreIsolatedPerUser(t *testing.T) {
	f := newFixture(t, nil)

	status, _ := f.do(http.MethodPost, "/api/cart/items", customerToken,
		map[string]any{"productId": "bowl", "quantity": 1})
	require.Equal(t, http.StatusOK, status)

	status, body := f.do(http.MethodGet, "/api/cart", customer2Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), obj(t, body)["itemCount"])
}

func TestSyncCart(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPut, "/api/cart", customerToken, map[string]any{
		"items": []map[string]any{
			{"productId": "bowl", "quantity": 9},     // capped at stock 4
			{"productId": "journal", "quantity": 2},  // kept as is
			{"productId": "retired", "quantity": 1},  // delisted, dropped
			{"productId": "ghost", "quantity": 1},    // unknown, dropped
			{"productId": "sticker", "quantity": 0},  // zero quantity, dropped
		},
	})
	require.Equal(t, http.StatusOK, status)

	c := obj(t, body)
	items := arr(t, c["items"])
	require.Len(t, items, 2)
	assert.Equal(t, float64(4), obj(t, items[0])["quantity"])
	assert.Equal(t, "journal", obj(t, items[1])["productId"])
	assert.Equal(t, float64(6), c["itemCount"])
}

func TestInitiatePayment(t *testing.T) {
	var gwReq map[string]any
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gwReq))
		_, _ = w.Write([]byte(`{
			"pidx": "pay-session-1",
			"payment_url": "https://test-pay.khalti.com/?pidx=pay-session-1",
			"expires_at": "2025-06-15T12:30:00+05:45",
			"expires_in": 1800
		}`))
	})

	status, body := f.do(http.MethodPost, "/api/payments/initiate", customerToken, map[string]any{
		"productId": "bowl",
		"quantity":  2,
		"customerInfo": map[string]any{
			"name":  "Sita Sharma",
			"email": "sita@example.com",
			"phone": "9800000001",
		},
	})
	require.Equal(t, http.StatusOK, status)

	resp := obj(t, body)
	assert.Equal(t, "pay-session-1", resp["pidx"])
	assert.Equal(t, "https://test-pay.khalti.com/?pidx=pay-session-1", resp["paymentUrl"])
	assert.Equal(t, 6400.0, resp["totalAmount"])

	// Amounts go to the gateway in paisa, priced from the catalog.
	assert.Equal(t, float64(640000), gwReq["amount"])
	detail := obj(t, arr(t, gwReq["product_details"])[0])
	assert.Equal(t, "bowl", detail["identity"])
	assert.Equal(t, float64(320000), detail["unit_price"])
	assert.Equal(t, float64(2), detail["quantity"])
}

func TestInitiatePaymentBelowGatewayMinimum(t *testing.T) {
	f := newFixture(t, nil)

	// Rs 5 is 500 paisa, under the gateway floor.
	status, body := f.do(http.MethodPost, "/api/payments/initiate", customerToken,
		map[string]any{"productId": "sticker", "quantity": 1})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, obj(t, body)["message"], "below gateway minimum")
}

func TestInitiatePaymentValidation(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodPost, "/api/payments/initiate", customerToken,
		map[string]any{"quantity": 1})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "productId required", obj(t, body)["message"])

	status, body = f.do(http.MethodPost, "/api/payments/initiate", customerToken,
		map[string]any{"productId": "bowl", "quantity": 0})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "quantity must be at least 1", obj(t, body)["message"])

	status, body = f.do(http.MethodPost, "/api/payments/initiate", customerToken,
		map[string]any{"productId": "bowl", "quantity": 99})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, float64(4), obj(t, body)["available"])
}

func TestLookupPayment(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/epayment/lookup/", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"pidx": "pay-session-1",
			"total_amount": 640000,
			"status": "Completed",
			"transaction_id": "txn-1",
			"fee": 19200,
			"refunded": false
		}`))
	})

	status, body := f.do(http.MethodGet, "/api/payments/pay-session-1", customerToken, nil)
	require.Equal(t, http.StatusOK, status)

	resp := obj(t, body)
	assert.Equal(t, "Completed", resp["status"])
	assert.Equal(t, float64(640000), resp["totalAmount"])
	assert.Equal(t, "txn-1", resp["transactionId"])
}

func TestLookupPaymentGatewayDown(t *testing.T) {
	f := newFixture(t, nil) // default gateway answers 500

	status, body := f.do(http.MethodGet, "/api/payments/pay-session-1", customerToken, nil)
	require.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, obj(t, body)["message"], "payment gateway unavailable")
}
