// Package api is the HTTP surface of the storefront. Handlers decode requests,
// delegate to the domain services, and map domain errors onto the protocol.
package api

import (
	"net/http"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/auth"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/cart"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/order"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/product"
	"github.com/Jungeey/ArtVibe-sub000/internal/khalti"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
	// SessionPepper is the HMAC key for hashing bearer tokens before lookup.
	SessionPepper []byte
}

// Handler serves the storefront API.
type Handler struct {
	products     product.Repository
	orders       *order.Service
	carts        *cart.Service
	gateway      *khalti.Client
	sessions     auth.Repository
	pepper       []byte
	imageBaseURL string
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	orders *order.Service,
	carts *cart.Service,
	gateway *khalti.Client,
	sessions auth.Repository,
) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		carts:        carts,
		gateway:      gateway,
		sessions:     sessions,
		pepper:       cfg.SessionPepper,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes registers every API route on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.HandleFunc("POST /api/payments/initiate", h.authenticated(h.initiatePayment))
	mux.HandleFunc("GET /api/payments/{pidx}", h.authenticated(h.lookupPayment))

	mux.HandleFunc("POST /api/orders", h.authenticated(h.createOrder))
	mux.HandleFunc("GET /api/orders", h.authenticated(h.listOrders))
	mux.HandleFunc("GET /api/orders/{id}", h.authenticated(h.getOrder))
	mux.HandleFunc("GET /api/orders/pidx/{pidx}", h.authenticated(h.getOrderByPidx))
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.authenticated(h.cancelOrder))
	mux.HandleFunc("POST /api/orders/{id}/refund", h.authenticated(h.refundOrder))
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.authenticated(h.updateOrderStatus))

	mux.HandleFunc("GET /api/cart", h.authenticated(h.getCart))
	mux.HandleFunc("POST /api/cart/items", h.authenticated(h.addCartItem))
	mux.HandleFunc("PUT /api/cart/items/{productId}", h.authenticated(h.updateCartItem))
	mux.HandleFunc("DELETE /api/cart/items/{productId}", h.authenticated(h.removeCartItem))
	mux.HandleFunc("DELETE /api/cart", h.authenticated(h.clearCart))
	mux.HandleFunc("PUT /api/cart", h.authenticated(h.syncCart))
}
