package api

import (
	"net/http"
	"time"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/cart"
)

type cartItemResponse struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}

type cartResponse struct {
	Items     []cartItemResponse `json:"items"`
	Total     float64            `json:"total"`
	ItemCount int                `json:"itemCount"`
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type syncCartRequest struct {
	Items []addCartItemRequest `json:"items"`
}

// getCart returns the caller's cart.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	s, _ := identityFrom(r.Context())
	c, err := h.carts.Get(r.Context(), s.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// addCartItem adds quantity units of a product to the caller's cart.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId required")
		return
	}

	s, _ := identityFrom(r.Context())
	c, err := h.carts.Add(r.Context(), s.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// updateCartItem replaces a line's quantity.
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s, _ := identityFrom(r.Context())
	c, err := h.carts.SetQuantity(r.Context(), s.UserID, r.PathValue("productId"), req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// removeCartItem deletes a line from the caller's cart.
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	s, _ := identityFrom(r.Context())
	c, err := h.carts.Remove(r.Context(), s.UserID, r.PathValue("productId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// clearCart empties the caller's cart.
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	s, _ := identityFrom(r.Context())
	if err := h.carts.Clear(r.Context(), s.UserID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(&cart.Cart{UserID: s.UserID}))
}

// syncCart replaces the whole cart, used by clients merging a guest cart
// after login.
func (h *Handler) syncCart(w http.ResponseWriter, r *http.Request) {
	var req syncCartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]cart.SyncItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = cart.SyncItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	s, _ := identityFrom(r.Context())
	c, err := h.carts.Sync(r.Context(), s.UserID, items)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Price:     it.Price.InexactFloat64(),
			Quantity:  it.Quantity,
			AddedAt:   it.AddedAt,
		}
	}
	return cartResponse{
		Items:     items,
		Total:     c.Total().InexactFloat64(),
		ItemCount: c.ItemCount(),
	}
}
