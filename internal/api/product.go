package api

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/product"
)

type productResponse struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Price         float64      `json:"price"`
	Category      string       `json:"category"`
	Image         productImage `json:"image"`
	StockQuantity int          `json:"stockQuantity"`
	Status        string       `json:"status"`
}

type productImage struct {
	Thumbnail string `json:"thumbnail"`
	Full      string `json:"full"`
}

// listProducts returns the sellable catalog.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, errors.Wrap(err, "list products"))
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = h.toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// getProduct returns a single product by ID.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(*p))
}

// toProductResponse converts a domain product into its response shape. Image
// paths are prefixed with the configured imageBaseURL.
func (h *Handler) toProductResponse(p product.Product) productResponse {
	base := h.imageBaseURL
	return productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price.InexactFloat64(),
		Category: p.Category,
		Image: productImage{
			Thumbnail: base + p.Image.Thumbnail,
			Full:      base + p.Image.Full,
		},
		StockQuantity: p.StockQuantity,
		Status:        string(p.Status),
	}
}
