package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/product"
	"github.com/Jungeey/ArtVibe-sub000/internal/khalti"
)

type customerInfoRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type initiatePaymentRequest struct {
	ProductID    string              `json:"productId"`
	Quantity     int                 `json:"quantity"`
	CustomerInfo customerInfoRequest `json:"customerInfo"`
}

type initiatePaymentResponse struct {
	Pidx        string    `json:"pidx"`
	PaymentURL  string    `json:"paymentUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TotalAmount float64   `json:"totalAmount"`
}

type lookupPaymentResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int64  `json:"totalAmount"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	Fee           int64  `json:"fee"`
	Refunded      bool   `json:"refunded"`
}

// initiatePayment starts a gateway payment session for one product. The total
// is computed server-side from the catalog price, never taken from the client.
func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId required")
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !p.Sellable() || p.StockQuantity < req.Quantity {
		respondError(w, r, &product.InsufficientStockError{ProductID: p.ID, Available: p.StockQuantity})
		return
	}

	total := p.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	amountPaisa := total.Mul(decimal.NewFromInt(100)).IntPart()
	unitPaisa := p.Price.Mul(decimal.NewFromInt(100)).IntPart()

	resp, err := h.gateway.Initiate(r.Context(), khalti.InitiateRequest{
		Amount:            amountPaisa,
		PurchaseOrderID:   uuid.New().String(),
		PurchaseOrderName: p.Name,
		CustomerInfo: khalti.CustomerInfo{
			Name:  req.CustomerInfo.Name,
			Email: req.CustomerInfo.Email,
			Phone: req.CustomerInfo.Phone,
		},
		ProductDetails: []khalti.ProductDetail{{
			Identity:   p.ID,
			Name:       p.Name,
			TotalPrice: amountPaisa,
			Quantity:   req.Quantity,
			UnitPrice:  unitPaisa,
		}},
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, initiatePaymentResponse{
		Pidx:        resp.Pidx,
		PaymentURL:  resp.PaymentURL,
		ExpiresAt:   resp.ExpiresAt,
		TotalAmount: total.InexactFloat64(),
	})
}

// lookupPayment reports a payment session's settlement status verbatim. This
// is the path a shopper uses to find out whether they were charged before
// retrying a failed checkout.
func (h *Handler) lookupPayment(w http.ResponseWriter, r *http.Request) {
	pidx := r.PathValue("pidx")
	if pidx == "" {
		writeError(w, http.StatusBadRequest, "pidx required")
		return
	}

	resp, err := h.gateway.Lookup(r.Context(), pidx)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lookupPaymentResponse{
		Pidx:          resp.Pidx,
		TotalAmount:   resp.TotalAmount,
		Status:        string(resp.Status),
		TransactionID: resp.TransactionID,
		Fee:           resp.Fee,
		Refunded:      resp.Refunded,
	})
}
