package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/order"
)

type shippingAddressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type createOrderRequest struct {
	Pidx            string                 `json:"pidx"`
	TransactionID   string                 `json:"transactionId"`
	ProductID       string                 `json:"productId"`
	Quantity        int                    `json:"quantity"`
	TotalAmount     float64                `json:"totalAmount"`
	CustomerInfo    customerInfoRequest    `json:"customerInfo"`
	ShippingAddress shippingAddressRequest `json:"shippingAddress"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status            string     `json:"status"`
	Carrier           string     `json:"carrier,omitempty"`
	TrackingNumber    string     `json:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

type orderResponse struct {
	ID                 string               `json:"id"`
	Pidx               string               `json:"pidx"`
	TransactionID      string               `json:"transactionId,omitempty"`
	ProductID          string               `json:"productId"`
	UserID             string               `json:"userId"`
	Quantity           int                  `json:"quantity"`
	TotalAmount        float64              `json:"totalAmount"`
	CustomerInfo       customerInfoRequest  `json:"customerInfo"`
	ShippingAddress    shippingAddressRequest `json:"shippingAddress"`
	Status             string               `json:"status"`
	PaymentStatus      string               `json:"paymentStatus"`
	Carrier            string               `json:"carrier,omitempty"`
	TrackingNumber     string               `json:"trackingNumber,omitempty"`
	EstimatedDelivery  *time.Time           `json:"estimatedDelivery,omitempty"`
	DeliveredAt        *time.Time           `json:"deliveredAt,omitempty"`
	CancellationReason string               `json:"cancellationReason,omitempty"`
	RefundReason       string               `json:"refundReason,omitempty"`
	Timeline           map[string]time.Time `json:"timeline"`
	CreatedAt          time.Time            `json:"createdAt"`
}

// createOrder places an order for a settled payment session: the client
// confirms settlement via the payment lookup, then posts the session here.
// Replays with the same pidx resolve to 409 with the existing order's
// identity.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.Create(r.Context(), actorFrom(r.Context()), order.CreateRequest{
		Pidx:          req.Pidx,
		TransactionID: req.TransactionID,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		TotalAmount:   decimal.NewFromFloat(req.TotalAmount),
		CustomerInfo: order.CustomerInfo{
			Name:  req.CustomerInfo.Name,
			Email: req.CustomerInfo.Email,
			Phone: req.CustomerInfo.Phone,
		},
		ShippingAddress: order.ShippingAddress{
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			District:   req.ShippingAddress.District,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// listOrders returns the caller's orders, newest first.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListMine(r.Context(), actorFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// getOrder returns one order by internal id.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), actorFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// getOrderByPidx returns one order by payment session id. This is the
// reconciliation read after a 409 or a lost create response.
func (h *Handler) getOrderByPidx(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByPidx(r.Context(), actorFrom(r.Context()), r.PathValue("pidx"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// cancelOrder cancels an order while it is still confirmed or processing.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.Cancel(r.Context(), actorFrom(r.Context()), r.PathValue("id"), req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// refundOrder requests a refund for a delivered order.
func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason required")
		return
	}

	o, err := h.orders.Refund(r.Context(), actorFrom(r.Context()), r.PathValue("id"), req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// updateOrderStatus moves an order along the fulfillment graph. Admin only.
func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.AdminTransition(
		r.Context(),
		actorFrom(r.Context()),
		r.PathValue("id"),
		order.Status(req.Status),
		&order.ShippingUpdate{
			Carrier:           req.Carrier,
			TrackingNumber:    req.TrackingNumber,
			EstimatedDelivery: req.EstimatedDelivery,
		},
	)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		Pidx:          o.Pidx,
		TransactionID: o.TransactionID,
		ProductID:     o.ProductID,
		UserID:        o.UserID,
		Quantity:      o.Quantity,
		TotalAmount:   o.TotalAmount.InexactFloat64(),
		CustomerInfo: customerInfoRequest{
			Name:  o.CustomerInfo.Name,
			Email: o.CustomerInfo.Email,
			Phone: o.CustomerInfo.Phone,
		},
		ShippingAddress: shippingAddressRequest{
			Street:     o.ShippingAddress.Street,
			City:       o.ShippingAddress.City,
			District:   o.ShippingAddress.District,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		Carrier:            o.Shipping.Carrier,
		TrackingNumber:     o.Shipping.TrackingNumber,
		EstimatedDelivery:  o.Shipping.EstimatedDelivery,
		DeliveredAt:        o.Shipping.DeliveredAt,
		CancellationReason: o.CancellationReason,
		RefundReason:       o.RefundReason,
		Timeline:           o.Timeline,
		CreatedAt:          o.CreatedAt,
	}
}
