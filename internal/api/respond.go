package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Jungeey/ArtVibe-sub000/internal/domain/cart"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/order"
	"github.com/Jungeey/ArtVibe-sub000/internal/domain/product"
	"github.com/Jungeey/ArtVibe-sub000/internal/khalti"
)

// errorResponse is the error envelope for every non-2xx response. Available is
// set on stock rejections; OrderID and Pidx on pidx conflicts, so the client
// can fetch the already-created order instead of retrying the write.
type errorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Available *int   `json:"available,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
	Pidx      string `json:"pidx,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// respondError maps domain errors onto the protocol. Validation and business
// rejections carry enough detail for the shopper to correct the input; system
// and storage errors are logged with context and returned opaque.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *order.ValidationError
		placedErr     *order.AlreadyPlacedError
		stockErr      *product.InsufficientStockError
		transitionErr *order.TransitionError
		gatewayErr    *khalti.GatewayError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())

	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, cart.ErrInvalidQuantity.Error())

	case errors.Is(err, khalti.ErrAmountBelowMinimum):
		writeError(w, http.StatusBadRequest, khalti.ErrAmountBelowMinimum.Error())

	case errors.Is(err, order.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")

	case errors.Is(err, order.ErrNotOwner), errors.Is(err, order.ErrAdminOnly):
		writeError(w, http.StatusForbidden, "not allowed")

	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")

	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")

	case errors.As(err, &placedErr):
		// Idempotent replay: not a failure. The client resolves the conflict
		// by fetching the existing order.
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: "order already placed for this payment session",
			OrderID: placedErr.Existing.ID,
			Pidx:    placedErr.Existing.Pidx,
		})

	case errors.As(err, &stockErr):
		available := stockErr.Available
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:      http.StatusUnprocessableEntity,
			Message:   stockErr.Error(),
			Available: &available,
		})

	case errors.As(err, &transitionErr):
		writeError(w, http.StatusUnprocessableEntity, transitionErr.Error())

	case errors.As(err, &gatewayErr):
		zctx.From(r.Context()).Error("payment gateway error",
			zap.Int("gateway_status", gatewayErr.StatusCode),
			zap.String("detail", gatewayErr.Detail),
		)
		writeError(w, http.StatusBadGateway, "payment gateway unavailable, your payment may not have gone through; check the payment status before retrying")

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error, retry or contact support with your request id")
	}
}

// decodeBody unmarshals a JSON request body into v, limited to 1 MiB.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
