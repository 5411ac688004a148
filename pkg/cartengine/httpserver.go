package cartengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
)

// ServerError is a non-2xx response from the cart API.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("cart api: %d: %s", e.StatusCode, e.Message)
}

// HTTPServer talks to the storefront cart API over HTTP, implementing
// Server.
type HTTPServer struct {
	baseURL string
	client  *http.Client
}

var _ Server = (*HTTPServer)(nil)

// NewHTTPServer builds a client for the cart API rooted at baseURL
// (e.g. "https://shop.example.com"). A nil client gets a 15s timeout
// default.
func NewHTTPServer(baseURL string, client *http.Client) *HTTPServer {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPServer{baseURL: baseURL, client: client}
}

// cartPayload mirrors the API cart envelope. Totals are recomputed locally,
// only the lines matter here.
type cartPayload struct {
	Items []Item `json:"items"`
}

func (h *HTTPServer) Fetch(ctx context.Context, s Session) ([]Item, error) {
	var cart cartPayload
	if err := h.do(ctx, s, http.MethodGet, "/api/cart", nil, &cart); err != nil {
		return nil, err
	}
	return cart.Items, nil
}

func (h *HTTPServer) Add(ctx context.Context, s Session, productID string, quantity int) error {
	body := map[string]any{"productId": productID, "quantity": quantity}
	return h.do(ctx, s, http.MethodPost, "/api/cart/items", body, nil)
}

func (h *HTTPServer) SetQuantity(ctx context.Context, s Session, productID string, quantity int) error {
	body := map[string]any{"quantity": quantity}
	return h.do(ctx, s, http.MethodPut, "/api/cart/items/"+url.PathEscape(productID), body, nil)
}

func (h *HTTPServer) Remove(ctx context.Context, s Session, productID string) error {
	return h.do(ctx, s, http.MethodDelete, "/api/cart/items/"+url.PathEscape(productID), nil, nil)
}

func (h *HTTPServer) Clear(ctx context.Context, s Session) error {
	return h.do(ctx, s, http.MethodDelete, "/api/cart", nil, nil)
}

func (h *HTTPServer) Sync(ctx context.Context, s Session, items []SyncItem) ([]Item, error) {
	body := map[string]any{"items": items}
	var cart cartPayload
	if err := h.do(ctx, s, http.MethodPut, "/api/cart", body, &cart); err != nil {
		return nil, err
	}
	return cart.Items, nil
}

func (h *HTTPServer) do(ctx context.Context, s Session, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "call cart api")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &ServerError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
