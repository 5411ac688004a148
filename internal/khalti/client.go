// Package khalti is a thin adapter over the Khalti ePayment gateway. It holds
// no business state and returns gateway data verbatim; order semantics live
// with the callers.
package khalti

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// MinimumAmount is the smallest transactable amount in paisa (minor units).
// The gateway rejects anything below Rs 10.
const MinimumAmount int64 = 1000

// ErrAmountBelowMinimum is returned by Initiate for amounts under
// MinimumAmount, before any call leaves the process.
var ErrAmountBelowMinimum = errors.New("amount below gateway minimum of 1000 paisa")

// Status is a payment session's settlement state as reported by the gateway.
// Only StatusCompleted authorizes order creation.
type Status string

const (
	StatusCompleted         Status = "Completed"
	StatusPending           Status = "Pending"
	StatusInitiated         Status = "Initiated"
	StatusRefunded          Status = "Refunded"
	StatusExpired           Status = "Expired"
	StatusUserCanceled      Status = "User canceled"
	StatusPartiallyRefunded Status = "Partially Refunded"
)

// GatewayError wraps a non-success gateway response. It is propagated as a
// distinct kind so callers can tell "your payment may not have gone through"
// apart from an internal fault.
type GatewayError struct {
	StatusCode int
	Detail     string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Detail)
}

// CustomerInfo is forwarded to the gateway for the hosted payment page.
type CustomerInfo struct {
	Name  string
	Email string
	Phone string
}

// ProductDetail describes one purchased line for the gateway receipt.
type ProductDetail struct {
	Identity   string
	Name       string
	TotalPrice int64
	Quantity   int
	UnitPrice  int64
}

// InitiateRequest starts a payment session. Amount is in paisa.
type InitiateRequest struct {
	Amount            int64
	PurchaseOrderID   string
	PurchaseOrderName string
	CustomerInfo      CustomerInfo
	ProductDetails    []ProductDetail
}

// InitiateResponse carries the session identity and the redirect target.
type InitiateResponse struct {
	Pidx       string
	PaymentURL string
	ExpiresAt  time.Time
	ExpiresIn  int64
}

// LookupResponse reports a session's settlement state. TotalAmount and Fee are
// in paisa.
type LookupResponse struct {
	Pidx          string
	TotalAmount   int64
	Status        Status
	TransactionID string
	Fee           int64
	Refunded      bool
}

// Config holds the gateway connection settings.
type Config struct {
	// BaseURL is the gateway API root, e.g. https://dev.khalti.com/api/v2.
	BaseURL string
	// SecretKey authenticates outbound calls ("Authorization: Key ...").
	SecretKey string
	// ReturnURL is where the gateway redirects the shopper after payment.
	ReturnURL string
	// WebsiteURL identifies the merchant site to the gateway.
	WebsiteURL string
	// Timeout bounds each outbound attempt. Defaults to 10s.
	Timeout time.Duration
	// LookupRetries is the number of additional lookup attempts after a
	// transport failure or 5xx. Defaults to 2. Initiate never retries.
	LookupRetries int
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client calls the Khalti ePayment endpoints.
type Client struct {
	http       *http.Client
	baseURL    string
	secretKey  string
	returnURL  string
	websiteURL string
	timeout    time.Duration
	retries    int
	backoff    time.Duration
}

// NewClient creates a gateway client from cfg, applying defaults.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.LookupRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 2
	}
	return &Client{
		http:       hc,
		baseURL:    cfg.BaseURL,
		secretKey:  cfg.SecretKey,
		returnURL:  cfg.ReturnURL,
		websiteURL: cfg.WebsiteURL,
		timeout:    timeout,
		retries:    retries,
		backoff:    500 * time.Millisecond,
	}
}

// Initiate starts a payment session and returns the redirect target. Amounts
// below MinimumAmount are rejected locally; gateway failures are passed
// through as *GatewayError without retries.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if req.Amount < MinimumAmount {
		return nil, ErrAmountBelowMinimum
	}

	body := encodeInitiate(c.returnURL, c.websiteURL, req)
	respBody, err := c.post(ctx, "/epayment/initiate/", body)
	if err != nil {
		return nil, err
	}
	return decodeInitiate(respBody)
}

// Lookup queries a session's settlement status. Transport failures and 5xx
// responses are retried with exponential backoff, each attempt bounded by the
// configured timeout; 4xx responses are returned immediately.
func (c *Client) Lookup(ctx context.Context, pidx string) (*LookupResponse, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("pidx")
	e.Str(pidx)
	e.ObjEnd()
	body := e.Bytes()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		respBody, err := c.post(ctx, "/epayment/lookup/", body)
		if err == nil {
			return decodeLookup(respBody)
		}

		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode < 500 {
			return nil, err
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "lookup pidx %s after %d attempts", pidx, c.retries+1)
}

// post sends one JSON request and returns the response body, mapping non-2xx
// responses to *GatewayError.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "call gateway %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(respBody)
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return nil, &GatewayError{StatusCode: resp.StatusCode, Detail: detail}
	}
	return respBody, nil
}

func encodeInitiate(returnURL, websiteURL string, req InitiateRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("return_url")
	e.Str(returnURL)
	e.FieldStart("website_url")
	e.Str(websiteURL)
	e.FieldStart("amount")
	e.Int64(req.Amount)
	e.FieldStart("purchase_order_id")
	e.Str(req.PurchaseOrderID)
	e.FieldStart("purchase_order_name")
	e.Str(req.PurchaseOrderName)
	e.FieldStart("customer_info")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(req.CustomerInfo.Name)
	e.FieldStart("email")
	e.Str(req.CustomerInfo.Email)
	e.FieldStart("phone")
	e.Str(req.CustomerInfo.Phone)
	e.ObjEnd()
	e.FieldStart("product_details")
	e.ArrStart()
	for _, d := range req.ProductDetails {
		e.ObjStart()
		e.FieldStart("identity")
		e.Str(d.Identity)
		e.FieldStart("name")
		e.Str(d.Name)
		e.FieldStart("total_price")
		e.Int64(d.TotalPrice)
		e.FieldStart("quantity")
		e.Int(d.Quantity)
		e.FieldStart("unit_price")
		e.Int64(d.UnitPrice)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func decodeInitiate(body []byte) (*InitiateResponse, error) {
	var out InitiateResponse
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "pidx":
			v, err := d.Str()
			out.Pidx = v
			return err
		case "payment_url":
			v, err := d.Str()
			out.PaymentURL = v
			return err
		case "expires_at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return errors.Wrap(err, "parse expires_at")
			}
			out.ExpiresAt = t
			return nil
		case "expires_in":
			v, err := d.Int64()
			out.ExpiresIn = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode initiate response")
	}
	if out.Pidx == "" {
		return nil, errors.New("gateway response missing pidx")
	}
	return &out, nil
}

func decodeLookup(body []byte) (*LookupResponse, error) {
	var out LookupResponse
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "pidx":
			v, err := d.Str()
			out.Pidx = v
			return err
		case "total_amount":
			v, err := d.Int64()
			out.TotalAmount = v
			return err
		case "status":
			v, err := d.Str()
			out.Status = Status(v)
			return err
		case "transaction_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			out.TransactionID = v
			return err
		case "fee":
			v, err := d.Int64()
			out.Fee = v
			return err
		case "refunded":
			v, err := d.Bool()
			out.Refunded = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode lookup response")
	}
	return &out, nil
}
