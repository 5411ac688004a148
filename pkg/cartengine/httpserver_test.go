package cartengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPServerFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/cart", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"productId": "p1", "name": "Mithila Painting", "price": 1200.50, "quantity": 2},
			},
			"total":     2401.00,
			"itemCount": 2,
		})
	}))
	defer ts.Close()

	srv := NewHTTPServer(ts.URL, nil)
	items, err := srv.Fetch(context.Background(), Session{UserID: "u1", Token: "tok"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("1200.5")))
	assert.Equal(t, 2, items[0].Quantity)
}

func TestHTTPServerAdd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/cart/items", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body["productId"])
		assert.Equal(t, float64(3), body["quantity"])

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[],"total":0,"itemCount":0}`))
	}))
	defer ts.Close()

	srv := NewHTTPServer(ts.URL, nil)
	require.NoError(t, srv.Add(context.Background(), Session{Token: "tok"}, "p1", 3))
}

func TestHTTPServerSync(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/cart", r.URL.Path)

		var body struct {
			Items []SyncItem `json:"items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Items, 1)
		assert.Equal(t, "p1", body.Items[0].ProductID)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"productId": "p1", "price": 10, "quantity": 2},
			},
		})
	}))
	defer ts.Close()

	srv := NewHTTPServer(ts.URL, nil)
	items, err := srv.Sync(context.Background(), Session{Token: "tok"}, []SyncItem{{ProductID: "p1", Quantity: 5}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestHTTPServerErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"message":"insufficient stock","available":1}`))
	}))
	defer ts.Close()

	srv := NewHTTPServer(ts.URL, nil)
	err := srv.Add(context.Background(), Session{Token: "tok"}, "p1", 99)
	require.Error(t, err)

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusUnprocessableEntity, serverErr.StatusCode)
	assert.Equal(t, "insufficient stock", serverErr.Message)
}

func TestHTTPServerErrorWithoutBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	srv := NewHTTPServer(ts.URL, nil)
	err := srv.Clear(context.Background(), Session{Token: "tok"})

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusBadGateway, serverErr.StatusCode)
	assert.Equal(t, "Bad Gateway", serverErr.Message)
}

func TestHTTPServerRemoveEscapesProductID(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer ts.Close()

	srv := NewHTTPServer(ts.URL, nil)
	require.NoError(t, srv.Remove(context.Background(), Session{Token: "tok"}, "p/1"))
	assert.Equal(t, "/api/cart/items/p%2F1", gotPath)
}
