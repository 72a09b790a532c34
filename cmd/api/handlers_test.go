package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(t *testing.T) (http.Handler, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.InfoLevel)
	srv := &server{logger: zap.New(core)}

	r := chi.NewRouter()
	r.Use(requestLogger(srv.logger))
	r.Route("/api/v1", srv.mountStorefront)
	r.Route("/admin", srv.mountAdmin)
	return r, logs
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty cart", &checkout.Error{Reason: checkout.ReasonEmptyCart}, http.StatusUnprocessableEntity, "empty_cart"},
		{"invalid address", &checkout.Error{Reason: checkout.ReasonInvalidAddress}, http.StatusUnprocessableEntity, "invalid_address"},
		{"insufficient stock", &checkout.Error{Reason: checkout.ReasonInsufficientStock, Err: database.ErrInsufficientStock}, http.StatusConflict, "insufficient_stock"},
		{"bad quantity", cart.ErrInvalidQuantity, http.StatusBadRequest, "invalid_request"},
		{"missing actor", cart.ErrInvalidActor, http.StatusBadRequest, "invalid_request"},
		{"bad cursor", fmt.Errorf("%w: illegal base64", store.ErrMalformedCursor), http.StatusBadRequest, "invalid_cursor"},
		{"wrapped not found", fmt.Errorf("load: %w", database.ErrOrderNotFound), http.StatusNotFound, "not_found"},
		{"missing line", database.ErrCartItemNotFound, http.StatusNotFound, "not_found"},
		{"illegal transition", fmt.Errorf("%w: shipped to pending", checkout.ErrIllegalTransition), http.StatusConflict, "illegal_transition"},
		{"stale version", database.ErrOptimisticLockFailed, http.StatusConflict, "conflict"},
		{"duplicate", fmt.Errorf("coupon SAVE10: %w", database.ErrDuplicate), http.StatusConflict, "conflict"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRespondErrHidesInternalDetail(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	srv := &server{logger: zap.New(core)}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	srv.respondErr(rec, req, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal", body["error"])
	assert.NotContains(t, body["message"], "password")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "request failed", logs.All()[0].Message)
}

func TestMalformedRequestsRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"checkout body", http.MethodPost, "/api/v1/checkout", "{"},
		{"add item body", http.MethodPost, "/api/v1/cart/items", "not json"},
		{"line id", http.MethodPatch, "/api/v1/cart/items/abc", `{"quantity":1}`},
		{"negative line id", http.MethodDelete, "/api/v1/cart/items/-3", ""},
		{"order id", http.MethodGet, "/api/v1/orders/zero", ""},
		{"receipt id", http.MethodGet, "/api/v1/orders/0/receipt", ""},
		{"product id", http.MethodGet, "/api/v1/products/x", ""},
		{"tax actor", http.MethodPut, "/admin/carts/nobody/tax", `{"tax":"1.00"}`},
		{"negative tax", http.MethodPut, "/admin/carts/user:42/tax", `{"tax":"-1.00"}`},
		{"coupon kind", http.MethodPost, "/admin/coupons", `{"code":"SAVE10","kind":"bogo","value":"10"}`},
		{"coupon code", http.MethodPost, "/admin/coupons", `{"code":"  ","kind":"percentage","value":"10"}`},
		{"promotion window", http.MethodPost, "/admin/promotions",
			`{"name":"Spring","product_ids":[1],"discount_percent":"10","starts_at":"2024-02-01T00:00:00Z","ends_at":"2024-01-01T00:00:00Z"}`},
		{"promotion percent", http.MethodPost, "/admin/promotions",
			`{"name":"Spring","product_ids":[1],"discount_percent":"120","starts_at":"2024-01-01T00:00:00Z","ends_at":"2024-02-01T00:00:00Z"}`},
		{"product price", http.MethodPost, "/admin/products", `{"sku":"W-1","name":"Widget","price":"0","stock_quantity":5}`},
		{"status id", http.MethodPost, "/admin/orders/abc/status", `{"status":"shipped"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "invalid_request", decodeError(t, rec)["error"])
		})
	}
}

func TestCreateAddressReportsMissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/addresses", strings.NewReader(`{"full_name":"Ada","country":"GB"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error   string   `json:"error"`
		Missing []string `json:"missing"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "invalid_address", body.Error)
	assert.Equal(t, []string{"line1", "city", "postal_code"}, body.Missing)
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	router, logs := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/nope", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/v1/products/nope", fields["path"])
	assert.EqualValues(t, http.StatusBadRequest, fields["status"])
}
