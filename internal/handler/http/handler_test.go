package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/customer"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/inventory"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/order"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/payment/mock"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository/memory"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/health"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

// --- Test Helpers ---

type testEnv struct {
	router    http.Handler
	ledger    *inventory.Ledger
	gateway   *mock.Gateway
	customers *customer.Directory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Discard()
	exec := retry.NewExecutor(retry.DefaultConfig(), log,
		retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))

	env := &testEnv{
		ledger:    inventory.NewLedger(memory.NewProductStore(), exec, log),
		gateway:   mock.New(),
		customers: customer.NewDirectory(memory.NewCustomerRepository(), exec, log),
	}
	svc := order.NewService(memory.NewOrderRepository(), env.ledger, env.gateway, exec, log, order.DefaultConfig(),
		order.WithCustomerDirectory(env.customers),
	)

	env.router = NewRouter(Handlers{
		Orders:    NewOrderHandler(svc, log),
		Products:  NewProductHandler(env.ledger, log),
		Customers: NewCustomerHandler(env.customers, log),
	}, health.NewHandler(), log, RouterConfig{ServiceName: "handler-test", SlowRequestThreshold: time.Hour})

	_, err := env.customers.Register(context.Background(), customer.RegisterRequest{
		ID: "cust-1", Name: "Ada", Email: "ada@example.com",
	})
	require.NoError(t, err)
	_, err = env.ledger.AddProduct(context.Background(), inventory.NewProduct{
		ID: "pizza", Name: "Margherita", Price: decimal.RequireFromString("12.50"), Stock: 5, Available: true,
	})
	require.NoError(t, err)
	return env
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func data[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func orderBody(qty int) map[string]any {
	return map[string]any{
		"customer_id":    "cust-1",
		"type":           "DELIVERY",
		"payment_method": "CARD",
		"lines":          []map[string]any{{"product_id": "pizza", "quantity": qty}},
	}
}

func (e *testEnv) stock(t *testing.T) int {
	t.Helper()
	p, err := e.ledger.GetProduct(context.Background(), "pizza")
	require.NoError(t, err)
	return p.StockQuantity
}

// --- Orders ---

func TestSubmitOrder_Confirmed(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/orders", orderBody(3))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := data[map[string]any](t, resp)
	assert.Equal(t, "CONFIRMED", view["status"])
	assert.Equal(t, "37.50", view["total_amount"])
	assert.Equal(t, "/api/v1/orders/"+view["id"].(string), rec.Header().Get("Location"))
	assert.Equal(t, 2, env.stock(t))
}

func TestSubmitOrder_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/orders", orderBody(6))

	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Error.Code)
	assert.Equal(t, 5, env.stock(t))

	location := rec.Header().Get("Location")
	require.NotEmpty(t, location)
	rec, resp = env.do(t, http.MethodGet, location, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := data[map[string]any](t, resp)
	assert.Equal(t, "FAILED", view["status"])
	assert.Equal(t, "INSUFFICIENT_STOCK", view["failure_code"])
}

func TestSubmitOrder_IdempotencyKeyReplaysOrder(t *testing.T) {
	env := newTestEnv(t)

	rec1, resp1 := env.do(t, http.MethodPost, "/api/v1/orders", orderBody(2), IdempotencyKeyHeader, "client-key-1")
	rec2, resp2 := env.do(t, http.MethodPost, "/api/v1/orders", orderBody(2), IdempotencyKeyHeader, "client-key-1")

	require.Equal(t, http.StatusCreated, rec1.Code)
	require.Equal(t, http.StatusCreated, rec2.Code)
	assert.Equal(t, "client-key-1", data[map[string]any](t, resp1)["id"])
	assert.Equal(t, "client-key-1", data[map[string]any](t, resp2)["id"])
	assert.Equal(t, 3, env.stock(t))
	assert.Equal(t, 1, env.gateway.Calls())
}

func TestSubmitOrder_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    any
		headers []string
		status  int
		code    string
	}{
		{"malformed json", `{"lines": [`, nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"key mismatch", map[string]any{"order_id": "a"}, []string{IdempotencyKeyHeader, "b"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"no lines", map[string]any{"customer_id": "cust-1", "type": "PICKUP", "payment_method": "CASH"}, nil, http.StatusBadRequest, "ORDER_VALIDATION_ERROR"},
		{"unknown customer", map[string]any{
			"customer_id": "ghost", "type": "PICKUP", "payment_method": "CASH",
			"lines": []map[string]any{{"product_id": "pizza", "quantity": 1}},
		}, nil, http.StatusNotFound, "USER_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/api/v1/orders", tt.body, tt.headers...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
	assert.Equal(t, 5, env.stock(t))
}

func TestSubmitOrder_RequiresJSONContentType(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("customer_id=cust-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestGetOrderStatus(t *testing.T) {
	env := newTestEnv(t)
	_, resp := env.do(t, http.MethodPost, "/api/v1/orders", orderBody(1), IdempotencyKeyHeader, "ord-status")
	require.Nil(t, resp.Error)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/orders/ord-status/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	view := data[map[string]any](t, resp)
	assert.Equal(t, "CONFIRMED", view["status"])
	assert.Equal(t, true, view["terminal"])
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/orders/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", resp.Error.Code)
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)
	_, resp := env.do(t, http.MethodPost, "/api/v1/orders", orderBody(1), IdempotencyKeyHeader, "ord-cancel")
	require.Nil(t, resp.Error)

	t.Run("confirmed order cannot be cancelled", func(t *testing.T) {
		rec, resp := env.do(t, http.MethodPost, "/api/v1/orders/ord-cancel/cancel", map[string]string{"reason": "changed mind"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "INVALID_STATE_TRANSITION", resp.Error.Code)
	})

	t.Run("failed order cancel is a no-op", func(t *testing.T) {
		_, _ = env.do(t, http.MethodPost, "/api/v1/orders", orderBody(50), IdempotencyKeyHeader, "ord-failed")

		rec, resp := env.do(t, http.MethodPost, "/api/v1/orders/ord-failed/cancel", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "FAILED", data[map[string]any](t, resp)["status"])
	})

	t.Run("unknown order", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/orders/missing/cancel", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListInFlight(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.do(t, http.MethodPost, "/api/v1/orders", orderBody(1))

	rec, resp := env.do(t, http.MethodGet, "/api/v1/orders/in-flight?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, data[[]map[string]any](t, resp))

	rec, _ = env.do(t, http.MethodGet, "/api/v1/orders/in-flight?older_than=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Products ---

func TestProducts_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/products", map[string]any{
		"id": "salad", "name": "Caesar", "price": "8.90", "stock": 4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := data[map[string]any](t, resp)
	assert.Equal(t, "8.90", view["price"])
	assert.Equal(t, true, view["available"])

	rec, resp = env.do(t, http.MethodPost, "/api/v1/products/salad/restock", map[string]int{"quantity": 6})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 10, data[map[string]any](t, resp)["stock_quantity"])

	rec, resp = env.do(t, http.MethodPut, "/api/v1/products/salad/availability", map[string]bool{"available": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, data[map[string]any](t, resp)["in_stock"])

	rec, resp = env.do(t, http.MethodGet, "/api/v1/products/salad/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := data[inventory.Audit](t, resp)
	assert.True(t, audit.Balanced)
	assert.Equal(t, 10, audit.TotalStocked)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, data[[]map[string]any](t, resp), 2)
}

func TestProducts_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/products", map[string]any{"id": "pizza", "name": "Again", "price": "1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PRODUCT_ALREADY_EXISTS", resp.Error.Code)

	rec, resp = env.do(t, http.MethodPost, "/api/v1/products", map[string]any{"id": "soup", "name": "Pho", "price": "9.999"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error.Fields, "price")

	rec, resp = env.do(t, http.MethodPost, "/api/v1/products/pizza/restock", map[string]int{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error.Fields, "quantity")

	rec, resp = env.do(t, http.MethodGet, "/api/v1/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", resp.Error.Code)
}

// --- Customers ---

func TestCustomers(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/customers", map[string]string{
		"id": "cust-2", "name": "Grace", "email": "grace@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/customers", map[string]string{
		"id": "cust-2", "name": "Grace", "email": "grace@example.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USER_ALREADY_EXISTS", resp.Error.Code)

	rec, resp = env.do(t, http.MethodPut, "/api/v1/customers/cust-2/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, data[map[string]any](t, resp)["active"])

	body := orderBody(1)
	body["customer_id"] = "cust-2"
	rec, resp = env.do(t, http.MethodPost, "/api/v1/orders", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "USER_INACTIVE", resp.Error.Code)
}

// --- Health ---

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
