package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/order"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/httputil"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/validator"
)

// IdempotencyKeyHeader carries a client-chosen order id.
const IdempotencyKeyHeader = "Idempotency-Key"

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *order.Service
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *order.Service, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

// CancelOrderRequest is the optional JSON body of a cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// SubmitOrder handles POST /api/v1/orders. The order runs to a terminal
// status before the response is written. A failed order is reported as an
// error; its id is returned in the Location header.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req order.SubmitOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		if req.OrderID != "" && req.OrderID != key {
			httputil.WriteValidationError(w, r, errors.New("order_id does not match the Idempotency-Key header"))
			return
		}
		req.OrderID = key
	}

	ctx := r.Context()
	if req.CustomerID != "" {
		ctx = logger.WithCustomerID(ctx, req.CustomerID)
	}

	o, err := h.service.SubmitOrder(ctx, req)
	if o != nil {
		w.Header().Set("Location", "/api/v1/orders/"+o.ID)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: domain.NewOrderDetailView(o)})
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: domain.NewOrderDetailView(o)})
}

// GetOrderStatus handles GET /api/v1/orders/{id}/status
func (h *OrderHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := h.service.GetOrderStatus(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: domain.OrderStatusView{
		ID:       id,
		Status:   status,
		Terminal: status.IsTerminal(),
	}})
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel. A cancel that lands
// while a workflow step is running is accepted with 202.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteValidationError(w, r, err)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	o, err := h.service.CancelOrder(r.Context(), id, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if o.CancelRequested && !o.Status.IsTerminal() {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: domain.NewOrderStatusView(o)})
}

// ListInFlight handles GET /api/v1/orders/in-flight?older_than=5m&limit=50
func (h *OrderHandler) ListInFlight(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			httputil.WriteValidationError(w, r, errors.New("older_than must be a non-negative duration such as 5m"))
			return
		}
		olderThan = d
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			httputil.WriteValidationError(w, r, errors.New("limit must be an integer between 1 and 500"))
			return
		}
		limit = n
	}

	orders, err := h.service.ListInFlight(r.Context(), olderThan, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	views := make([]domain.OrderSummaryView, 0, len(orders))
	for i := range orders {
		views = append(views, domain.NewOrderSummaryView(&orders[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: views})
}
