package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/customer"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/httputil"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/validator"
)

// CustomerHandler handles HTTP requests for customer endpoints.
type CustomerHandler struct {
	directory *customer.Directory
	logger    *slog.Logger
}

// NewCustomerHandler creates a new customer HTTP handler.
func NewCustomerHandler(directory *customer.Directory, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{directory: directory, logger: logger}
}

// SetActiveRequest is the JSON request body for enabling or disabling a customer.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// Register handles POST /api/v1/customers
func (h *CustomerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req customer.RegisterRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	c, err := h.directory.Register(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: c})
}

// GetCustomer handles GET /api/v1/customers/{id}
func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.directory.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: c})
}

// SetActive handles PUT /api/v1/customers/{id}/active
func (h *CustomerHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.directory.SetActive(r.Context(), id, *req.Active); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	c, err := h.directory.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: c})
}
