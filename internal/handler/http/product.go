package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/inventory"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/httputil"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/validator"
)

// ProductHandler handles HTTP requests for the catalog and stock.
type ProductHandler struct {
	ledger *inventory.Ledger
	logger *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(ledger *inventory.Ledger, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{ledger: ledger, logger: logger}
}

// CreateProductRequest is the JSON request body for adding a product.
type CreateProductRequest struct {
	ID        string          `json:"id" validate:"omitempty,max=64"`
	Name      string          `json:"name" validate:"required,max=200"`
	Price     decimal.Decimal `json:"price" validate:"money"`
	Stock     int             `json:"stock" validate:"gte=0"`
	Available *bool           `json:"available"`
}

// RestockRequest is the JSON request body for a restock.
type RestockRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

// AvailabilityRequest is the JSON request body for toggling availability.
type AvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// CreateProduct handles POST /api/v1/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}
	p, err := h.ledger.AddProduct(r.Context(), inventory.NewProduct{
		ID:        req.ID,
		Name:      req.Name,
		Price:     req.Price,
		Stock:     req.Stock,
		Available: available,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: domain.NewProductView(p)})
}

// ListProducts handles GET /api/v1/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.ledger.ListProducts(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	views := make([]domain.ProductView, 0, len(products))
	for i := range products {
		views = append(views, domain.NewProductView(&products[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: views})
}

// GetProduct handles GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.ledger.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: domain.NewProductView(p)})
}

// Restock handles POST /api/v1/products/{id}/restock
func (h *ProductHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	p, err := h.ledger.Restock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: domain.NewProductView(p)})
}

// SetAvailability handles PUT /api/v1/products/{id}/availability
func (h *ProductHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	p, err := h.ledger.SetAvailability(r.Context(), chi.URLParam(r, "id"), *req.Available)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: domain.NewProductView(p)})
}

// Audit handles GET /api/v1/products/{id}/audit
func (h *ProductHandler) Audit(w http.ResponseWriter, r *http.Request) {
	a, err := h.ledger.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: a})
}
