package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Andre27031510/vynlo-taste-sub001/pkg/health"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/middleware"
)

// RouterConfig tunes the HTTP middleware chain.
type RouterConfig struct {
	ServiceName          string
	SlowRequestThreshold time.Duration
	// RequestTimeout must cover a full submit, payment retries included.
	RequestTimeout time.Duration
}

// Handlers groups the API handlers mounted by NewRouter.
type Handlers struct {
	Orders    *OrderHandler
	Products  *ProductHandler
	Customers *CustomerHandler
}

// NewRouter creates a chi router with all order service routes registered.
func NewRouter(h Handlers, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger, cfg.SlowRequestThreshold))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Orders.SubmitOrder)
			r.Get("/in-flight", h.Orders.ListInFlight)
			r.Get("/{id}", h.Orders.GetOrder)
			r.Get("/{id}/status", h.Orders.GetOrderStatus)
			r.Post("/{id}/cancel", h.Orders.CancelOrder)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.Products.CreateProduct)
			r.Get("/", h.Products.ListProducts)
			r.Get("/{id}", h.Products.GetProduct)
			r.Get("/{id}/audit", h.Products.Audit)
			r.Post("/{id}/restock", h.Products.Restock)
			r.Put("/{id}/availability", h.Products.SetAvailability)
		})

		if h.Customers != nil {
			r.Route("/customers", func(r chi.Router) {
				r.Post("/", h.Customers.Register)
				r.Get("/{id}", h.Customers.GetCustomer)
				r.Put("/{id}/active", h.Customers.SetActive)
			})
		}
	})

	return r
}
