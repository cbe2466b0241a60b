package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
)

// CustomerHeader identifies the calling customer for log enrichment.
const CustomerHeader = "X-Customer-ID"

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, customer_id, trace_id and span_id. Handlers retrieve it
// with logger.FromContext.
//
// Mount it after RequestLogging and Tracing so both ids are available.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get(CustomerHeader); id != "" {
				ctx = logger.WithCustomerID(ctx, id)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
