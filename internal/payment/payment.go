// Package payment defines the port the order workflow charges through.
package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
)

// ChargeRequest asks the gateway to take money for an order. IdempotencyKey
// is stable per order so a re-driven charge is not taken twice.
type ChargeRequest struct {
	IdempotencyKey string               `json:"idempotency_key"`
	OrderID        string               `json:"order_id"`
	CustomerID     string               `json:"customer_id"`
	Amount         decimal.Decimal      `json:"amount"`
	Method         domain.PaymentMethod `json:"method"`
}

// RefundRequest reverses a successful charge.
type RefundRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	PaymentID      string          `json:"payment_id"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason,omitempty"`
}

// Gateway is an external payment processor.
//
// Charge returns a result with Outcome FAILED, and a nil error, when the
// processor declines. A non-nil error means the outcome is unknown and the
// call may be retried with the same idempotency key.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*domain.PaymentResult, error)
	Refund(ctx context.Context, req RefundRequest) error
}
