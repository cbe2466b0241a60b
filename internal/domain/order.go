package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// OrderStatus is a state of the order workflow.
type OrderStatus string

// Order status constants.
const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusValidated OrderStatus = "VALIDATED"
	OrderStatusReserved  OrderStatus = "RESERVED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderType is how the order is fulfilled.
type OrderType string

// Order type constants.
const (
	OrderTypeDelivery OrderType = "DELIVERY"
	OrderTypePickup   OrderType = "PICKUP"
	OrderTypeDineIn   OrderType = "DINE_IN"
)

// PaymentMethod is the instrument used to pay for an order.
type PaymentMethod string

// Payment method constants.
const (
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodWallet PaymentMethod = "WALLET"
)

// ValidOrderTypes returns all order types.
func ValidOrderTypes() []OrderType {
	return []OrderType{OrderTypeDelivery, OrderTypePickup, OrderTypeDineIn}
}

// ValidPaymentMethods returns all payment methods.
func ValidPaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentMethodCard, PaymentMethodCash, PaymentMethodWallet}
}

// OrderLine is a snapshot of one product at the time the order was created.
// Later price changes on the product never alter it.
type OrderLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Subtotal returns the line's unit price times quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a customer order driven through the workflow.
type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	Type          OrderType       `json:"type"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Lines         []OrderLine     `json:"lines"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentID     string          `json:"payment_id,omitempty"`
	// FailureCode and FailureReason describe why the order reached FAILED.
	FailureCode   string `json:"failure_code,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	// CancelRequested is set when a cancellation arrives while the workflow
	// is running; it is honoured at the next step boundary.
	CancelRequested bool      `json:"cancel_requested"`
	CancelReason    string    `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusCreated,
		OrderStatusValidated,
		OrderStatusReserved,
		OrderStatusPaid,
		OrderStatusConfirmed,
		OrderStatusFailed,
		OrderStatusCancelled,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status OrderStatus) bool {
	return slices.Contains(ValidStatuses(), status)
}

// AllowedTransitions defines which status transitions are valid. Progress is
// monotonic along the happy path; FAILED and CANCELLED are terminal, and
// CANCELLED is unreachable once the order is CONFIRMED.
func AllowedTransitions() map[OrderStatus][]OrderStatus {
	return map[OrderStatus][]OrderStatus{
		OrderStatusCreated:   {OrderStatusValidated, OrderStatusFailed, OrderStatusCancelled},
		OrderStatusValidated: {OrderStatusReserved, OrderStatusFailed, OrderStatusCancelled},
		OrderStatusReserved:  {OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled},
		OrderStatusPaid:      {OrderStatusConfirmed, OrderStatusFailed, OrderStatusCancelled},
		OrderStatusConfirmed: {},
		OrderStatusFailed:    {},
		OrderStatusCancelled: {},
	}
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailed || s == OrderStatusCancelled
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target OrderStatus) bool {
	return slices.Contains(AllowedTransitions()[o.Status], target)
}

// TransitionTo moves the order to target or returns INVALID_STATE_TRANSITION.
func (o *Order) TransitionTo(target OrderStatus, now time.Time) error {
	if !o.CanTransitionTo(target) {
		return apperrors.InvalidStateTransition("order", o.ID, string(o.Status), string(target))
	}
	o.Status = target
	o.UpdatedAt = now
	return nil
}

// Fail moves the order to FAILED and records the cause.
func (o *Order) Fail(cause error, now time.Time) error {
	if err := o.TransitionTo(OrderStatusFailed, now); err != nil {
		return err
	}
	o.FailureCode = string(apperrors.CodeOf(cause))
	if appErr, ok := apperrors.As(cause); ok {
		o.FailureReason = appErr.Message
	} else {
		o.FailureReason = "internal error"
	}
	return nil
}

// ComputeTotal returns the sum of line subtotals.
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount returns the total number of units across lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// ReservationIDs returns the deterministic reservation id of every line.
func (o *Order) ReservationIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, ReservationIDFor(o.ID, l.ProductID))
	}
	return ids
}

// GenerateOrderNumber returns a human-facing order number of the form
// ORD-YYYYMMDD-XXXXXXXX.
func GenerateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
