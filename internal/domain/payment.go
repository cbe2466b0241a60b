package domain

import "github.com/shopspring/decimal"

// PaymentOutcome is the gateway's verdict on a charge.
type PaymentOutcome string

// Payment outcome constants.
const (
	PaymentSucceeded PaymentOutcome = "SUCCEEDED"
	PaymentFailed    PaymentOutcome = "FAILED"
)

// PaymentResult is returned by the payment gateway for a charge attempt.
type PaymentResult struct {
	PaymentID     string          `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	Outcome       PaymentOutcome  `json:"outcome"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// Succeeded reports whether the charge went through.
func (r *PaymentResult) Succeeded() bool {
	return r.Outcome == PaymentSucceeded
}
