// Package mock provides an in-process payment gateway. It backs the service
// when no PAYMENT_GATEWAY_URL is configured and lets tests script outcomes.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/payment"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// Step scripts the outcome of one Charge call.
type Step struct {
	// Err is returned as a transport failure.
	Err error
	// Decline makes the gateway answer with Outcome FAILED and this reason.
	Decline string
	// Delay holds the call for this long, or until ctx is done.
	Delay time.Duration
	// Block holds the call until the channel is closed or ctx is done.
	Block <-chan struct{}
}

// Gateway is a scripted payment.Gateway. Unscripted calls succeed.
type Gateway struct {
	mu       sync.Mutex
	script   []Step
	charges  map[string]domain.PaymentResult
	refunds  map[string]payment.RefundRequest
	calls    int
	refundFn func(payment.RefundRequest) error
}

// New creates a gateway with no scripted steps.
func New() *Gateway {
	return &Gateway{
		charges: make(map[string]domain.PaymentResult),
		refunds: make(map[string]payment.RefundRequest),
	}
}

var _ payment.Gateway = (*Gateway)(nil)

// Enqueue appends steps consumed by subsequent Charge calls in order.
func (g *Gateway) Enqueue(steps ...Step) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, steps...)
}

// FailNext scripts n transport failures.
func (g *Gateway) FailNext(n int, err error) {
	for range n {
		g.Enqueue(Step{Err: err})
	}
}

// OnRefund installs a hook run before every refund; a non-nil return fails it.
func (g *Gateway) OnRefund(fn func(payment.RefundRequest) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundFn = fn
}

// Charge implements payment.Gateway.
func (g *Gateway) Charge(ctx context.Context, req payment.ChargeRequest) (*domain.PaymentResult, error) {
	g.mu.Lock()
	g.calls++
	var step Step
	if len(g.script) > 0 {
		step = g.script[0]
		g.script = g.script[1:]
	}
	g.mu.Unlock()

	if err := wait(ctx, step); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prior, ok := g.charges[req.IdempotencyKey]; ok && prior.Succeeded() {
		return &prior, nil
	}
	result := domain.PaymentResult{
		PaymentID: "pay_" + uuid.NewString(),
		Amount:    req.Amount,
		Method:    req.Method,
		Outcome:   domain.PaymentSucceeded,
	}
	if step.Decline != "" {
		result.Outcome = domain.PaymentFailed
		result.FailureReason = step.Decline
	}
	g.charges[req.IdempotencyKey] = result
	return &result, nil
}

func wait(ctx context.Context, step Step) error {
	if step.Block != nil {
		select {
		case <-step.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Refund implements payment.Gateway. Refunding twice with the same key is a no-op.
func (g *Gateway) Refund(_ context.Context, req payment.RefundRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundFn != nil {
		if err := g.refundFn(req); err != nil {
			return err
		}
	}
	if _, ok := g.refunds[req.IdempotencyKey]; ok {
		return nil
	}
	found := false
	for _, c := range g.charges {
		if c.PaymentID == req.PaymentID && c.Succeeded() {
			found = true
			break
		}
	}
	if !found {
		return apperrors.InvalidInput("unknown payment " + req.PaymentID)
	}
	g.refunds[req.IdempotencyKey] = req
	return nil
}

// Calls returns how many Charge calls were made.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Charged reports whether a successful charge exists for the key.
func (g *Gateway) Charged(idempotencyKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.charges[idempotencyKey]
	return ok && c.Succeeded()
}

// Refunded returns the refunds recorded so far.
func (g *Gateway) Refunded() []payment.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]payment.RefundRequest, 0, len(g.refunds))
	for _, r := range g.refunds {
		out = append(out, r)
	}
	return out
}
