// Package httpgateway talks to a JSON payment processor over HTTP.
package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/payment"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/httpclient"
)

const serviceName = "payment-gateway"

// Gateway is a payment.Gateway over HTTP. Requests go through a circuit
// breaker and the client's outbound rate limit; retrying is left to the
// caller's retry policy.
type Gateway struct {
	baseURL string
	client  *httpclient.BreakerClient
	logger  *slog.Logger
}

// New creates a gateway rooted at baseURL.
func New(baseURL string, client *httpclient.BreakerClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

var _ payment.Gateway = (*Gateway)(nil)

// Charge posts to /v1/charges. A 402 answer or a FAILED outcome in the body
// is a decline.
func (g *Gateway) Charge(ctx context.Context, req payment.ChargeRequest) (*domain.PaymentResult, error) {
	resp, err := g.post(ctx, "/v1/charges", req.IdempotencyKey, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusPaymentRequired {
		var declined domain.PaymentResult
		_ = json.NewDecoder(resp.Body).Decode(&declined)
		declined.Outcome = domain.PaymentFailed
		declined.Amount = req.Amount
		declined.Method = req.Method
		if declined.FailureReason == "" {
			declined.FailureReason = "declined"
		}
		return &declined, nil
	}
	if resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}

	var result domain.PaymentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	if result.Outcome == "" {
		result.Outcome = domain.PaymentSucceeded
	}

	g.logger.InfoContext(ctx, "payment charged",
		slog.String("order_id", req.OrderID),
		slog.String("payment_id", result.PaymentID),
		slog.String("outcome", string(result.Outcome)),
	)
	return &result, nil
}

// Refund posts to /v1/refunds.
func (g *Gateway) Refund(ctx context.Context, req payment.RefundRequest) error {
	resp, err := g.post(ctx, "/v1/refunds", req.IdempotencyKey, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	g.logger.InfoContext(ctx, "payment refunded", slog.String("payment_id", req.PaymentID))
	return nil
}

func (g *Gateway) post(ctx context.Context, path, idempotencyKey string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	return g.client.Do(ctx, req)
}
