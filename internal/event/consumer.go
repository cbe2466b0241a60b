package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/kafka"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/validator"
)

// CancelRequest is the payload of order.cancel_requested.
type CancelRequest struct {
	OrderID string `json:"order_id" validate:"required,max=64"`
	Reason  string `json:"reason,omitempty" validate:"max=256"`
}

// Canceller cancels orders.
type Canceller interface {
	CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error)
}

// CancelRequestedHandler applies order.cancel_requested events. Requests
// that can never succeed (malformed, unknown order, already confirmed) are
// returned as permanent so the consumer parks them without retrying.
func CancelRequestedHandler(c Canceller, log *slog.Logger) kafka.Handler {
	return func(ctx context.Context, e *kafka.Event) error {
		if e.EventType != TypeOrderCancelRequested {
			return kafka.Permanent(fmt.Errorf("unexpected event type %q", e.EventType))
		}

		var req CancelRequest
		if err := e.UnmarshalData(&req); err != nil {
			return kafka.Permanent(fmt.Errorf("decode cancel request: %w", err))
		}
		if err := validator.Validate(req); err != nil {
			return kafka.Permanent(err)
		}

		if e.CorrelationID != "" {
			ctx = logger.WithCorrelationID(ctx, e.CorrelationID)
		}
		ctx = logger.WithOrderID(ctx, req.OrderID)

		o, err := c.CancelOrder(ctx, req.OrderID, req.Reason)
		if err != nil {
			switch apperrors.ClassOf(err) {
			case apperrors.ClassNotFound, apperrors.ClassState, apperrors.ClassValidation:
				return kafka.Permanent(err)
			}
			return err
		}

		logger.WithContext(ctx, log).Info("cancel request applied",
			slog.String("event_id", e.EventID),
			slog.String("order_id", o.ID),
			slog.String("status", string(o.Status)),
			slog.Bool("deferred", o.CancelRequested && !o.Status.IsTerminal()),
			slog.String("reason", req.Reason),
		)
		return nil
	}
}
