package event

import (
	"context"
	"log/slog"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/kafka"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
)

const source = "order-service"

// Event types and the topics they are published on.
const (
	TypeOrderConfirmed       = "order.confirmed"
	TypeOrderFailed          = "order.failed"
	TypeOrderCancelled       = "order.cancelled"
	TypeOrderCancelRequested = "order.cancel_requested"
)

var (
	TopicOrderConfirmed       = kafka.Topic("order", "confirmed")
	TopicOrderFailed          = kafka.Topic("order", "failed")
	TopicOrderCancelled       = kafka.Topic("order", "cancelled")
	TopicOrderCancelRequested = kafka.Topic("order", "cancel_requested")
)

// OrderEventData is the payload of the order notifications.
type OrderEventData struct {
	Order  domain.OrderDetailView `json:"order"`
	Reason string                 `json:"reason,omitempty"`
}

type eventProducer interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Publisher publishes order notifications to Kafka. Event ids are derived
// from the order and event type, so a notification re-sent after a resume
// carries the id of the first one.
type Publisher struct {
	producer eventProducer
	logger   *slog.Logger
}

// NewPublisher creates a Publisher writing through producer.
func NewPublisher(producer eventProducer, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

// PublishOrderConfirmed announces a CONFIRMED order.
func (p *Publisher) PublishOrderConfirmed(ctx context.Context, o *domain.Order) error {
	return p.publish(ctx, TopicOrderConfirmed, TypeOrderConfirmed, o, "")
}

// PublishOrderFailed announces a FAILED order with its failure code.
func (p *Publisher) PublishOrderFailed(ctx context.Context, o *domain.Order) error {
	return p.publish(ctx, TopicOrderFailed, TypeOrderFailed, o, o.FailureReason)
}

// PublishOrderCancelled announces a CANCELLED order.
func (p *Publisher) PublishOrderCancelled(ctx context.Context, o *domain.Order, reason string) error {
	return p.publish(ctx, TopicOrderCancelled, TypeOrderCancelled, o, reason)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType string, o *domain.Order, reason string) error {
	e, err := kafka.NewEvent(eventType, o.ID, "order", source, OrderEventData{
		Order:  domain.NewOrderDetailView(o),
		Reason: reason,
	})
	if err != nil {
		return err
	}
	e.StableID()
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		e.WithCorrelationID(id)
	}
	e.WithMetadata("order_number", o.OrderNumber)
	return p.producer.Publish(ctx, topic, e)
}

// RequestCancel publishes a cancellation request for orderID, for callers
// that cannot reach the service synchronously.
func (p *Publisher) RequestCancel(ctx context.Context, orderID, reason string) error {
	e, err := kafka.NewEvent(TypeOrderCancelRequested, orderID, "order", source, CancelRequest{
		OrderID: orderID,
		Reason:  reason,
	})
	if err != nil {
		return err
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		e.WithCorrelationID(id)
	}
	return p.producer.Publish(ctx, TopicOrderCancelRequested, e)
}
