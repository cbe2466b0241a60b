package order

import (
	"context"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
)

// Inventory is the part of the inventory ledger the workflow drives.
type Inventory interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	Reserve(ctx context.Context, productID string, quantity int, orderID string) (string, error)
	CommitByOrder(ctx context.Context, orderID string) error
	ReleaseByOrder(ctx context.Context, orderID string) (int, error)
	ReservationsForOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)
}

// CustomerDirectory vets the customer placing an order.
type CustomerDirectory interface {
	// CheckActive fails with USER_NOT_FOUND or USER_INACTIVE.
	CheckActive(ctx context.Context, customerID string) error
}

// EventPublisher publishes order notifications. Delivery is best effort.
type EventPublisher interface {
	PublishOrderConfirmed(ctx context.Context, o *domain.Order) error
	PublishOrderFailed(ctx context.Context, o *domain.Order) error
	PublishOrderCancelled(ctx context.Context, o *domain.Order, reason string) error
}

// StatusCache holds the latest known status of orders. Implementations
// absorb their own failures: a miss is reported as ok=false.
type StatusCache interface {
	GetStatus(ctx context.Context, orderID string) (domain.OrderStatus, bool)
	SetStatus(ctx context.Context, orderID string, status domain.OrderStatus)
}
