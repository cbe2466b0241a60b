package repository

import (
	"context"
	"time"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
)

// ProductStore defines persistence for products and their reservations. The
// inventory ledger is its only writer.
type ProductStore interface {
	// CreateProduct inserts a new product. Duplicate ids fail with PRODUCT_ALREADY_EXISTS.
	CreateProduct(ctx context.Context, p *domain.Product) error

	// GetProduct retrieves a product by id.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// ListProducts returns every product ordered by id.
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// GetReservation retrieves a reservation by id.
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)

	// ListReservationsByOrder returns the reservations of one order.
	ListReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)

	// ListReservationsByProduct returns the reservations held against one product.
	ListReservationsByProduct(ctx context.Context, productID string) ([]domain.Reservation, error)

	// WithProductLock runs fn with exclusive access to the product row and its
	// reservations. Writes made through tx become visible only if fn returns
	// nil. A missing product fails with PRODUCT_NOT_FOUND before fn runs.
	WithProductLock(ctx context.Context, productID string, fn func(ctx context.Context, tx ProductTx) error) error
}

// ProductTx is the unit of work handed to WithProductLock callbacks.
type ProductTx interface {
	// Product returns the locked product. Mutations are persisted by SaveProduct.
	Product() *domain.Product

	// GetReservation returns a reservation of the locked product, or
	// RESERVATION_NOT_FOUND.
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)

	SaveProduct(ctx context.Context, p *domain.Product) error
	InsertReservation(ctx context.Context, r *domain.Reservation) error
	UpdateReservationState(ctx context.Context, id string, state domain.ReservationState, at time.Time) error
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Statuses      []domain.OrderStatus
	UpdatedBefore time.Time
	Limit         int
}

// OrderRepository defines persistence for orders.
type OrderRepository interface {
	// Create inserts a new order. Duplicate ids fail with apperrors.ErrConflict.
	Create(ctx context.Context, o *domain.Order) error

	// GetByID retrieves an order by id, or ORDER_NOT_FOUND.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// Update persists status, payment and failure fields of an order. It
	// never clears a cancellation flag or reason set by RequestCancel.
	Update(ctx context.Context, o *domain.Order) error

	// RequestCancel sets the cancellation flag and reason of an order
	// without touching any other column, so it cannot race a workflow
	// step's Update.
	RequestCancel(ctx context.Context, id, reason string) error

	// List returns orders matching filter, oldest update first.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
}

// CustomerRepository defines persistence for customers.
type CustomerRepository interface {
	Create(ctx context.Context, c *domain.Customer) error
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	SetActive(ctx context.Context, id string, active bool) error
}
