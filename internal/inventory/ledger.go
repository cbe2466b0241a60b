package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

// Ledger is the sole mutator of product stock and reservation state. Every
// mutation of a product runs under that product's exclusive lock.
type Ledger struct {
	store  repository.ProductStore
	exec   *retry.Executor
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a new inventory ledger.
func NewLedger(store repository.ProductStore, exec *retry.Executor, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		exec:   exec,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// dbPolicy retries transient storage failures. Domain errors are never retried.
var dbPolicy = retry.For(retry.CategoryDatabase)

func (l *Ledger) locked(ctx context.Context, op, productID string, fn func(ctx context.Context, tx repository.ProductTx) error) error {
	return l.exec.Do(ctx, op, dbPolicy, func(ctx context.Context) error {
		return l.store.WithProductLock(ctx, productID, fn)
	})
}

// ---------------------------------------------------------------------------
// Reservations
// ---------------------------------------------------------------------------

// Reserve holds quantity units of productID for orderID and returns the
// reservation id. The id is derived from the order and product, so repeating
// a successful call returns the same id without taking stock again.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int, orderID string) (string, error) {
	if quantity <= 0 {
		return "", apperrors.InvalidInput("quantity must be positive")
	}
	if orderID == "" {
		return "", apperrors.InvalidInput("order_id is required")
	}

	id := domain.ReservationIDFor(orderID, productID)
	var replayed bool

	err := l.locked(ctx, "inventory.reserve", productID, func(ctx context.Context, tx repository.ProductTx) error {
		replayed = false
		existing, err := tx.GetReservation(ctx, id)
		switch {
		case err == nil:
			if existing.State == domain.ReservationReleased {
				return apperrors.InvalidStateTransition("reservation", id, string(existing.State), string(domain.ReservationPending))
			}
			replayed = true
			return nil
		case !apperrors.HasCode(err, apperrors.CodeReservationNotFound):
			return err
		}

		p := tx.Product()
		if !p.AcceptsReservations() {
			return apperrors.ProductOutOfStock(productID)
		}
		if !p.HasStock(quantity) {
			return apperrors.InsufficientStock(productID, quantity, p.StockQuantity)
		}

		now := l.now()
		updated := *p
		updated.StockQuantity -= quantity
		updated.UpdatedAt = now
		if err := tx.SaveProduct(ctx, &updated); err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

		return tx.InsertReservation(ctx, &domain.Reservation{
			ID:        id,
			ProductID: productID,
			OrderID:   orderID,
			Quantity:  quantity,
			State:     domain.ReservationPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return "", err
	}

	logger.WithContext(ctx, l.logger).Info("stock reserved",
		slog.String("reservation_id", id),
		slog.String("product_id", productID),
		slog.String("order_id", orderID),
		slog.Int("quantity", quantity),
		slog.Bool("replayed", replayed),
	)
	return id, nil
}

// Commit finalizes a PENDING reservation. Stock was already taken at reserve
// time. Committing twice is a no-op; committing a RELEASED reservation fails
// with INVALID_STATE_TRANSITION.
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	r, err := l.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	return l.locked(ctx, "inventory.commit", r.ProductID, func(ctx context.Context, tx repository.ProductTx) error {
		// Re-check under the lock; a concurrent release may have won.
		cur, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		switch cur.State {
		case domain.ReservationCommitted:
			return nil
		case domain.ReservationReleased:
			return apperrors.InvalidStateTransition("reservation", reservationID, string(cur.State), string(domain.ReservationCommitted))
		}
		if err := tx.UpdateReservationState(ctx, reservationID, domain.ReservationCommitted, l.now()); err != nil {
			return fmt.Errorf("commit reservation: %w", err)
		}
		logger.WithContext(ctx, l.logger).Info("reservation committed",
			slog.String("reservation_id", reservationID),
			slog.String("product_id", cur.ProductID),
			slog.Int("quantity", cur.Quantity),
		)
		return nil
	})
}

// Release returns a PENDING reservation's quantity to stock. Releasing twice
// is a no-op; releasing a COMMITTED reservation fails with
// INVALID_STATE_TRANSITION because its stock has been consumed.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	r, err := l.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	return l.locked(ctx, "inventory.release", r.ProductID, func(ctx context.Context, tx repository.ProductTx) error {
		cur, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		switch cur.State {
		case domain.ReservationReleased:
			return nil
		case domain.ReservationCommitted:
			return apperrors.InvalidStateTransition("reservation", reservationID, string(cur.State), string(domain.ReservationReleased))
		}

		now := l.now()
		updated := *tx.Product()
		updated.StockQuantity += cur.Quantity
		updated.UpdatedAt = now
		if err := tx.SaveProduct(ctx, &updated); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}
		if err := tx.UpdateReservationState(ctx, reservationID, domain.ReservationReleased, now); err != nil {
			return fmt.Errorf("release reservation: %w", err)
		}
		logger.WithContext(ctx, l.logger).Info("reservation released",
			slog.String("reservation_id", reservationID),
			slog.String("product_id", cur.ProductID),
			slog.Int("quantity", cur.Quantity),
		)
		return nil
	})
}

// ReleaseByOrder releases every PENDING reservation of an order and returns
// how many were released. It keeps going past individual failures and
// reports the first one.
func (l *Ledger) ReleaseByOrder(ctx context.Context, orderID string) (int, error) {
	reservations, err := l.store.ListReservationsByOrder(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("list reservations for order %s: %w", orderID, err)
	}

	released := 0
	var firstErr error
	for _, r := range reservations {
		if !r.IsPending() {
			continue
		}
		if err := l.Release(ctx, r.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			l.logger.ErrorContext(ctx, "failed to release reservation",
				slog.String("reservation_id", r.ID),
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		released++
	}
	return released, firstErr
}

// CommitByOrder commits every PENDING reservation of an order. If any
// reservation of the order was RELEASED nothing is committed and the call
// fails with INVALID_STATE_TRANSITION: the order no longer holds its stock.
func (l *Ledger) CommitByOrder(ctx context.Context, orderID string) error {
	reservations, err := l.store.ListReservationsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list reservations for order %s: %w", orderID, err)
	}
	for _, r := range reservations {
		if r.State == domain.ReservationReleased {
			return apperrors.InvalidStateTransition("reservation", r.ID, string(r.State), string(domain.ReservationCommitted))
		}
	}
	for _, r := range reservations {
		if !r.IsPending() {
			continue
		}
		if err := l.Commit(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetReservation retrieves a reservation by id.
func (l *Ledger) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return retry.Execute(ctx, l.exec, "inventory.get_reservation", dbPolicy, func(ctx context.Context) (*domain.Reservation, error) {
		return l.store.GetReservation(ctx, id)
	})
}

// ReservationsForOrder lists the reservations of an order.
func (l *Ledger) ReservationsForOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return retry.Execute(ctx, l.exec, "inventory.list_reservations", dbPolicy, func(ctx context.Context) ([]domain.Reservation, error) {
		return l.store.ListReservationsByOrder(ctx, orderID)
	})
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// NewProduct is the input of AddProduct.
type NewProduct struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Stock     int
	Available bool
}

// AddProduct registers a product with its initial stock. An empty id is
// replaced by a random one.
func (l *Ledger) AddProduct(ctx context.Context, in NewProduct) (*domain.Product, error) {
	if in.Name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if in.Price.IsNegative() {
		return nil, apperrors.InvalidInput("price must be non-negative")
	}
	if in.Stock < 0 {
		return nil, apperrors.InvalidInput("stock must be non-negative")
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}

	now := l.now()
	p := &domain.Product{
		ID:            in.ID,
		Name:          in.Name,
		Price:         in.Price,
		StockQuantity: in.Stock,
		TotalStocked:  in.Stock,
		Available:     in.Available,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := l.exec.Do(ctx, "inventory.add_product", dbPolicy, func(ctx context.Context) error {
		return l.store.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "product added",
		slog.String("product_id", p.ID),
		slog.Int("stock", p.StockQuantity),
	)
	return p, nil
}

// Restock adds quantity units to a product's stock.
func (l *Ledger) Restock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, apperrors.InvalidInput("restock quantity must be positive")
	}

	var out domain.Product
	err := l.locked(ctx, "inventory.restock", productID, func(ctx context.Context, tx repository.ProductTx) error {
		updated := *tx.Product()
		updated.StockQuantity += quantity
		updated.TotalStocked += quantity
		updated.UpdatedAt = l.now()
		out = updated
		return tx.SaveProduct(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "product restocked",
		slog.String("product_id", productID),
		slog.Int("added", quantity),
		slog.Int("stock", out.StockQuantity),
	)
	return &out, nil
}

// SetAvailability toggles whether a product accepts new reservations.
// Existing reservations are unaffected.
func (l *Ledger) SetAvailability(ctx context.Context, productID string, available bool) (*domain.Product, error) {
	var out domain.Product
	err := l.locked(ctx, "inventory.set_availability", productID, func(ctx context.Context, tx repository.ProductTx) error {
		updated := *tx.Product()
		updated.Available = available
		updated.UpdatedAt = l.now()
		out = updated
		return tx.SaveProduct(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProduct retrieves a product by id.
func (l *Ledger) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return retry.Execute(ctx, l.exec, "inventory.get_product", dbPolicy, func(ctx context.Context) (*domain.Product, error) {
		return l.store.GetProduct(ctx, productID)
	})
}

// ListProducts returns every product.
func (l *Ledger) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return retry.Execute(ctx, l.exec, "inventory.list_products", dbPolicy, l.store.ListProducts)
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// Audit is a snapshot of a product's stock accounting.
type Audit struct {
	ProductID     string `json:"product_id"`
	StockQuantity int    `json:"stock_quantity"`
	TotalStocked  int    `json:"total_stocked"`
	Pending       int    `json:"pending"`
	Committed     int    `json:"committed"`
	Balanced      bool   `json:"balanced"`
}

// Audit checks that stock plus pending holds equals everything stocked minus
// everything committed, all read under the product lock.
func (l *Ledger) Audit(ctx context.Context, productID string) (*Audit, error) {
	var a Audit
	err := l.store.WithProductLock(ctx, productID, func(ctx context.Context, tx repository.ProductTx) error {
		p := tx.Product()
		reservations, err := l.store.ListReservationsByProduct(ctx, productID)
		if err != nil {
			return err
		}
		a = Audit{ProductID: productID, StockQuantity: p.StockQuantity, TotalStocked: p.TotalStocked}
		for _, r := range reservations {
			switch r.State {
			case domain.ReservationPending:
				a.Pending += r.Quantity
			case domain.ReservationCommitted:
				a.Committed += r.Quantity
			}
		}
		a.Balanced = a.StockQuantity >= 0 && a.StockQuantity+a.Pending == a.TotalStocked-a.Committed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}
