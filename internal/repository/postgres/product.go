// Package postgres implements the repository ports on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/database"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

// ProductStore implements repository.ProductStore using PostgreSQL. Product
// locks are row locks taken with SELECT ... FOR UPDATE.
type ProductStore struct {
	pool database.DBTX
}

// NewProductStore creates a new PostgreSQL-backed product store.
func NewProductStore(pool database.DBTX) *ProductStore {
	return &ProductStore{pool: pool}
}

var _ repository.ProductStore = (*ProductStore)(nil)

const productColumns = `id, name, price, stock_quantity, total_stocked, available, created_at, updated_at`

// productSelect reads price as text so it decodes exactly into a decimal.
const productSelect = `id, name, price::text, stock_quantity, total_stocked, available, created_at, updated_at`

const reservationColumns = `id, product_id, order_id, quantity, state, created_at, updated_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&price,
		&p.StockQuantity,
		&p.TotalStocked,
		&p.Available,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("decode price of product %s: %w", p.ID, err)
	}
	return &p, nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(
		&r.ID,
		&r.ProductID,
		&r.OrderID,
		&r.Quantity,
		&r.State,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(domain.ValidReservationStates(), r.State) {
		return nil, retry.Permanent(fmt.Errorf("reservation %s has unknown state %q", r.ID, r.State))
	}
	return &r, nil
}

// CreateProduct inserts a new product.
func (s *ProductStore) CreateProduct(ctx context.Context, p *domain.Product) (err error) {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	ctx, end := database.TraceQuery(ctx, "CreateProduct", query)
	defer func() { end(err) }()

	_, err = s.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Price.String(),
		p.StockQuantity,
		p.TotalStocked,
		p.Available,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.ProductAlreadyExists(p.ID)
		}
		return database.Classify(fmt.Errorf("create product: %w", err))
	}
	return nil
}

// GetProduct retrieves a product by id.
func (s *ProductStore) GetProduct(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `SELECT ` + productSelect + ` FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProduct", query)
	defer func() { end(err) }()

	p, err := scanProduct(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ProductNotFound(id)
		}
		return nil, database.Classify(fmt.Errorf("get product: %w", err))
	}
	return p, nil
}

// ListProducts returns every product ordered by id.
func (s *ProductStore) ListProducts(ctx context.Context) (_ []domain.Product, err error) {
	query := `SELECT ` + productSelect + ` FROM products ORDER BY id`

	ctx, end := database.TraceQuery(ctx, "ListProducts", query)
	defer func() { end(err) }()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("list products: %w", err))
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(fmt.Errorf("iterate product rows: %w", err))
	}
	return products, nil
}

// GetReservation retrieves a reservation by id.
func (s *ProductStore) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return getReservation(ctx, s.pool, id, "")
}

func getReservation(ctx context.Context, db database.DBTX, id, productID string) (_ *domain.Reservation, err error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	args := []any{id}
	if productID != "" {
		query += ` AND product_id = $2`
		args = append(args, productID)
	}

	ctx, end := database.TraceQuery(ctx, "GetReservation", query)
	defer func() { end(err) }()

	r, err := scanReservation(db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ReservationNotFound(id)
		}
		return nil, database.Classify(fmt.Errorf("get reservation: %w", err))
	}
	return r, nil
}

// ListReservationsByOrder returns the reservations of one order.
func (s *ProductStore) ListReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return s.listReservations(ctx, "ListReservationsByOrder", "order_id", orderID)
}

// ListReservationsByProduct returns the reservations held against one product.
func (s *ProductStore) ListReservationsByProduct(ctx context.Context, productID string) ([]domain.Reservation, error) {
	return s.listReservations(ctx, "ListReservationsByProduct", "product_id", productID)
}

// column is always a literal chosen by the callers above.
func (s *ProductStore) listReservations(ctx context.Context, op, column, value string) (_ []domain.Reservation, err error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` + column + ` = $1 ORDER BY created_at, id`

	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	rows, err := s.pool.Query(ctx, query, value)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("list reservations: %w", err))
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation row: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(fmt.Errorf("iterate reservation rows: %w", err))
	}
	return out, nil
}

// WithProductLock runs fn inside a transaction holding the product's row
// lock. The transaction commits only when fn returns nil.
func (s *ProductStore) WithProductLock(ctx context.Context, productID string, fn func(ctx context.Context, tx repository.ProductTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return err
	}

	if err := fn(ctx, &productTx{tx: tx, product: p}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func lockProduct(ctx context.Context, tx pgx.Tx, productID string) (_ *domain.Product, err error) {
	query := `SELECT ` + productSelect + ` FROM products WHERE id = $1 FOR UPDATE`

	ctx, end := database.TraceQuery(ctx, "LockProduct", query)
	defer func() { end(err) }()

	p, err := scanProduct(tx.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ProductNotFound(productID)
		}
		return nil, database.Classify(fmt.Errorf("lock product: %w", err))
	}
	return p, nil
}

type productTx struct {
	tx      pgx.Tx
	product *domain.Product
}

func (t *productTx) Product() *domain.Product {
	return t.product
}

func (t *productTx) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	return getReservation(ctx, t.tx, id, t.product.ID)
}

func (t *productTx) SaveProduct(ctx context.Context, p *domain.Product) (err error) {
	query := `
		UPDATE products
		SET name = $2, price = $3, stock_quantity = $4, total_stocked = $5, available = $6, updated_at = $7
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "SaveProduct", query)
	defer func() { end(err) }()

	_, err = t.tx.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Price.String(),
		p.StockQuantity,
		p.TotalStocked,
		p.Available,
		p.UpdatedAt,
	)
	if err != nil {
		return database.Classify(fmt.Errorf("save product: %w", err))
	}
	cp := *p
	t.product = &cp
	return nil
}

func (t *productTx) InsertReservation(ctx context.Context, r *domain.Reservation) (err error) {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "InsertReservation", query)
	defer func() { end(err) }()

	_, err = t.tx.Exec(ctx, query,
		r.ID,
		r.ProductID,
		r.OrderID,
		r.Quantity,
		r.State,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return database.Classify(fmt.Errorf("insert reservation: %w", err))
	}
	return nil
}

func (t *productTx) UpdateReservationState(ctx context.Context, id string, state domain.ReservationState, at time.Time) (err error) {
	query := `UPDATE reservations SET state = $2, updated_at = $3 WHERE id = $1 AND product_id = $4`

	ctx, end := database.TraceQuery(ctx, "UpdateReservationState", query)
	defer func() { end(err) }()

	tag, err := t.tx.Exec(ctx, query, id, state, at, t.product.ID)
	if err != nil {
		return database.Classify(fmt.Errorf("update reservation state: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ReservationNotFound(id)
	}
	return nil
}
