package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/database"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
// Order lines are stored as a JSONB snapshot on the order row.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

const orderColumns = `id, order_number, customer_id, type, status, payment_method, lines, total_amount,
	payment_id, failure_code, failure_reason, cancel_requested, cancel_reason, created_at, updated_at`

const orderSelect = `id, order_number, customer_id, type, status, payment_method, lines, total_amount::text,
	payment_id, failure_code, failure_reason, cancel_requested, cancel_reason, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o     domain.Order
		lines []byte
		total string
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CustomerID,
		&o.Type,
		&o.Status,
		&o.PaymentMethod,
		&lines,
		&total,
		&o.PaymentID,
		&o.FailureCode,
		&o.FailureReason,
		&o.CancelRequested,
		&o.CancelReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("decode lines of order %s: %w", o.ID, err)
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode total of order %s: %w", o.ID, err)
	}
	return &o, nil
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	ctx, end := database.TraceQuery(ctx, "CreateOrder", query)
	defer func() { end(err) }()

	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("encode order lines: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		o.ID,
		o.OrderNumber,
		o.CustomerID,
		o.Type,
		o.Status,
		o.PaymentMethod,
		lines,
		o.TotalAmount.String(),
		o.PaymentID,
		o.FailureCode,
		o.FailureReason,
		o.CancelRequested,
		o.CancelReason,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return database.Classify(fmt.Errorf("create order %s: %w", o.ID, err))
	}
	return nil
}

// GetByID retrieves an order by id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (_ *domain.Order, err error) {
	query := `SELECT ` + orderSelect + ` FROM orders WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetOrder", query)
	defer func() { end(err) }()

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.OrderNotFound(id)
		}
		return nil, database.Classify(fmt.Errorf("get order: %w", err))
	}
	return o, nil
}

// Update persists status, payment and failure fields. The cancellation flag
// is OR-ed and an empty reason keeps the stored one, so a concurrent
// RequestCancel is never lost.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) (err error) {
	query := `
		UPDATE orders
		SET status = $2, payment_id = $3, failure_code = $4, failure_reason = $5,
			cancel_requested = cancel_requested OR $6,
			cancel_reason = COALESCE(NULLIF($7, ''), cancel_reason), updated_at = $8
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateOrder", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query,
		o.ID,
		o.Status,
		o.PaymentID,
		o.FailureCode,
		o.FailureReason,
		o.CancelRequested,
		o.CancelReason,
		o.UpdatedAt,
	)
	if err != nil {
		return database.Classify(fmt.Errorf("update order: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperrors.OrderNotFound(o.ID)
	}
	return nil
}

// RequestCancel sets the cancellation flag and reason of an order.
func (r *OrderRepository) RequestCancel(ctx context.Context, id, reason string) (err error) {
	query := `UPDATE orders SET cancel_requested = TRUE, cancel_reason = $2 WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "RequestCancel", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return database.Classify(fmt.Errorf("request cancel: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperrors.OrderNotFound(id)
	}
	return nil
}

// List returns orders matching filter, oldest update first.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) (_ []domain.Order, err error) {
	var (
		conditions []string
		args       []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.UpdatedBefore.IsZero() {
		args = append(args, filter.UpdatedBefore)
		conditions = append(conditions, fmt.Sprintf("updated_at < $%d", len(args)))
	}

	query := `SELECT ` + orderSelect + ` FROM orders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	ctx, end := database.TraceQuery(ctx, "ListOrders", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("list orders: %w", err))
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(fmt.Errorf("iterate order rows: %w", err))
	}
	return orders, nil
}
