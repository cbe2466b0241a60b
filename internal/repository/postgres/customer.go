package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/database"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// CustomerRepository implements repository.CustomerRepository using PostgreSQL.
type CustomerRepository struct {
	pool database.DBTX
}

// NewCustomerRepository creates a new PostgreSQL-backed customer repository.
func NewCustomerRepository(pool database.DBTX) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

var _ repository.CustomerRepository = (*CustomerRepository)(nil)

// Create inserts a customer or fails with USER_ALREADY_EXISTS.
func (r *CustomerRepository) Create(ctx context.Context, c *domain.Customer) (err error) {
	query := `INSERT INTO customers (id, name, email, active) VALUES ($1, $2, $3, $4)`

	ctx, end := database.TraceQuery(ctx, "CreateCustomer", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query, c.ID, c.Name, c.Email, c.Active)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.UserAlreadyExists(c.ID)
		}
		return database.Classify(fmt.Errorf("create customer: %w", err))
	}
	return nil
}

// GetByID retrieves a customer or fails with USER_NOT_FOUND.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (_ *domain.Customer, err error) {
	query := `SELECT id, name, email, active FROM customers WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetCustomer", query)
	defer func() { end(err) }()

	var c domain.Customer
	err = r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.UserNotFound(id)
		}
		return nil, database.Classify(fmt.Errorf("get customer: %w", err))
	}
	return &c, nil
}

// SetActive flips the active flag of a customer.
func (r *CustomerRepository) SetActive(ctx context.Context, id string, active bool) (err error) {
	query := `UPDATE customers SET active = $2 WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "SetCustomerActive", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return database.Classify(fmt.Errorf("set customer active: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperrors.UserNotFound(id)
	}
	return nil
}
