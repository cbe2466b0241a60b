// Package customer keeps the accounts allowed to place orders.
package customer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/validator"
)

// RegisterRequest is the input of Register.
type RegisterRequest struct {
	ID    string `json:"id" validate:"omitempty,max=64"`
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
}

// Directory resolves customers for order validation.
type Directory struct {
	repo   repository.CustomerRepository
	exec   *retry.Executor
	logger *slog.Logger
}

// NewDirectory creates a directory backed by repo.
func NewDirectory(repo repository.CustomerRepository, exec *retry.Executor, logger *slog.Logger) *Directory {
	return &Directory{repo: repo, exec: exec, logger: logger}
}

var dbPolicy = retry.For(retry.CategoryDatabase)

// Register creates an active customer. Duplicate ids fail with USER_ALREADY_EXISTS.
func (d *Directory) Register(ctx context.Context, req RegisterRequest) (*domain.Customer, error) {
	if err := validator.Validate(req); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	c := &domain.Customer{
		ID:     req.ID,
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.ToLower(req.Email),
		Active: true,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := d.exec.Do(ctx, "customer.register", dbPolicy, func(ctx context.Context) error {
		return d.repo.Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "customer registered", slog.String("customer_id", c.ID))
	return c, nil
}

// Get returns a customer or USER_NOT_FOUND.
func (d *Directory) Get(ctx context.Context, id string) (*domain.Customer, error) {
	return retry.Execute(ctx, d.exec, "customer.get", dbPolicy, func(ctx context.Context) (*domain.Customer, error) {
		return d.repo.GetByID(ctx, id)
	})
}

// CheckActive fails with USER_NOT_FOUND or USER_INACTIVE unless the customer
// may place orders.
func (d *Directory) CheckActive(ctx context.Context, id string) error {
	c, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	if !c.Active {
		return apperrors.UserInactive(id)
	}
	return nil
}

// SetActive enables or disables ordering for a customer.
func (d *Directory) SetActive(ctx context.Context, id string, active bool) error {
	err := d.exec.Do(ctx, "customer.set_active", dbPolicy, func(ctx context.Context) error {
		return d.repo.SetActive(ctx, id, active)
	})
	if err != nil {
		return err
	}
	d.logger.InfoContext(ctx, "customer status changed",
		slog.String("customer_id", id),
		slog.Bool("active", active),
	)
	return nil
}
