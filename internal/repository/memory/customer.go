package memory

import (
	"context"
	"sync"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// CustomerRepository is an in-memory repository.CustomerRepository.
type CustomerRepository struct {
	mu        sync.RWMutex
	customers map[string]domain.Customer
}

// NewCustomerRepository creates an empty repository.
func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{customers: make(map[string]domain.Customer)}
}

var _ repository.CustomerRepository = (*CustomerRepository)(nil)

// Create inserts a customer or fails with USER_ALREADY_EXISTS.
func (r *CustomerRepository) Create(_ context.Context, c *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customers[c.ID]; ok {
		return apperrors.UserAlreadyExists(c.ID)
	}
	r.customers[c.ID] = *c
	return nil
}

// GetByID retrieves a customer or fails with USER_NOT_FOUND.
func (r *CustomerRepository) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, apperrors.UserNotFound(id)
	}
	return &c, nil
}

// SetActive flips the active flag of a customer.
func (r *CustomerRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return apperrors.UserNotFound(id)
	}
	c.Active = active
	r.customers[id] = c
	return nil
}
