package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// OrderRepository is an in-memory repository.OrderRepository.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderRepository creates an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]domain.Order)}
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

// Create inserts a new order.
func (r *OrderRepository) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, apperrors.ErrConflict)
	}
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

// GetByID retrieves an order by id.
func (r *OrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, apperrors.OrderNotFound(id)
	}
	o = cloneOrder(o)
	return &o, nil
}

// Update persists the order.
func (r *OrderRepository) Update(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.orders[o.ID]
	if !ok {
		return apperrors.OrderNotFound(o.ID)
	}
	next := cloneOrder(*o)
	next.CancelRequested = next.CancelRequested || existing.CancelRequested
	if next.CancelReason == "" {
		next.CancelReason = existing.CancelReason
	}
	r.orders[o.ID] = next
	return nil
}

// RequestCancel flags the order for cancellation.
func (r *OrderRepository) RequestCancel(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return apperrors.OrderNotFound(id)
	}
	o.CancelRequested = true
	o.CancelReason = reason
	r.orders[id] = o
	return nil
}

// List returns orders matching filter, oldest update first.
func (r *OrderRepository) List(_ context.Context, filter repository.OrderFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Order
	for _, o := range r.orders {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !o.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
