// Package memory provides in-process implementations of the repository
// ports. They honour the same locking contract as the postgres store and
// back the service when STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/internal/repository"
	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/keylock"
)

// ProductStore is an in-memory repository.ProductStore.
type ProductStore struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	reservations map[string]domain.Reservation
	locks        *keylock.Map
}

// NewProductStore creates an empty store.
func NewProductStore() *ProductStore {
	return &ProductStore{
		products:     make(map[string]domain.Product),
		reservations: make(map[string]domain.Reservation),
		locks:        keylock.New(),
	}
}

var _ repository.ProductStore = (*ProductStore)(nil)

// CreateProduct inserts a new product.
func (s *ProductStore) CreateProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return apperrors.ProductAlreadyExists(p.ID)
	}
	s.products[p.ID] = *p
	return nil
}

// GetProduct retrieves a product by id.
func (s *ProductStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, apperrors.ProductNotFound(id)
	}
	return &p, nil
}

// ListProducts returns every product ordered by id.
func (s *ProductStore) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetReservation retrieves a reservation by id.
func (s *ProductStore) GetReservation(_ context.Context, id string) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, apperrors.ReservationNotFound(id)
	}
	return &r, nil
}

// ListReservationsByOrder returns the reservations of one order.
func (s *ProductStore) ListReservationsByOrder(_ context.Context, orderID string) ([]domain.Reservation, error) {
	return s.filterReservations(func(r domain.Reservation) bool { return r.OrderID == orderID }), nil
}

// ListReservationsByProduct returns the reservations held against one product.
func (s *ProductStore) ListReservationsByProduct(_ context.Context, productID string) ([]domain.Reservation, error) {
	return s.filterReservations(func(r domain.Reservation) bool { return r.ProductID == productID }), nil
}

func (s *ProductStore) filterReservations(match func(domain.Reservation) bool) []domain.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// WithProductLock serializes fn against every other caller for productID.
// Writes are staged on the transaction and applied only when fn succeeds.
func (s *ProductStore) WithProductLock(ctx context.Context, productID string, fn func(ctx context.Context, tx repository.ProductTx) error) error {
	unlock, err := s.locks.Lock(ctx, productID)
	if err != nil {
		return err
	}
	defer unlock()

	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	tx := &productTx{
		store:   s,
		product: p,
		staged:  make(map[string]domain.Reservation),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.productDirty {
		s.products[productID] = *tx.product
	}
	for id, r := range tx.staged {
		s.reservations[id] = r
	}
	return nil
}

type productTx struct {
	store        *ProductStore
	product      *domain.Product
	productDirty bool
	staged       map[string]domain.Reservation
}

func (t *productTx) Product() *domain.Product {
	return t.product
}

func (t *productTx) GetReservation(_ context.Context, id string) (*domain.Reservation, error) {
	if r, ok := t.staged[id]; ok {
		return &r, nil
	}
	t.store.mu.RLock()
	r, ok := t.store.reservations[id]
	t.store.mu.RUnlock()
	if !ok || r.ProductID != t.product.ID {
		return nil, apperrors.ReservationNotFound(id)
	}
	return &r, nil
}

func (t *productTx) SaveProduct(_ context.Context, p *domain.Product) error {
	cp := *p
	t.product = &cp
	t.productDirty = true
	return nil
}

func (t *productTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	if _, err := t.GetReservation(ctx, r.ID); err == nil {
		return apperrors.Wrap(apperrors.ErrConflict, "reservation "+r.ID+" already exists")
	}
	t.staged[r.ID] = *r
	return nil
}

func (t *productTx) UpdateReservationState(ctx context.Context, id string, state domain.ReservationState, at time.Time) error {
	r, err := t.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	r.State = state
	r.UpdatedAt = at
	t.staged[id] = *r
	return nil
}
