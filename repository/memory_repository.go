package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront-service/models"
)

// MemoryProductRepository keeps products in process memory. Writes hold the
// write lock for the whole read-modify-write, so updates to one id never interleave.
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[uint]*models.Product
	nextID   uint
}

// NewMemoryProductRepository creates an empty in-memory store.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{
		products: make(map[uint]*models.Product),
		nextID:   1,
	}
}

func (r *MemoryProductRepository) Insert(_ context.Context, p *models.Product) (*models.Product, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameTaken(p.Name, 0) {
		return nil, duplicateName(p.Name)
	}

	now := time.Now().UTC()
	stored := cloneProduct(p)
	stored.ID = r.nextID
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.products[stored.ID] = stored
	r.nextID++

	return cloneProduct(stored), nil
}

func (r *MemoryProductRepository) Get(_ context.Context, id uint) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneProduct(p), nil
}

func (r *MemoryProductRepository) Update(_ context.Context, id uint, mutate MutateFunc) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.products[id]
	if !ok {
		return nil, notFound(id)
	}

	next := cloneProduct(current)
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if next.Name != current.Name && r.nameTaken(next.Name, id) {
		return nil, duplicateName(next.Name)
	}

	next.Version = current.Version + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	r.products[id] = next

	return cloneProduct(next), nil
}

func (r *MemoryProductRepository) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return notFound(id)
	}
	delete(r.products, id)
	return nil
}

func (r *MemoryProductRepository) List(_ context.Context) ([]models.Product, error) {
	return r.collect(func(*models.Product) bool { return true }), nil
}

func (r *MemoryProductRepository) ListNeedingRestock(_ context.Context) ([]models.Product, error) {
	return r.collect(func(p *models.Product) bool { return p.NeedRestock }), nil
}

func (r *MemoryProductRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.products)), nil
}

func (r *MemoryProductRepository) collect(keep func(*models.Product) bool) []models.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if keep(p) {
			out = append(out, *cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// nameTaken must be called with the lock held.
func (r *MemoryProductRepository) nameTaken(name string, except uint) bool {
	for id, p := range r.products {
		if id != except && p.Name == name {
			return true
		}
	}
	return false
}

func cloneProduct(p *models.Product) *models.Product {
	c := *p
	if p.ImageURL != nil {
		url := *p.ImageURL
		c.ImageURL = &url
	}
	return &c
}
