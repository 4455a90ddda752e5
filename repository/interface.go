package repository

import (
	"context"
	"math/rand/v2"
	"time"

	"storefront-service/apperrors"
	"storefront-service/models"
)

// MutateFunc edits a product in place inside an update's critical section.
// Returning an error aborts the update without writing.
type MutateFunc func(p *models.Product) error

// ProductRepository stores products and enforces their field invariants.
// Update is the only way to modify a stored product and is atomic per id.
type ProductRepository interface {
	Insert(ctx context.Context, p *models.Product) (*models.Product, error)
	Get(ctx context.Context, id uint) (*models.Product, error)
	Update(ctx context.Context, id uint, mutate MutateFunc) (*models.Product, error)
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context) ([]models.Product, error)
	ListNeedingRestock(ctx context.Context) ([]models.Product, error)
	Count(ctx context.Context) (int64, error)
}

// UserRepository looks up admin accounts.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	Create(ctx context.Context, user *models.AdminUser) error
}

// Optimistic writers in the document stores retry until they commit or ctx
// ends. A lost round means another writer committed, so contention delays an
// update but never fails it.
const (
	retryBaseDelay = 2 * time.Millisecond
	retryMaxDelay  = 50 * time.Millisecond
)

// backoff sleeps a jittered, exponentially growing delay before the next attempt.
func backoff(ctx context.Context, attempt int) error {
	delay := min(retryBaseDelay<<min(attempt, 5), retryMaxDelay)
	delay = delay/2 + rand.N(delay/2)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func notFound(id uint) error {
	return apperrors.Wrap(apperrors.ErrNotFound, "product %d not found", id)
}

func duplicateName(name string) error {
	return apperrors.Wrap(apperrors.ErrConflict, "product with name %q already exists", name)
}
