package seed

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/models"
	"storefront-service/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type sampleProduct struct {
	name        string
	description string
	price       string
	total       int
	available   int
	imageURL    string
}

var sampleProducts = []sampleProduct{
	{"Laptop Stand", "Adjustable aluminium stand that lifts a laptop to eye level.", "49.99", 50, 45,
		"https://images.unsplash.com/photo-1527864550417-7fd91fc51a46"},
	{"Wireless Mouse", "Ergonomic 2.4GHz mouse with silent clicks.", "29.99", 100, 12,
		"https://images.unsplash.com/photo-1527814050087-3793815479db"},
	{"Mechanical Keyboard", "Tenkeyless keyboard with hot-swappable switches.", "89.99", 30, 5,
		"https://images.unsplash.com/photo-1511467687858-23d96c32e4ae"},
	{"USB-C Hub", "7-in-1 hub with HDMI, card reader and 100W passthrough.", "39.99", 75, 70,
		"https://images.unsplash.com/photo-1625842268584-8f3296236761"},
}

// NeedsRestockFunc decides the initial flag of a seeded product.
type NeedsRestockFunc func(available, total int) bool

// Products inserts the sample catalogue into an empty store. A store that
// already holds products is left alone.
func Products(ctx context.Context, repo repository.ProductRepository, needsRestock NeedsRestockFunc, logger *zap.Logger) (int, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		logger.Info("product store already populated, skipping seed", zap.Int64("count", count))
		return 0, nil
	}

	inserted := 0
	for _, s := range sampleProducts {
		url := s.imageURL
		p := &models.Product{
			Name:              s.name,
			Description:       s.description,
			Price:             decimal.RequireFromString(s.price),
			TotalQuantity:     s.total,
			AvailableQuantity: s.available,
			NeedRestock:       needsRestock(s.available, s.total),
			ImageURL:          &url,
		}
		if _, err := repo.Insert(ctx, p); err != nil {
			return inserted, fmt.Errorf("seed product %q: %w", s.name, err)
		}
		inserted++
	}

	logger.Info("seeded sample products", zap.Int("count", inserted))
	return inserted, nil
}

// AdminUser creates the admin account in the users table unless it exists.
func AdminUser(ctx context.Context, users repository.UserRepository, username, password string, logger *zap.Logger) error {
	if username == "" || password == "" {
		return errors.New("admin username and password must be set")
	}

	_, err := users.FindByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("look up admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := users.Create(ctx, &models.AdminUser{Username: username, PasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	logger.Info("seeded admin user", zap.String("username", username))
	return nil
}
