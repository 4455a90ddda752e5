package services

import (
	"context"
	"errors"
	"time"

	"storefront-service/apperrors"
	"storefront-service/events"
	"storefront-service/logger"
	"storefront-service/models"
	awspkg "storefront-service/pkg/aws"
	"storefront-service/repository"

	"go.uber.org/zap"
)

const sideEffectTimeout = 5 * time.Second

// ProductCache is the read cache consulted by GetProduct and ListProducts.
type ProductCache interface {
	Version(ctx context.Context) int64
	GetProduct(ctx context.Context, version int64, id uint) (*models.Product, bool)
	GetProductList(ctx context.Context, version int64) ([]models.Product, bool)
	SetProductAsync(version int64, p *models.Product)
	SetProductListAsync(version int64, list []models.Product)
	Invalidate(ctx context.Context) error
}

// MetricsRecorder receives business counters.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// InventoryService holds every product and stock rule.
type InventoryService interface {
	CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error)
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpdateProduct(ctx context.Context, id uint, patch models.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, id uint) error
	PurchaseProduct(ctx context.Context, id uint) (*models.Product, error)
	ResolveRestock(ctx context.Context, id uint, needRestock bool) (*models.Product, error)
	ListRestockCandidates(ctx context.Context) ([]models.Product, error)
	ListRestockCandidatesDetailed(ctx context.Context) ([]models.RestockCandidate, error)
}

type inventoryServiceImpl struct {
	repo      repository.ProductRepository
	policy    RestockPolicy
	publisher events.Publisher
	cache     ProductCache
	metrics   MetricsRecorder
	logger    *zap.Logger
}

// NewInventoryService wires the inventory rules to a store. publisher, cache
// and metrics are optional and may be nil.
func NewInventoryService(
	repo repository.ProductRepository,
	policy RestockPolicy,
	publisher events.Publisher,
	cache ProductCache,
	metrics MetricsRecorder,
	logger *zap.Logger,
) InventoryService {
	return &inventoryServiceImpl{
		repo:      repo,
		policy:    policy,
		publisher: publisher,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *inventoryServiceImpl) CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	switch {
	case in.Price == nil:
		return nil, apperrors.Wrap(apperrors.ErrValidation, "price is required")
	case in.TotalQuantity == nil:
		return nil, apperrors.Wrap(apperrors.ErrValidation, "total_quantity is required")
	case in.AvailableQuantity == nil:
		return nil, apperrors.Wrap(apperrors.ErrValidation, "available_quantity is required")
	}

	product := &models.Product{
		Name:              in.Name,
		Description:       in.Description,
		Price:             *in.Price,
		TotalQuantity:     *in.TotalQuantity,
		AvailableQuantity: *in.AvailableQuantity,
	}
	if in.ImageURL != nil && *in.ImageURL != "" {
		url := *in.ImageURL
		product.ImageURL = &url
	}
	if err := product.Validate(); err != nil {
		return nil, err
	}
	product.NeedRestock = s.policy.NeedsRestock(product.AvailableQuantity, product.TotalQuantity)

	created, err := s.repo.Insert(ctx, product)
	if err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("product created",
		zap.Uint("product_id", created.ID),
		zap.String("name", created.Name),
		zap.Bool("need_restock", created.NeedRestock),
	)
	s.invalidate(ctx)
	s.recordCount(ctx, awspkg.MetricProductsCreated, nil)
	if created.NeedRestock {
		s.lowStock(ctx, created)
	}
	return created, nil
}

func (s *inventoryServiceImpl) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var version int64
	if s.cache != nil {
		version = s.cache.Version(ctx)
		p, ok := s.cache.GetProduct(ctx, version, id)
		s.cacheLookup(ctx, version, "product", ok)
		if ok {
			return p, nil
		}
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetProductAsync(version, p)
	}
	return p, nil
}

func (s *inventoryServiceImpl) ListProducts(ctx context.Context) ([]models.Product, error) {
	var version int64
	if s.cache != nil {
		version = s.cache.Version(ctx)
		list, ok := s.cache.GetProductList(ctx, version)
		s.cacheLookup(ctx, version, "list", ok)
		if ok {
			return list, nil
		}
	}

	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetProductListAsync(version, list)
	}
	return list, nil
}

func (s *inventoryServiceImpl) UpdateProduct(ctx context.Context, id uint, patch models.ProductPatch) (*models.Product, error) {
	if patch.IsEmpty() {
		return s.repo.Get(ctx, id)
	}

	var wasFlagged bool
	updated, err := s.repo.Update(ctx, id, func(p *models.Product) error {
		wasFlagged = p.NeedRestock
		patch.Apply(p)
		if patch.TouchesQuantity() {
			p.NeedRestock = s.policy.NeedsRestock(p.AvailableQuantity, p.TotalQuantity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("product updated",
		zap.Uint("product_id", updated.ID),
		zap.Int("available_quantity", updated.AvailableQuantity),
		zap.Bool("need_restock", updated.NeedRestock),
	)
	s.invalidate(ctx)
	if !wasFlagged && updated.NeedRestock {
		s.lowStock(ctx, updated)
	}
	return updated, nil
}

func (s *inventoryServiceImpl) DeleteProduct(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.With(ctx, s.logger).Info("product deleted", zap.Uint("product_id", id))
	s.invalidate(ctx)
	s.recordCount(ctx, awspkg.MetricProductsDeleted, nil)
	return nil
}

// PurchaseProduct sells one unit. Purchases only ever raise need_restock;
// clearing it is an explicit restock decision.
func (s *inventoryServiceImpl) PurchaseProduct(ctx context.Context, id uint) (*models.Product, error) {
	var wasFlagged bool
	updated, err := s.repo.Update(ctx, id, func(p *models.Product) error {
		if p.AvailableQuantity <= 0 {
			return apperrors.Wrap(apperrors.ErrOutOfStock, "product %d is out of stock", p.ID)
		}
		wasFlagged = p.NeedRestock
		p.AvailableQuantity--
		if s.policy.NeedsRestock(p.AvailableQuantity, p.TotalQuantity) {
			p.NeedRestock = true
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrOutOfStock) {
			s.recordCount(ctx, awspkg.MetricPurchaseRejected, nil)
		}
		return nil, err
	}

	logger.With(ctx, s.logger).Info("product purchased",
		zap.Uint("product_id", updated.ID),
		zap.Int("available_quantity", updated.AvailableQuantity),
	)
	s.invalidate(ctx)
	s.recordCount(ctx, awspkg.MetricProductsPurchased, nil)
	if !wasFlagged && updated.NeedRestock {
		s.lowStock(ctx, updated)
	}
	return updated, nil
}

func (s *inventoryServiceImpl) ResolveRestock(ctx context.Context, id uint, needRestock bool) (*models.Product, error) {
	var wasFlagged bool
	updated, err := s.repo.Update(ctx, id, func(p *models.Product) error {
		wasFlagged = p.NeedRestock
		p.NeedRestock = needRestock
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("restock flag set",
		zap.Uint("product_id", updated.ID),
		zap.Bool("need_restock", needRestock),
	)
	s.invalidate(ctx)

	switch {
	case wasFlagged && !needRestock:
		s.publish(ctx, events.NewEvent(events.TypeRestockResolved, updated, "",
			StockPercent(updated.AvailableQuantity, updated.TotalQuantity)))
		s.recordCount(ctx, awspkg.MetricRestockResolved, nil)
	case !wasFlagged && needRestock:
		s.lowStock(ctx, updated)
	}
	return updated, nil
}

func (s *inventoryServiceImpl) ListRestockCandidates(ctx context.Context) ([]models.Product, error) {
	return s.repo.ListNeedingRestock(ctx)
}

func (s *inventoryServiceImpl) ListRestockCandidatesDetailed(ctx context.Context) ([]models.RestockCandidate, error) {
	products, err := s.repo.ListNeedingRestock(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.RestockCandidate, 0, len(products))
	for _, p := range products {
		candidates = append(candidates, models.RestockCandidate{
			Product:      p,
			Priority:     Priority(p.AvailableQuantity, p.TotalQuantity),
			StockPercent: StockPercent(p.AvailableQuantity, p.TotalQuantity),
		})
	}
	return candidates, nil
}

func (s *inventoryServiceImpl) lowStock(ctx context.Context, p *models.Product) {
	priority := Priority(p.AvailableQuantity, p.TotalQuantity)
	s.publish(ctx, events.NewEvent(events.TypeLowStock, p, priority,
		StockPercent(p.AvailableQuantity, p.TotalQuantity)))
	s.recordCount(ctx, awspkg.MetricInventoryLow, map[string]string{"priority": priority})
}

// publish never fails the caller; the write has already been committed.
func (s *inventoryServiceImpl) publish(ctx context.Context, evt events.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, evt); err != nil {
		logger.With(ctx, s.logger).Warn("failed to publish inventory event",
			zap.String("event_type", evt.Type),
			zap.Uint("product_id", evt.ProductID),
			zap.Error(err),
		)
	}
}

func (s *inventoryServiceImpl) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		logger.With(ctx, s.logger).Error("failed to invalidate product cache", zap.Error(err))
	}
}

// cacheLookup counts cache hits and misses. Version 0 means the cache was
// unreachable and bypassed, which is neither.
func (s *inventoryServiceImpl) cacheLookup(ctx context.Context, version int64, read string, hit bool) {
	if version == 0 {
		return
	}
	name := awspkg.MetricCacheMisses
	if hit {
		name = awspkg.MetricCacheHits
	}
	s.recordCount(ctx, name, map[string]string{"read": read})
}

func (s *inventoryServiceImpl) recordCount(ctx context.Context, name string, dims map[string]string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.RecordCount(ctx, name, dims); err != nil {
		logger.With(ctx, s.logger).Warn("failed to record metric", zap.String("metric", name), zap.Error(err))
	}
}
