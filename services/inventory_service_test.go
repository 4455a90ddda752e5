package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront-service/apperrors"
	"storefront-service/events"
	"storefront-service/models"
	"storefront-service/repository"
	"storefront-service/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockPublisher struct {
	mock.Mock
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(ctx context.Context, evt events.Event) error {
	m.mu.Lock()
	m.events = append(m.events, evt)
	m.mu.Unlock()
	return m.Called(ctx, evt).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) RecordCount(ctx context.Context, name string, dims map[string]string) error {
	return m.Called(ctx, name, dims).Error(0)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Version(ctx context.Context) int64 {
	return m.Called(ctx).Get(0).(int64)
}

func (m *mockCache) GetProduct(ctx context.Context, version int64, id uint) (*models.Product, bool) {
	args := m.Called(ctx, version, id)
	p, _ := args.Get(0).(*models.Product)
	return p, args.Bool(1)
}

func (m *mockCache) GetProductList(ctx context.Context, version int64) ([]models.Product, bool) {
	args := m.Called(ctx, version)
	list, _ := args.Get(0).([]models.Product)
	return list, args.Bool(1)
}

func (m *mockCache) SetProductAsync(version int64, p *models.Product) {
	m.Called(version, p)
}

func (m *mockCache) SetProductListAsync(version int64, list []models.Product) {
	m.Called(version, list)
}

func (m *mockCache) Invalidate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Helpers ---

func newPublisher() *mockPublisher {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(nil)
	return p
}

func newTestService(repo repository.ProductRepository, pub events.Publisher) services.InventoryService {
	return services.NewInventoryService(repo, services.DefaultRestockPolicy(), pub, nil, nil, zap.NewNop())
}

func input(name string, price string, total, available int) models.ProductInput {
	p := decimal.RequireFromString(price)
	return models.ProductInput{
		Name:              name,
		Price:             &p,
		TotalQuantity:     &total,
		AvailableQuantity: &available,
	}
}

func intPtr(v int) *int { return &v }

// --- Tests ---

func TestInventory_WidgetScenario(t *testing.T) {
	ctx := context.Background()
	pub := newPublisher()
	svc := newTestService(repository.NewMemoryProductRepository(), pub)

	widget, err := svc.CreateProduct(ctx, input("Widget", "9.99", 10, 10))
	require.NoError(t, err)
	assert.False(t, widget.NeedRestock)

	var last *models.Product
	for i := 0; i < 10; i++ {
		last, err = svc.PurchaseProduct(ctx, widget.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, last.AvailableQuantity)
	assert.True(t, last.NeedRestock)

	_, err = svc.PurchaseProduct(ctx, widget.ID)
	assert.ErrorIs(t, err, apperrors.ErrOutOfStock)

	assert.Equal(t, []string{events.TypeLowStock}, pub.types())
}

func TestInventory_CreateValidation(t *testing.T) {
	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	ctx := context.Background()

	cases := map[string]models.ProductInput{
		"empty name":         input("", "1.00", 1, 1),
		"negative price":     input("A", "-1", 1, 1),
		"negative total":     input("A", "1", -1, 0),
		"negative available": input("A", "1", 1, -1),
		"available > total":  input("A", "1", 1, 2),
		"three decimals":     input("A", "1.001", 1, 1),
		"missing price":      {Name: "A", TotalQuantity: intPtr(1), AvailableQuantity: intPtr(1)},
		"missing total":      {Name: "A", Price: &decimal.Zero, AvailableQuantity: intPtr(1)},
		"missing available":  {Name: "A", Price: &decimal.Zero, TotalQuantity: intPtr(1)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, in)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestInventory_CreateFlagsEmptyStockAndPublishes(t *testing.T) {
	pub := newPublisher()
	svc := newTestService(repository.NewMemoryProductRepository(), pub)

	p, err := svc.CreateProduct(context.Background(), input("Empty", "5", 10, 0))
	require.NoError(t, err)
	assert.True(t, p.NeedRestock)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeLowStock, pub.events[0].Type)
	assert.Equal(t, models.PriorityCritical, pub.events[0].Priority)
	assert.Equal(t, p.ID, pub.events[0].ProductID)
}

func TestInventory_CreateDuplicateName(t *testing.T) {
	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, input("Widget", "1", 1, 1))
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, input("Widget", "2", 1, 1))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestInventory_CreateGetRoundTrip(t *testing.T) {
	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	ctx := context.Background()

	in := input("Lamp", "12.50", 4, 3)
	in.Description = "desk lamp"
	url := "https://img.example.com/lamp.png"
	in.ImageURL = &url

	created, err := svc.CreateProduct(ctx, in)
	require.NoError(t, err)

	got, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", got.Name)
	assert.Equal(t, "desk lamp", got.Description)
	assert.Equal(t, "12.50", got.Price.StringFixed(2))
	assert.Equal(t, 4, got.TotalQuantity)
	assert.Equal(t, 3, got.AvailableQuantity)
	assert.False(t, got.NeedRestock)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, url, *got.ImageURL)
}

func TestInventory_PurchaseDecrementsByOne(t *testing.T) {
	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Pen", "1", 5, 5))
	require.NoError(t, err)

	after, err := svc.PurchaseProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, after.AvailableQuantity)
	assert.Equal(t, 5, after.TotalQuantity)
	assert.False(t, after.NeedRestock)
}

func TestInventory_OutOfStockPurchaseIsNoOp(t *testing.T) {
	repo := repository.NewMemoryProductRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Gone", "1", 3, 0))
	require.NoError(t, err)
	before, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.PurchaseProduct(ctx, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrOutOfStock)

	after, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInventory_PurchaseUnknown(t *testing.T) {
	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	_, err := svc.PurchaseProduct(context.Background(), 42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInventory_ConcurrentPurchases(t *testing.T) {
	const stock, buyers = 7, 40

	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, input("Hot item", "1", stock, stock))
	require.NoError(t, err)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		outOfStock int
	)
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.PurchaseProduct(ctx, p.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrOutOfStock):
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, stock, successes)
	assert.Equal(t, buyers-stock, outOfStock)

	final, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.AvailableQuantity)
	assert.True(t, final.NeedRestock)
}

func TestInventory_ResolveRestockKeepsQuantities(t *testing.T) {
	pub := newPublisher()
	svc := newTestService(repository.NewMemoryProductRepository(), pub)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Bolt", "0.10", 100, 0))
	require.NoError(t, err)
	require.True(t, p.NeedRestock)

	resolved, err := svc.ResolveRestock(ctx, p.ID, false)
	require.NoError(t, err)
	assert.False(t, resolved.NeedRestock)
	assert.Equal(t, 100, resolved.TotalQuantity)
	assert.Equal(t, 0, resolved.AvailableQuantity)

	assert.Equal(t, []string{events.TypeLowStock, events.TypeRestockResolved}, pub.types())

	candidates, err := svc.ListRestockCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestInventory_ResolveRestockCanRaiseFlag(t *testing.T) {
	pub := newPublisher()
	svc := newTestService(repository.NewMemoryProductRepository(), pub)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Nut", "0.10", 10, 10))
	require.NoError(t, err)

	flagged, err := svc.ResolveRestock(ctx, p.ID, true)
	require.NoError(t, err)
	assert.True(t, flagged.NeedRestock)
	assert.Equal(t, 10, flagged.AvailableQuantity)
	assert.Equal(t, []string{events.TypeLowStock}, pub.types())

	// A purchase does not clear a manually raised flag.
	after, err := svc.PurchaseProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, after.NeedRestock)
}

func TestInventory_ResolveRestockUnknown(t *testing.T) {
	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	_, err := svc.ResolveRestock(context.Background(), 9, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInventory_UpdateRecomputesFlag(t *testing.T) {
	pub := newPublisher()
	svc := newTestService(repository.NewMemoryProductRepository(), pub)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Cup", "3", 10, 10))
	require.NoError(t, err)

	low, err := svc.UpdateProduct(ctx, p.ID, models.ProductPatch{AvailableQuantity: intPtr(0)})
	require.NoError(t, err)
	assert.True(t, low.NeedRestock)

	restocked, err := svc.UpdateProduct(ctx, p.ID, models.ProductPatch{AvailableQuantity: intPtr(8)})
	require.NoError(t, err)
	assert.False(t, restocked.NeedRestock)

	renamed, err := svc.UpdateProduct(ctx, p.ID, models.ProductPatch{Name: strPtr("Mug")})
	require.NoError(t, err)
	assert.Equal(t, "Mug", renamed.Name)
	assert.Equal(t, 8, renamed.AvailableQuantity)

	assert.Equal(t, []string{events.TypeLowStock}, pub.types())
}

func TestInventory_UpdateRejectsBrokenInvariant(t *testing.T) {
	repo := repository.NewMemoryProductRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Cup", "3", 10, 10))
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, p.ID, models.ProductPatch{TotalQuantity: intPtr(5)})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.UpdateProduct(ctx, p.ID, models.ProductPatch{Name: strPtr("  ")})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalQuantity)
	assert.Equal(t, "Cup", got.Name)
}

func TestInventory_UpdateEmptyPatchReturnsCurrent(t *testing.T) {
	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Cup", "3", 10, 10))
	require.NoError(t, err)

	got, err := svc.UpdateProduct(ctx, p.ID, models.ProductPatch{})
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.UpdateProduct(ctx, 99, models.ProductPatch{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInventory_DeleteThenGetIsNotFound(t *testing.T) {
	svc := newTestService(repository.NewMemoryProductRepository(), nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Temp", "1", 1, 1))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, p.ID))
	_, err = svc.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, p.ID), apperrors.ErrNotFound)
}

func TestInventory_RestockCandidatesDetailed(t *testing.T) {
	policy := services.RestockPolicy{Threshold: 0, Ratio: 0.2}
	svc := services.NewInventoryService(repository.NewMemoryProductRepository(), policy, nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, input("Plenty", "1", 100, 90))
	require.NoError(t, err)
	critical, err := svc.CreateProduct(ctx, input("Nearly gone", "1", 100, 5))
	require.NoError(t, err)
	low, err := svc.CreateProduct(ctx, input("Running low", "1", 100, 15))
	require.NoError(t, err)

	list, err := svc.ListRestockCandidatesDetailed(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, critical.ID, list[0].Product.ID)
	assert.Equal(t, models.PriorityCritical, list[0].Priority)
	assert.Equal(t, 5.0, list[0].StockPercent)
	assert.Equal(t, low.ID, list[1].Product.ID)
	assert.Equal(t, models.PriorityLow, list[1].Priority)
}

func TestInventory_PublishFailureDoesNotFailPurchase(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	svc := newTestService(repository.NewMemoryProductRepository(), pub)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Last one", "1", 1, 1))
	require.NoError(t, err)

	after, err := svc.PurchaseProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, after.NeedRestock)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestInventory_MetricsRecorded(t *testing.T) {
	metrics := &mockMetrics{}
	metrics.On("RecordCount", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	svc := services.NewInventoryService(repository.NewMemoryProductRepository(), services.DefaultRestockPolicy(), nil, nil, metrics, zap.NewNop())
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Last one", "1", 1, 1))
	require.NoError(t, err)
	_, err = svc.PurchaseProduct(ctx, p.ID)
	require.NoError(t, err)
	_, err = svc.PurchaseProduct(ctx, p.ID)
	require.Error(t, err)

	metrics.AssertCalled(t, "RecordCount", mock.Anything, "ProductsCreated", mock.Anything)
	metrics.AssertCalled(t, "RecordCount", mock.Anything, "ProductsPurchased", mock.Anything)
	metrics.AssertCalled(t, "RecordCount", mock.Anything, "InventoryLowStock", map[string]string{"priority": models.PriorityCritical})
	metrics.AssertCalled(t, "RecordCount", mock.Anything, "PurchaseOutOfStock", mock.Anything)
}

func TestInventory_CacheReadThrough(t *testing.T) {
	repo := repository.NewMemoryProductRepository()
	ctx := context.Background()
	stored, err := repo.Insert(ctx, &models.Product{Name: "Cached", Price: decimal.NewFromInt(1), TotalQuantity: 1, AvailableQuantity: 1})
	require.NoError(t, err)

	cache := &mockCache{}
	cache.On("Version", mock.Anything).Return(int64(3))
	cache.On("GetProduct", mock.Anything, int64(3), stored.ID).Return(nil, false).Once()
	cache.On("SetProductAsync", int64(3), mock.AnythingOfType("*models.Product")).Once()
	cache.On("GetProductList", mock.Anything, int64(3)).Return([]models.Product{*stored}, true)

	svc := services.NewInventoryService(repo, services.DefaultRestockPolicy(), nil, cache, nil, zap.NewNop())

	got, err := svc.GetProduct(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cached", got.Name)

	list, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	cache.AssertExpectations(t)
}

func TestInventory_CacheHitsAndMissesAreCounted(t *testing.T) {
	repo := repository.NewMemoryProductRepository()
	ctx := context.Background()
	stored, err := repo.Insert(ctx, &models.Product{Name: "Counted", Price: decimal.NewFromInt(1), TotalQuantity: 1, AvailableQuantity: 1})
	require.NoError(t, err)

	cache := &mockCache{}
	cache.On("Version", mock.Anything).Return(int64(5)).Twice()
	cache.On("GetProduct", mock.Anything, int64(5), stored.ID).Return(nil, false)
	cache.On("SetProductAsync", int64(5), mock.AnythingOfType("*models.Product"))
	cache.On("GetProductList", mock.Anything, int64(5)).Return([]models.Product{*stored}, true)
	metrics := &mockMetrics{}
	metrics.On("RecordCount", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := services.NewInventoryService(repo, services.DefaultRestockPolicy(), nil, cache, metrics, zap.NewNop())

	_, err = svc.GetProduct(ctx, stored.ID)
	require.NoError(t, err)
	_, err = svc.ListProducts(ctx)
	require.NoError(t, err)

	metrics.AssertCalled(t, "RecordCount", mock.Anything, "CacheMisses", map[string]string{"read": "product"})
	metrics.AssertCalled(t, "RecordCount", mock.Anything, "CacheHits", map[string]string{"read": "list"})

	// An unreachable cache reports version 0 and is bypassed without counting.
	cache.On("Version", mock.Anything).Return(int64(0))
	cache.On("GetProduct", mock.Anything, int64(0), stored.ID).Return(nil, false)
	cache.On("SetProductAsync", int64(0), mock.AnythingOfType("*models.Product"))
	_, err = svc.GetProduct(ctx, stored.ID)
	require.NoError(t, err)
	metrics.AssertNumberOfCalls(t, "RecordCount", 2)
}

func TestInventory_MutationsInvalidateCache(t *testing.T) {
	cache := &mockCache{}
	cache.On("Invalidate", mock.Anything).Return(errors.New("redis down"))
	svc := services.NewInventoryService(repository.NewMemoryProductRepository(), services.DefaultRestockPolicy(), nil, cache, nil, zap.NewNop())
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, input("Thing", "1", 2, 2))
	require.NoError(t, err)
	_, err = svc.PurchaseProduct(ctx, p.ID)
	require.NoError(t, err)
	_, err = svc.UpdateProduct(ctx, p.ID, models.ProductPatch{Description: strPtr("x")})
	require.NoError(t, err)
	_, err = svc.ResolveRestock(ctx, p.ID, false)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteProduct(ctx, p.ID))

	cache.AssertNumberOfCalls(t, "Invalidate", 5)
}

func strPtr(s string) *string { return &s }
