package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"storefront-service/apperrors"
	"storefront-service/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive and shared.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.AdminUser{}))
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return gormDB, mock
}

var productColumns = []string{
	"id", "name", "description", "price", "total_quantity", "available_quantity",
	"need_restock", "image_url", "version", "created_at", "updated_at",
}

func TestGormProductRepository(t *testing.T) {
	runProductRepositoryContract(t, func(t *testing.T) ProductRepository {
		return NewGormProductRepository(setupSQLiteDB(t))
	})
}

func TestGormProductRepository_Postgres_GetNotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormProductRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" WHERE "products"."id" = $1`)).
		WillReturnRows(sqlmock.NewRows(productColumns))

	p, err := repo.Get(context.Background(), 9)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductRepository_Postgres_Insert(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormProductRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectCommit()

	created, err := repo.Insert(context.Background(), newProduct("Widget", 10, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 12, created.ID)
	assert.EqualValues(t, 1, created.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductRepository_Postgres_InsertDuplicate(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormProductRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products"`)).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_products_name" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	_, err := repo.Insert(context.Background(), newProduct("Widget", 10, 10))
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductRepository_Postgres_UpdateLocksRow(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormProductRepository(gormDB)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "products" WHERE "products"\."id" = \$1 ORDER BY "products"\."id" LIMIT \S+ FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow(3, "Widget", "", "9.99", 10, 1, false, nil, 4, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.Update(context.Background(), 3, func(p *models.Product) error {
		p.AvailableQuantity--
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableQuantity)
	assert.EqualValues(t, 5, updated.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductRepository_Postgres_UpdateAbortRollsBack(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormProductRepository(gormDB)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products"`)).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow(3, "Widget", "", "9.99", 10, 0, true, nil, 4, now, now))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), 3, func(p *models.Product) error {
		return apperrors.ErrOutOfStock
	})
	assert.True(t, errors.Is(err, apperrors.ErrOutOfStock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductRepository_Postgres_DeleteMissing(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormProductRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "products" WHERE "products"."id" = $1`)).
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), 7)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductRepository_Postgres_ListOrdersByID(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewGormProductRepository(gormDB)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" WHERE need_restock = $1 ORDER BY id asc`)).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow(1, "Mouse", "", "29.99", 100, 12, true, nil, 1, now, now).
			AddRow(2, "Keyboard", "", "89.99", 30, 5, true, nil, 1, now, now))

	products, err := repo.ListNeedingRestock(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Mouse", products[0].Name)
	assert.Equal(t, "89.99", products[1].Price.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUserRepository(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.AdminUser{Username: "admin", PasswordHash: "hash"}))

	u, err := repo.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Username)
	assert.NotZero(t, u.ID)

	_, err = repo.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
