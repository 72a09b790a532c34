package store_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/database/dbtest"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProductDuplicateSKU(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()

	createProduct(t, db, "TEST-001", "10.00", 5)

	_, err := store.CreateProduct(ctx, db, "TEST-001", "Again", "", decimal.NewFromInt(1), 1)
	assert.ErrorIs(t, err, database.ErrDuplicate)
}

func TestGetProductNotFound(t *testing.T) {
	db := dbtest.Setup(t)

	_, err := store.GetProduct(context.Background(), db, 9999)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestConcurrentStockDecrement(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()

	product := createProduct(t, db, "TEST-003", "100.00", 10)

	concurrency := 8
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
				return store.DecrementStock(ctx, tx, product.ID, 2)
			})
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 5, successCount)

	after, err := store.GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.StockQuantity)
}

func TestCatalogDecrementRollsBackWithTransaction(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()

	product := createProduct(t, db, "TEST-004", "5.00", 3)

	errAbort := errors.New("abort")
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ok, err := store.NewCatalog(tx).DecrementStock(ctx, product.ID, 3)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.NewCatalog(tx).DecrementStock(ctx, product.ID, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	stock, err := store.NewCatalog(db).GetStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)
}

func TestCatalogGetPrice(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()
	catalog := store.NewCatalog(db)

	product := createProduct(t, db, "TEST-005", "19.99", 1)

	price, err := catalog.GetPrice(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "19.99", price.StringFixed(2))

	_, err = catalog.GetPrice(ctx, product.ID+100)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}
