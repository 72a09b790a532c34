package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func createProduct(t *testing.T, db *sql.DB, sku string, price string, stock int) *models.Product {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), db, sku, "Product "+sku, "Test", decimal.RequireFromString(price), stock)
	require.NoError(t, err)
	return p
}

// placeOrder writes a single-line pending order for actor.
func placeOrder(t *testing.T, db *sql.DB, actor models.ActorID, number string, product *models.Product) *models.Order {
	t.Helper()

	subtotal := product.Price
	order := &models.Order{
		OrderNumber: number,
		ActorID:     actor,
		Status:      models.OrderStatusPending,
		Items: []models.OrderItem{{
			ProductID: product.ID,
			Quantity:  1,
			UnitPrice: product.Price,
			Subtotal:  subtotal,
		}},
		Breakdown: models.PricingBreakdown{
			Subtotal:          subtotal,
			Tax:               decimal.Zero,
			Shipping:          decimal.Zero,
			PromotionDiscount: decimal.Zero,
			CouponDiscount:    decimal.Zero,
			Discounts:         []models.DiscountLine{},
			Total:             subtotal,
		},
		ShippingAddress: models.Address{FullName: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
	}

	err := database.WithTransaction(context.Background(), db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return store.InsertOrder(context.Background(), tx, order)
	})
	require.NoError(t, err)
	return order
}
