package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/database/dbtest"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartLinesAreScopedToActor(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()

	product := createProduct(t, db, "TEST-CART-1", "4.00", 10)
	owner := models.GuestActor("a")
	other := models.GuestActor("b")

	line, err := store.AddCartItem(ctx, db, owner, store.NewCartItem{ProductID: product.ID, UnitPrice: product.Price, Quantity: 2})
	require.NoError(t, err)

	qty := 5
	_, err = store.UpdateCartItem(ctx, db, other, line.ID, store.CartItemUpdate{Quantity: &qty})
	assert.ErrorIs(t, err, database.ErrCartItemNotFound)
	assert.ErrorIs(t, store.RemoveCartItem(ctx, db, other, line.ID), database.ErrCartItemNotFound)

	cart, err := store.GetCart(ctx, db, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestAddCartItemUnknownProduct(t *testing.T) {
	db := dbtest.Setup(t)

	_, err := store.AddCartItem(context.Background(), db, models.UserActor("u1"),
		store.NewCartItem{ProductID: 404, UnitPrice: decimal.NewFromInt(1), Quantity: 1})
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestSetCartTaxAndClear(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()
	actor := models.UserActor("u1")

	tax := decimal.RequireFromString("38.20")
	require.NoError(t, store.SetCartTax(ctx, db, actor, &tax))

	cart, err := store.GetCart(ctx, db, actor)
	require.NoError(t, err)
	require.NotNil(t, cart.PrecomputedTax)
	assert.Equal(t, "38.20", cart.PrecomputedTax.StringFixed(2))

	require.NoError(t, store.SetCartTax(ctx, db, actor, nil))
	cart, err = store.GetCart(ctx, db, actor)
	require.NoError(t, err)
	assert.Nil(t, cart.PrecomputedTax)

	require.NoError(t, store.ClearCart(ctx, db, actor))
	require.NoError(t, store.ClearCart(ctx, db, actor))
	cart, err = store.GetCart(ctx, db, actor)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestMergeCartsCarriesGuestTax(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()
	product := createProduct(t, db, "TEST-MERGE-TAX", "10.00", 10)

	guestTax := decimal.RequireFromString("2.50")
	userTax := decimal.RequireFromString("7.00")

	tests := []struct {
		name    string
		userTax *decimal.Decimal
		want    string
	}{
		{"user cart without tax takes the guest tax", nil, "2.50"},
		{"user cart keeps its own tax", &userTax, "7.00"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guest := models.GuestActor(fmt.Sprintf("tax-%d", i))
			user := models.UserActor(fmt.Sprintf("tax-%d", i))

			_, err := store.AddCartItem(ctx, db, guest, store.NewCartItem{ProductID: product.ID, UnitPrice: product.Price, Quantity: 1})
			require.NoError(t, err)
			require.NoError(t, store.SetCartTax(ctx, db, guest, &guestTax))
			require.NoError(t, store.SetCartTax(ctx, db, user, tt.userTax))

			merged, err := store.MergeCarts(ctx, db, guest, user)
			require.NoError(t, err)
			assert.Equal(t, 1, merged)

			cart, err := store.GetCart(ctx, db, user)
			require.NoError(t, err)
			require.NotNil(t, cart.PrecomputedTax)
			assert.Equal(t, tt.want, cart.PrecomputedTax.StringFixed(2))

			gone, err := store.GetCart(ctx, db, guest)
			require.NoError(t, err)
			assert.True(t, gone.IsEmpty())
		})
	}
}
