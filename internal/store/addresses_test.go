package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/database/dbtest"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAddressesPaginates(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()
	actor := models.UserActor("u1")

	for i := 0; i < 5; i++ {
		_, err := store.CreateAddress(ctx, db, models.Address{
			ActorID:    actor,
			FullName:   fmt.Sprintf("Recipient %d", i),
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		})
		require.NoError(t, err)
	}

	page, err := store.ListAddresses(ctx, db, actor, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.EqualValues(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.Page)

	page, err = store.ListAddresses(ctx, db, models.UserActor("nobody"), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, store.DefaultPageSize, page.PageSize)
}

func TestGetAddress(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()

	created, err := store.CreateAddress(ctx, db, models.Address{
		ActorID: models.GuestActor("g1"), FullName: "Ada", Email: "ada@example.com",
		Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
	})
	require.NoError(t, err)

	got, err := store.GetAddress(ctx, db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, models.GuestActor("g1"), got.ActorID)

	_, err = store.GetAddress(ctx, db, created.ID+1)
	assert.ErrorIs(t, err, database.ErrAddressNotFound)
}
