package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.Get(context.Background(), models.UserActor("nobody"))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	actor := models.GuestActor("3f1c")
	tax := decimal.RequireFromString("1.25")

	cart := &models.Cart{
		ActorID:        actor,
		Items:          []models.CartLineItem{{ID: 1, ProductID: 9, UnitPrice: decimal.RequireFromString("4.50"), Quantity: 2}},
		PrecomputedTax: &tax,
	}
	require.NoError(t, cache.Set(ctx, actor, cart, 0))
	assert.True(t, mr.Exists("cart:guest:3f1c"))

	got, err := cache.Get(ctx, actor)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("4.50")))
	require.NotNil(t, got.PrecomputedTax)
	assert.True(t, got.PrecomputedTax.Equal(tax))
}

func TestRedisCache_TTLWithJitter(t *testing.T) {
	cache, mr := setupTestRedis(t)
	actor := models.UserActor("42")

	require.NoError(t, cache.Set(context.Background(), actor, models.EmptyCart(actor), 0))

	ttl := mr.TTL(cacheKey(actor))
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.Less(t, ttl, 6*time.Minute)
}

func TestRedisCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	actor := models.UserActor("42")

	require.NoError(t, cache.Set(ctx, actor, models.EmptyCart(actor), 0))
	require.NoError(t, cache.Delete(ctx, actor))
	assert.False(t, mr.Exists(cacheKey(actor)))

	gen, err := cache.Generation(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	assert.Greater(t, mr.TTL(generationKey(actor)), time.Minute)
}

func TestRedisCache_SetAfterInvalidateIsDropped(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	actor := models.UserActor("42")

	// A loader reads the generation and then the old cart; a writer
	// invalidates before the loader stores what it read.
	gen, err := cache.Generation(ctx, actor)
	require.NoError(t, err)
	require.NoError(t, cache.Delete(ctx, actor))

	err = cache.Set(ctx, actor, models.EmptyCart(actor), gen)
	assert.ErrorIs(t, err, ErrStaleGeneration)
	assert.False(t, mr.Exists(cacheKey(actor)))

	fresh, err := cache.Generation(ctx, actor)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, actor, models.EmptyCart(actor), fresh))
	assert.True(t, mr.Exists(cacheKey(actor)))
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	actor := models.UserActor("42")
	require.NoError(t, mr.Set(cacheKey(actor), "{not json"))

	_, err := cache.Get(context.Background(), actor)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
