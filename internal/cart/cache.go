package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/storefront/internal/models"
)

// Cache stores carts keyed by actor. Every Delete bumps the actor's
// generation; Set only writes when the generation still matches the one read
// before the cart was loaded, so a load that raced an invalidation is dropped.
type Cache interface {
	Get(ctx context.Context, actor models.ActorID) (*models.Cart, error)
	Generation(ctx context.Context, actor models.ActorID) (int64, error)
	Set(ctx context.Context, actor models.ActorID, cart *models.Cart, generation int64) error
	Delete(ctx context.Context, actor models.ActorID) error
}

var (
	ErrCacheMiss       = errors.New("cache miss")
	ErrStaleGeneration = errors.New("cache generation changed")
)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: ttl}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, actor models.ActorID) (*models.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(actor)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

// Generation returns the actor's invalidation counter; zero if never bumped.
func (r *RedisCache) Generation(ctx context.Context, actor models.ActorID) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(actor)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

// Set stores the cart with the base TTL plus up to five minutes of jitter so
// entries written together do not expire together. The write is skipped with
// ErrStaleGeneration when the generation moved past the one given.
func (r *RedisCache) Set(ctx context.Context, actor models.ActorID, cart *models.Cart, generation int64) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	genKey := generationKey(actor)
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return ErrStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(actor), data, r.baseTTL+jitter)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return ErrStaleGeneration
	default:
		return fmt.Errorf("redis set failed: %w", err)
	}
}

// Delete drops the entry and bumps the generation in one transaction. The
// generation outlives any entry so a slow loader cannot see it reset.
func (r *RedisCache) Delete(ctx context.Context, actor models.ActorID) error {
	genKey := generationKey(actor)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(actor))
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, r.baseTTL+time.Hour)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(actor models.ActorID) string {
	return fmt.Sprintf("cart:%s", actor)
}

func generationKey(actor models.ActorID) string {
	return fmt.Sprintf("cart:%s:gen", actor)
}

// NopCache always misses. It is used when no Redis is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, models.ActorID) (*models.Cart, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Generation(context.Context, models.ActorID) (int64, error) { return 0, nil }

func (NopCache) Set(context.Context, models.ActorID, *models.Cart, int64) error { return nil }

func (NopCache) Delete(context.Context, models.ActorID) error { return nil }
