package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safar/storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubLookup struct {
	promotions map[int64]*models.Promotion
	failing    map[int64]bool
	calls      int
}

func (s *stubLookup) ActivePromotionFor(_ context.Context, productID int64, _ time.Time) (*models.Promotion, error) {
	s.calls++
	if s.failing[productID] {
		return nil, errors.New("connection reset")
	}
	return s.promotions[productID], nil
}

func TestPromotionResolver_DegradesFailedLookup(t *testing.T) {
	lookup := &stubLookup{
		promotions: map[int64]*models.Promotion{1: promotion(1, "20"), 2: promotion(2, "10")},
		failing:    map[int64]bool{2: true},
	}
	resolver := NewPromotionResolver(lookup, zap.NewNop())

	got := resolver.Resolve(context.Background(), []models.CartLineItem{line(1, "10", 1), line(2, "10", 1)}, time.Now())

	assert.NotNil(t, got[1])
	assert.Nil(t, got[2])
}

func TestPromotionResolver_LooksUpEachProductOnce(t *testing.T) {
	lookup := &stubLookup{promotions: map[int64]*models.Promotion{}}
	resolver := NewPromotionResolver(lookup, nil)

	resolver.Resolve(context.Background(), []models.CartLineItem{line(1, "1", 1), line(1, "1", 2), line(3, "1", 1)}, time.Now())

	assert.Equal(t, 2, lookup.calls)
}

func TestPromotionResolver_DropsInactivePromotion(t *testing.T) {
	expired := promotion(1, "20")
	expired.EndsAt = time.Now().Add(-time.Minute)
	lookup := &stubLookup{promotions: map[int64]*models.Promotion{1: expired}}

	got := NewPromotionResolver(lookup, nil).Resolve(context.Background(), []models.CartLineItem{line(1, "1", 1)}, time.Now())

	assert.Nil(t, got[1])
}
