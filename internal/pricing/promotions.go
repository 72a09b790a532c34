package pricing

import (
	"context"
	"time"

	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/observability"
	"go.uber.org/zap"
)

// PromotionLookup returns the promotion in force for a product, or nil.
type PromotionLookup interface {
	ActivePromotionFor(ctx context.Context, productID int64, now time.Time) (*models.Promotion, error)
}

// PromotionResolver performs the per-line promotion lookups ahead of
// Calculate. A failed lookup only costs that line its discount.
type PromotionResolver struct {
	lookup PromotionLookup
	logger *zap.Logger
}

func NewPromotionResolver(lookup PromotionLookup, logger *zap.Logger) *PromotionResolver {
	return &PromotionResolver{lookup: lookup, logger: observability.OrNop(logger)}
}

// WithLookup returns a resolver sharing r's logger that reads through lookup.
func (r *PromotionResolver) WithLookup(lookup PromotionLookup) *PromotionResolver {
	return &PromotionResolver{lookup: lookup, logger: r.logger}
}

func (r *PromotionResolver) Resolve(ctx context.Context, items []models.CartLineItem, now time.Time) map[int64]*models.Promotion {
	resolved := make(map[int64]*models.Promotion, len(items))

	for _, item := range items {
		if _, seen := resolved[item.ProductID]; seen {
			continue
		}

		promotion, err := r.lookup.ActivePromotionFor(ctx, item.ProductID, now)
		if err != nil {
			r.logger.Warn("promotion lookup failed, pricing line without discount",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			resolved[item.ProductID] = nil
			continue
		}
		if promotion != nil && !promotion.ActiveAt(now) {
			promotion = nil
		}
		resolved[item.ProductID] = promotion
	}

	return resolved
}
