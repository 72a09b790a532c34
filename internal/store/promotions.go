package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const promotionColumns = `p.id, p.name, p.discount_percent, p.starts_at, p.ends_at, p.active, p.created_at,
	ARRAY(SELECT pp.product_id FROM promotion_products pp WHERE pp.promotion_id = p.id ORDER BY pp.product_id)`

func scanPromotion(row interface{ Scan(...any) error }, promotion *models.Promotion) error {
	return row.Scan(
		&promotion.ID,
		&promotion.Name,
		&promotion.DiscountPercent,
		&promotion.StartsAt,
		&promotion.EndsAt,
		&promotion.Active,
		&promotion.CreatedAt,
		pq.Array(&promotion.ProductIDs),
	)
}

func CreatePromotion(ctx context.Context, db *sql.DB, promotion models.Promotion) (*models.Promotion, error) {
	created := &models.Promotion{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO promotions (name, discount_percent, starts_at, ends_at, active, created_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())
			 RETURNING id`,
			promotion.Name, promotion.DiscountPercent, promotion.StartsAt, promotion.EndsAt, promotion.Active).Scan(&id)
		if err != nil {
			return fmt.Errorf("create promotion: %w", err)
		}

		for _, productID := range promotion.ProductIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO promotion_products (promotion_id, product_id) VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`,
				id, productID)
			if err != nil {
				if database.IsForeignKeyViolation(err) {
					return database.ErrProductNotFound
				}
				return fmt.Errorf("link promotion product %d: %w", productID, err)
			}
		}

		err = scanPromotion(tx.QueryRowContext(ctx,
			`SELECT `+promotionColumns+` FROM promotions p WHERE p.id = $1`, id), created)
		if err != nil {
			return fmt.Errorf("fetch created promotion: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// ActivePromotionFor returns the promotion in force for productID at now, or
// nil when there is none. Overlapping promotions resolve to the most recently
// created one.
func ActivePromotionFor(ctx context.Context, q database.Querier, productID int64, now time.Time) (*models.Promotion, error) {
	promotion := &models.Promotion{}

	query := `
		SELECT ` + promotionColumns + `
		FROM promotions p
		JOIN promotion_products l ON l.promotion_id = p.id
		WHERE l.product_id = $1
		  AND p.active
		  AND p.starts_at <= $2
		  AND p.ends_at >= $2
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT 1`

	err := scanPromotion(q.QueryRowContext(ctx, query, productID, now), promotion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("active promotion for product %d: %w", productID, err)
	}

	return promotion, nil
}

func DeletePromotion(ctx context.Context, q database.Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM promotions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete promotion: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrPromotionNotFound
	}

	return nil
}

// PromotionCatalog is the read-only promotion lookup used by pricing. Bind it
// to a *sql.Tx to read inside that transaction.
type PromotionCatalog struct {
	q database.Querier
}

func NewPromotionCatalog(q database.Querier) *PromotionCatalog {
	return &PromotionCatalog{q: q}
}

func (c *PromotionCatalog) ActivePromotionFor(ctx context.Context, productID int64, now time.Time) (*models.Promotion, error) {
	return ActivePromotionFor(ctx, c.q, productID, now)
}
