package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const couponColumns = `id, code, discount_kind, discount_value, min_order_amount, starts_at, ends_at,
	usage_limit, usage_count, active, created_at, updated_at`

func scanCoupon(row interface{ Scan(...any) error }, coupon *models.Coupon) error {
	var limit sql.NullInt64
	err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.Kind,
		&coupon.Value,
		&coupon.MinOrderAmount,
		&coupon.StartsAt,
		&coupon.EndsAt,
		&limit,
		&coupon.UsageCount,
		&coupon.Active,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if limit.Valid {
		value := int(limit.Int64)
		coupon.UsageLimit = &value
	}
	return nil
}

func CreateCoupon(ctx context.Context, q database.Querier, coupon models.Coupon) (*models.Coupon, error) {
	created := &models.Coupon{}

	query := `
		INSERT INTO coupons (code, discount_kind, discount_value, min_order_amount, starts_at, ends_at,
		                     usage_limit, usage_count, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING ` + couponColumns

	err := scanCoupon(q.QueryRowContext(ctx, query,
		models.CanonicalCouponCode(coupon.Code),
		coupon.Kind,
		coupon.Value,
		coupon.MinOrderAmount,
		coupon.StartsAt,
		coupon.EndsAt,
		coupon.UsageLimit,
		coupon.UsageCount,
		coupon.Active,
	), created)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("coupon %s: %w", models.CanonicalCouponCode(coupon.Code), database.ErrDuplicate)
		}
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	return created, nil
}

// GetCouponByCode looks the code up case-insensitively.
func GetCouponByCode(ctx context.Context, q database.Querier, code string) (*models.Coupon, error) {
	coupon := &models.Coupon{}

	err := scanCoupon(q.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`,
		models.CanonicalCouponCode(code)), coupon)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return coupon, nil
}

// ReserveCoupon consumes one use of the coupon with a single conditional
// update. It reports false when the limit was already reached (or the coupon
// was deactivated) by the time the statement ran.
func ReserveCoupon(ctx context.Context, q database.Querier, code string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE coupons
		 SET usage_count = usage_count + 1,
		     updated_at = NOW()
		 WHERE code = $1
		   AND active
		   AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		models.CanonicalCouponCode(code))
	if err != nil {
		return false, fmt.Errorf("reserve coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}
