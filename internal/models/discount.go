package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Promotion struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	ProductIDs      []int64         `json:"product_ids"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StartsAt        time.Time       `json:"starts_at"`
	EndsAt          time.Time       `json:"ends_at"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ActiveAt reports whether the promotion is flagged active and now falls in
// [StartsAt, EndsAt].
func (p *Promotion) ActiveAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	return !now.Before(p.StartsAt) && !now.After(p.EndsAt)
}

type CouponKind string

const (
	CouponPercentage  CouponKind = "percentage"
	CouponFixedAmount CouponKind = "fixed_amount"
)

func (k CouponKind) Valid() bool {
	return k == CouponPercentage || k == CouponFixedAmount
}

type Coupon struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Kind           CouponKind      `json:"kind"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	StartsAt       time.Time       `json:"starts_at"`
	EndsAt         time.Time       `json:"ends_at"`
	UsageLimit     *int            `json:"usage_limit,omitempty"`
	UsageCount     int             `json:"usage_count"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CanonicalCouponCode normalises a customer-entered code for lookup.
func CanonicalCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HasUsesLeft reports whether a reservation could still succeed.
func (c *Coupon) HasUsesLeft() bool {
	return c.UsageLimit == nil || c.UsageCount < *c.UsageLimit
}
