package models

import "github.com/shopspring/decimal"

// DiscountSource discriminates the variants of DiscountLine.
type DiscountSource string

const (
	DiscountSourcePromotion DiscountSource = "promotion"
	DiscountSourceCoupon    DiscountSource = "coupon"
)

// DiscountLine is a tagged union: exactly one of Promotion or Coupon is set,
// matching Source.
type DiscountLine struct {
	Source    DiscountSource     `json:"source"`
	Promotion *PromotionDiscount `json:"promotion,omitempty"`
	Coupon    *CouponDiscount    `json:"coupon,omitempty"`
}

type PromotionDiscount struct {
	PromotionID   int64           `json:"promotion_id"`
	PromotionName string          `json:"promotion_name"`
	ProductID     int64           `json:"product_id"`
	Quantity      int             `json:"quantity"`
	LineSubtotal  decimal.Decimal `json:"line_subtotal"`
	Percent       decimal.Decimal `json:"percent"`
	Amount        decimal.Decimal `json:"amount"`
}

type CouponDiscount struct {
	Code   string          `json:"code"`
	Kind   CouponKind      `json:"kind"`
	Value  decimal.Decimal `json:"value"`
	Basis  decimal.Decimal `json:"basis"`
	Amount decimal.Decimal `json:"amount"`
}

func NewPromotionLine(d PromotionDiscount) DiscountLine {
	return DiscountLine{Source: DiscountSourcePromotion, Promotion: &d}
}

func NewCouponLine(d CouponDiscount) DiscountLine {
	return DiscountLine{Source: DiscountSourceCoupon, Coupon: &d}
}

// PricingBreakdown is the frozen result of a pricing pass. Total is
// max(0, Subtotal + Tax + Shipping - PromotionDiscount - CouponDiscount).
type PricingBreakdown struct {
	Subtotal          decimal.Decimal `json:"subtotal"`
	Tax               decimal.Decimal `json:"tax"`
	Shipping          decimal.Decimal `json:"shipping"`
	PromotionDiscount decimal.Decimal `json:"promotion_discount"`
	CouponDiscount    decimal.Decimal `json:"coupon_discount"`
	CouponCode        string          `json:"coupon_code,omitempty"`
	Discounts         []DiscountLine  `json:"discounts"`
	Total             decimal.Decimal `json:"total"`
}

// PromotionLines returns the per-line promotion details in cart order.
func (b PricingBreakdown) PromotionLines() []PromotionDiscount {
	var out []PromotionDiscount
	for _, line := range b.Discounts {
		if line.Source == DiscountSourcePromotion && line.Promotion != nil {
			out = append(out, *line.Promotion)
		}
	}
	return out
}
