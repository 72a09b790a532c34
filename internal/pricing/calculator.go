// Package pricing turns a cart snapshot and its discounts into a
// PricingBreakdown.
package pricing

import (
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Policy holds the store-wide charges applied to every cart.
type Policy struct {
	TaxRate  decimal.Decimal
	Shipping decimal.Decimal
}

// Input is everything Calculate needs. Promotions maps product id to the
// promotion already resolved for the pricing instant; products without an
// entry get no promotion. Coupon is nil when no coupon applies.
type Input struct {
	Cart       *models.Cart
	Promotions map[int64]*models.Promotion
	Coupon     *models.CouponDiscount
	Policy     Policy
}

// Calculate is a pure function of its input: the same input always yields an
// identical breakdown.
//
// Promotions are applied per line first. The coupon is taken as validated
// against the pre-promotion subtotal and is capped at that subtotal. Tax is
// the flat rate on the subtotal unless the cart carries a precomputed tax.
func Calculate(in Input) models.PricingBreakdown {
	subtotal := decimal.Zero
	promotionDiscount := decimal.Zero
	discounts := []models.DiscountLine{}

	for _, item := range in.Cart.Items {
		lineTotal := item.LineTotal()
		subtotal = subtotal.Add(lineTotal)

		promotion := in.Promotions[item.ProductID]
		if promotion == nil {
			continue
		}
		percent := clampPercent(promotion.DiscountPercent)
		if percent.IsZero() {
			continue
		}

		amount := lineTotal.Mul(percent).Div(hundred).Round(2)
		promotionDiscount = promotionDiscount.Add(amount)
		discounts = append(discounts, models.NewPromotionLine(models.PromotionDiscount{
			PromotionID:   promotion.ID,
			PromotionName: promotion.Name,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			LineSubtotal:  lineTotal,
			Percent:       percent,
			Amount:        amount,
		}))
	}

	couponDiscount := decimal.Zero
	couponCode := ""
	if in.Coupon != nil {
		applied := *in.Coupon
		applied.Amount = decimal.Min(decimal.Max(applied.Amount, decimal.Zero), subtotal)
		couponDiscount = applied.Amount
		couponCode = applied.Code
		discounts = append(discounts, models.NewCouponLine(applied))
	}

	tax := subtotal.Mul(in.Policy.TaxRate).Round(2)
	if in.Cart.PrecomputedTax != nil {
		tax = *in.Cart.PrecomputedTax
	}
	shipping := in.Policy.Shipping

	total := subtotal.Add(tax).Add(shipping).Sub(promotionDiscount).Sub(couponDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return models.PricingBreakdown{
		Subtotal:          subtotal,
		Tax:               tax,
		Shipping:          shipping,
		PromotionDiscount: promotionDiscount,
		CouponDiscount:    couponDiscount,
		CouponCode:        couponCode,
		Discounts:         discounts,
		Total:             total,
	}
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
