// Package receipt projects a committed order into a customer-facing receipt.
// It reads only what the order froze at checkout, never live promotions or
// coupons.
package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

type Line struct {
	ProductID   int64           `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	GiftWrap    bool            `json:"gift_wrap"`
	GiftMessage string          `json:"gift_message,omitempty"`
}

type Discount struct {
	Source models.DiscountSource `json:"source"`
	Label  string                `json:"label"`
	Amount decimal.Decimal       `json:"amount"`
}

type Receipt struct {
	OrderID           int64              `json:"order_id"`
	OrderNumber       string             `json:"order_number"`
	ActorID           models.ActorID     `json:"actor_id"`
	Status            models.OrderStatus `json:"status"`
	PlacedAt          time.Time          `json:"placed_at"`
	Lines             []Line             `json:"lines"`
	Discounts         []Discount         `json:"discounts"`
	Subtotal          decimal.Decimal    `json:"subtotal"`
	PromotionDiscount decimal.Decimal    `json:"promotion_discount"`
	CouponDiscount    decimal.Decimal    `json:"coupon_discount"`
	CouponCode        string             `json:"coupon_code,omitempty"`
	Tax               decimal.Decimal    `json:"tax"`
	Shipping          decimal.Decimal    `json:"shipping"`
	Total             decimal.Decimal    `json:"total"`
	ShipTo            models.Address     `json:"ship_to"`
	Text              string             `json:"text"`
}

type Builder struct {
	storeName string
}

func NewBuilder(storeName string) *Builder {
	if storeName == "" {
		storeName = "STOREFRONT"
	}
	return &Builder{storeName: storeName}
}

// Project builds the receipt for order. It fails only on a discount line with
// an unknown source, which would mean the stored breakdown is corrupt.
func (b *Builder) Project(order *models.Order) (*Receipt, error) {
	bd := order.Breakdown
	r := &Receipt{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		ActorID:           order.ActorID,
		Status:            order.Status,
		PlacedAt:          order.CreatedAt,
		Lines:             make([]Line, 0, len(order.Items)),
		Discounts:         make([]Discount, 0, len(bd.Discounts)),
		Subtotal:          bd.Subtotal,
		PromotionDiscount: bd.PromotionDiscount,
		CouponDiscount:    bd.CouponDiscount,
		CouponCode:        bd.CouponCode,
		Tax:               bd.Tax,
		Shipping:          bd.Shipping,
		Total:             bd.Total,
		ShipTo:            order.ShippingAddress,
	}

	for _, item := range order.Items {
		r.Lines = append(r.Lines, Line{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			GiftWrap:    item.GiftWrap,
			GiftMessage: item.GiftMessage,
		})
	}

	for i, line := range bd.Discounts {
		d, err := discountEntry(line)
		if err != nil {
			return nil, fmt.Errorf("order %d discount %d: %w", order.ID, i, err)
		}
		r.Discounts = append(r.Discounts, d)
	}

	r.Text = b.Format(r)
	return r, nil
}

func discountEntry(line models.DiscountLine) (Discount, error) {
	switch line.Source {
	case models.DiscountSourcePromotion:
		p := line.Promotion
		if p == nil {
			return Discount{}, fmt.Errorf("promotion line without details")
		}
		return Discount{
			Source: line.Source,
			Label:  fmt.Sprintf("%s (%s%% off product #%d)", p.PromotionName, p.Percent.String(), p.ProductID),
			Amount: p.Amount,
		}, nil
	case models.DiscountSourceCoupon:
		c := line.Coupon
		if c == nil {
			return Discount{}, fmt.Errorf("coupon line without details")
		}
		label := fmt.Sprintf("Coupon %s", c.Code)
		if c.Kind == models.CouponPercentage {
			label = fmt.Sprintf("Coupon %s (%s%%)", c.Code, c.Value.String())
		}
		return Discount{Source: line.Source, Label: label, Amount: c.Amount}, nil
	default:
		return Discount{}, fmt.Errorf("unknown discount source %q", line.Source)
	}
}

// Format renders the plain-text receipt used in confirmation emails.
func (b *Builder) Format(r *Receipt) string {
	var lines []string
	rule := strings.Repeat("═", 40)
	thin := strings.Repeat("─", 40)

	lines = append(lines, rule)
	lines = append(lines, centre(b.storeName+" RECEIPT", 40))
	lines = append(lines, rule)
	lines = append(lines, fmt.Sprintf("Order: %s", r.OrderNumber))
	lines = append(lines, fmt.Sprintf("Placed: %s", r.PlacedAt.UTC().Format(time.RFC1123)))
	lines = append(lines, thin)

	for _, l := range r.Lines {
		lines = append(lines, fmt.Sprintf("%d x product #%d @ $%s = $%s",
			l.Quantity, l.ProductID, l.UnitPrice.StringFixed(2), l.Subtotal.StringFixed(2)))
		if l.GiftWrap {
			lines = append(lines, "    gift wrapped")
		}
		if l.GiftMessage != "" {
			lines = append(lines, fmt.Sprintf("    message: %q", l.GiftMessage))
		}
	}

	lines = append(lines, thin)
	lines = append(lines, amountRow("Subtotal:", r.Subtotal, false))
	for _, d := range r.Discounts {
		lines = append(lines, amountRow(d.Label+":", d.Amount, true))
	}
	lines = append(lines, amountRow("Tax:", r.Tax, false))
	if r.Shipping.IsPositive() {
		lines = append(lines, amountRow("Shipping:", r.Shipping, false))
	}
	lines = append(lines, thin)
	lines = append(lines, amountRow("TOTAL:", r.Total, false))
	lines = append(lines, thin)
	lines = append(lines, "Ship to:")
	lines = append(lines, "  "+r.ShipTo.FullName)
	lines = append(lines, "  "+r.ShipTo.Line1)
	if r.ShipTo.Line2 != "" {
		lines = append(lines, "  "+r.ShipTo.Line2)
	}
	lines = append(lines, fmt.Sprintf("  %s %s", r.ShipTo.PostalCode, r.ShipTo.City))
	lines = append(lines, "  "+r.ShipTo.Country)
	lines = append(lines, rule)
	lines = append(lines, centre("Thank you for your purchase!", 40))
	lines = append(lines, rule)

	return strings.Join(lines, "\n")
}

func amountRow(label string, amount decimal.Decimal, negative bool) string {
	value := "$" + amount.StringFixed(2)
	if negative {
		value = "-" + value
	}
	return fmt.Sprintf("%-28s %11s", label, value)
}

func centre(s string, width int) string {
	pad := (width - len([]rune(s))) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}
