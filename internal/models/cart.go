package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLineItem carries the unit price captured when the product was added.
// The snapshot is never refreshed from the catalog.
type CartLineItem struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	GiftWrap    bool            `json:"gift_wrap"`
	GiftMessage string          `json:"gift_message,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (l CartLineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	ActorID        ActorID          `json:"actor_id"`
	Items          []CartLineItem   `json:"items"`
	PrecomputedTax *decimal.Decimal `json:"precomputed_tax,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// EmptyCart is what a read returns for an actor without a persisted cart.
func EmptyCart(actor ActorID) *Cart {
	return &Cart{ActorID: actor, Items: []CartLineItem{}}
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy so a snapshot cannot be mutated through the source.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = make([]CartLineItem, len(c.Items))
	copy(out.Items, c.Items)
	if c.PrecomputedTax != nil {
		tax := *c.PrecomputedTax
		out.PrecomputedTax = &tax
	}
	return &out
}
