// Package coupon validates coupon codes against an order amount and reserves
// their uses.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/observability"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reason explains why a coupon was not applied.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNotFound          Reason = "not_found"
	ReasonInactive          Reason = "inactive"
	ReasonNotYetStarted     Reason = "not_yet_started"
	ReasonExpired           Reason = "expired"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonBelowMinimumOrder Reason = "below_minimum_order"
)

// ErrReservationConflict is returned by Reserve when the last use was taken
// by a concurrent checkout between validation and reservation.
var ErrReservationConflict = errors.New("coupon: usage limit reached during reservation")

var hundred = decimal.NewFromInt(100)

type Validation struct {
	Valid    bool
	Code     string
	Reason   Reason
	Coupon   *models.Coupon
	Discount models.CouponDiscount
}

// Evaluate checks a loaded coupon against orderAmount at now. It does not
// touch the usage counter.
func Evaluate(c *models.Coupon, orderAmount decimal.Decimal, now time.Time) Validation {
	if c == nil {
		return Validation{Reason: ReasonNotFound}
	}

	v := Validation{Code: c.Code, Coupon: c}
	switch {
	case !c.Active:
		v.Reason = ReasonInactive
	case now.Before(c.StartsAt):
		v.Reason = ReasonNotYetStarted
	case now.After(c.EndsAt):
		v.Reason = ReasonExpired
	case !c.HasUsesLeft():
		v.Reason = ReasonUsageLimitReached
	case orderAmount.LessThan(c.MinOrderAmount):
		v.Reason = ReasonBelowMinimumOrder
	default:
		v.Valid = true
		v.Discount = models.CouponDiscount{
			Code:   c.Code,
			Kind:   c.Kind,
			Value:  c.Value,
			Basis:  orderAmount,
			Amount: DiscountFor(c.Kind, c.Value, orderAmount),
		}
	}
	return v
}

// DiscountFor computes the coupon discount on orderAmount, never exceeding it.
func DiscountFor(kind models.CouponKind, value, orderAmount decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch kind {
	case models.CouponPercentage:
		amount = orderAmount.Mul(value).Div(hundred).Round(2)
	case models.CouponFixedAmount:
		amount = value
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, orderAmount)
}

// Ledger reads and reserves coupons through q, which may be the pool or an
// open transaction.
type Ledger struct {
	q      database.Querier
	logger *zap.Logger
}

func NewLedger(q database.Querier, logger *zap.Logger) *Ledger {
	return &Ledger{q: q, logger: observability.OrNop(logger)}
}

// WithQuerier returns a ledger bound to q, typically a checkout transaction.
func (l *Ledger) WithQuerier(q database.Querier) *Ledger {
	return &Ledger{q: q, logger: l.logger}
}

// Validate never reserves a use. Only infrastructure failures are returned as
// errors; an unusable code comes back as an invalid Validation.
func (l *Ledger) Validate(ctx context.Context, code string, orderAmount decimal.Decimal, now time.Time) (Validation, error) {
	canonical := models.CanonicalCouponCode(code)
	if canonical == "" {
		return Validation{Reason: ReasonNotFound}, nil
	}

	c, err := store.GetCouponByCode(ctx, l.q, canonical)
	if errors.Is(err, database.ErrCouponNotFound) {
		return Validation{Code: canonical, Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("validate coupon: %w", err)
	}

	v := Evaluate(c, orderAmount, now)
	if !v.Valid {
		l.logger.Debug("coupon rejected",
			zap.String("code", canonical),
			zap.String("reason", string(v.Reason)))
	}
	return v, nil
}

// Reserve consumes one use of code. It returns ErrReservationConflict when
// the limit was reached concurrently.
func (l *Ledger) Reserve(ctx context.Context, code string) error {
	reserved, err := store.ReserveCoupon(ctx, l.q, models.CanonicalCouponCode(code))
	if err != nil {
		return fmt.Errorf("reserve coupon: %w", err)
	}
	if !reserved {
		return ErrReservationConflict
	}
	return nil
}
