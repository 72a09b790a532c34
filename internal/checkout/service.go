// Package checkout turns a cart into a committed order.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/safar/storefront/internal/coupon"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/notify"
	"github.com/safar/storefront/internal/observability"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/receipt"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

type CartReader interface {
	Get(ctx context.Context, actor models.ActorID) (*models.Cart, error)
	Invalidate(actor models.ActorID)
}

// Mailer hands a confirmation off for background delivery.
type Mailer interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

type OrderPublisher interface {
	PublishOrderPlaced(ctx context.Context, order *models.Order) error
}

type Deps struct {
	DB       *sql.DB
	Carts    CartReader
	Receipts *receipt.Builder
	// Mailer and Events are optional.
	Mailer Mailer
	Events OrderPublisher
	Policy pricing.Policy
	Clock  func() time.Time
	Logger *zap.Logger
}

type Service struct {
	db         *sql.DB
	carts      CartReader
	promotions *pricing.PromotionResolver
	coupons    *coupon.Ledger
	receipts   *receipt.Builder
	mailer     Mailer
	events     OrderPublisher
	policy     pricing.Policy
	now        func() time.Time
	logger     *zap.Logger
	wg         sync.WaitGroup

	// beforeReserve, when set, runs between coupon validation and reservation.
	beforeReserve func(ctx context.Context, code string)
}

func NewService(deps Deps) *Service {
	logger := observability.OrNop(deps.Logger)
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	receipts := deps.Receipts
	if receipts == nil {
		receipts = receipt.NewBuilder("")
	}

	return &Service{
		db:         deps.DB,
		carts:      deps.Carts,
		promotions: pricing.NewPromotionResolver(store.NewPromotionCatalog(deps.DB), logger),
		coupons:    coupon.NewLedger(deps.DB, logger),
		receipts:   receipts,
		mailer:     deps.Mailer,
		events:     deps.Events,
		policy:     deps.Policy,
		now:        now,
		logger:     logger,
	}
}

type Request struct {
	Actor      models.ActorID
	CouponCode string
	// AddressID selects a saved address; otherwise Address is used as given.
	AddressID int64
	Address   *models.Address
}

type Result struct {
	Order   *models.Order
	Receipt *receipt.Receipt
	// CouponRejected explains why a requested coupon is not on the order.
	CouponRejected coupon.Reason
}

// ComputeCartPromotions prices the current cart with promotions only. It has
// no side effects.
func (s *Service) ComputeCartPromotions(ctx context.Context, actor models.ActorID) (models.PricingBreakdown, error) {
	cart, err := s.carts.Get(ctx, actor)
	if err != nil {
		return models.PricingBreakdown{}, fmt.Errorf("load cart: %w", err)
	}

	return pricing.Calculate(pricing.Input{
		Cart:       cart,
		Promotions: s.promotions.Resolve(ctx, cart.Items, s.now()),
		Policy:     s.policy,
	}), nil
}

// Checkout commits the actor's cart as an order in one transaction: coupon
// reservation, stock decrements, the order rows and clearing the cart all
// commit together or not at all. A coupon that cannot be applied never blocks
// the order; the reason is reported in the result.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if req.Actor == "" {
		return nil, errors.New("checkout: actor id is required")
	}

	var (
		order    *models.Order
		rejected coupon.Reason
	)

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, rejected = nil, coupon.ReasonNone
		now := s.now()

		cart, err := store.GetCartForUpdate(ctx, tx, req.Actor)
		if err != nil {
			return err
		}
		if cart.IsEmpty() {
			return &Error{Reason: ReasonEmptyCart}
		}

		// Every read below goes through tx so a checkout holds one connection.
		address, err := shippingAddress(ctx, tx, req)
		if err != nil {
			return err
		}

		promotions := s.promotions.WithLookup(store.NewPromotionCatalog(tx))
		input := pricing.Input{
			Cart:       cart,
			Promotions: promotions.Resolve(ctx, cart.Items, now),
			Policy:     s.policy,
		}

		ledger := s.coupons.WithQuerier(tx)
		if strings.TrimSpace(req.CouponCode) != "" {
			v, err := ledger.Validate(ctx, req.CouponCode, cart.Subtotal(), now)
			if err != nil {
				return err
			}
			if v.Valid {
				input.Coupon = &v.Discount
			} else {
				rejected = v.Reason
			}
		}

		breakdown := pricing.Calculate(input)

		if input.Coupon != nil {
			if s.beforeReserve != nil {
				s.beforeReserve(ctx, input.Coupon.Code)
			}
			err := ledger.Reserve(ctx, input.Coupon.Code)
			if errors.Is(err, coupon.ErrReservationConflict) {
				rejected = s.revalidate(ctx, ledger, req, cart.Subtotal(), now)
				input.Coupon = nil
				breakdown = pricing.Calculate(input)
			} else if err != nil {
				return err
			}
		}

		if err := decrementStock(ctx, tx, cart.Items); err != nil {
			return err
		}

		order = newOrder(req.Actor, cart, breakdown, address)
		if err := store.InsertOrder(ctx, tx, order); err != nil {
			return err
		}

		return store.ClearCart(ctx, tx, req.Actor)
	})
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			s.logger.Info("checkout rejected",
				zap.String("actor_id", req.Actor.String()),
				zap.String("reason", string(ce.Reason)),
				zap.String("detail", ce.Detail))
			return nil, ce
		}
		return nil, fmt.Errorf("checkout: %w", err)
	}

	s.carts.Invalidate(req.Actor)
	s.logger.Info("order placed",
		zap.String("actor_id", req.Actor.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Breakdown.Total.StringFixed(2)),
		zap.String("coupon_code", order.Breakdown.CouponCode))

	result := &Result{Order: order, CouponRejected: rejected}
	rcpt, err := s.receipts.Project(order)
	if err != nil {
		s.logger.Error("receipt projection failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
	} else {
		result.Receipt = rcpt
		s.sendConfirmation(ctx, order, rcpt)
	}
	s.publish(ctx, order)

	return result, nil
}

// Wait blocks until background event publication has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func shippingAddress(ctx context.Context, q database.Querier, req Request) (models.Address, error) {
	var address models.Address

	switch {
	case req.AddressID != 0:
		stored, err := store.GetAddress(ctx, q, req.AddressID)
		if errors.Is(err, database.ErrAddressNotFound) || (err == nil && stored.ActorID != req.Actor) {
			return address, &Error{Reason: ReasonInvalidAddress, Detail: "address not found", Err: database.ErrAddressNotFound}
		}
		if err != nil {
			return address, fmt.Errorf("load address: %w", err)
		}
		address = *stored
	case req.Address != nil:
		address = *req.Address
		address.ActorID = req.Actor
	default:
		return address, &Error{Reason: ReasonInvalidAddress, Detail: "shipping address is required"}
	}

	if missing := address.MissingFields(); len(missing) > 0 {
		return address, &Error{Reason: ReasonInvalidAddress, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return address, nil
}

// revalidate is called after losing the race for a coupon's last use. The
// order proceeds without the coupon either way.
func (s *Service) revalidate(ctx context.Context, ledger *coupon.Ledger, req Request, subtotal decimal.Decimal, now time.Time) coupon.Reason {
	reason := coupon.ReasonUsageLimitReached
	v, err := ledger.Validate(ctx, req.CouponCode, subtotal, now)
	if err == nil && !v.Valid {
		reason = v.Reason
	}
	s.logger.Warn("coupon reservation lost, pricing without coupon",
		zap.String("actor_id", req.Actor.String()),
		zap.String("coupon_code", models.CanonicalCouponCode(req.CouponCode)),
		zap.String("reason", string(reason)))
	return reason
}

// decrementStock walks lines in product id order so concurrent checkouts lock
// product rows in the same order.
func decrementStock(ctx context.Context, tx *sql.Tx, items []models.CartLineItem) error {
	lines := make([]models.CartLineItem, len(items))
	copy(lines, items)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	catalog := store.NewCatalog(tx)
	for _, line := range lines {
		ok, err := catalog.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return &Error{
				Reason:    ReasonInsufficientStock,
				Detail:    fmt.Sprintf("product %d", line.ProductID),
				ProductID: line.ProductID,
				Err:       database.ErrInsufficientStock,
			}
		}
	}
	return nil
}

func newOrder(actor models.ActorID, cart *models.Cart, breakdown models.PricingBreakdown, address models.Address) *models.Order {
	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, models.OrderItem{
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.LineTotal(),
			GiftWrap:    line.GiftWrap,
			GiftMessage: line.GiftMessage,
		})
	}

	return &models.Order{
		OrderNumber:     "ORD-" + ulid.Make().String(),
		ActorID:         actor,
		Status:          models.OrderStatusPending,
		Items:           items,
		Breakdown:       breakdown,
		ShippingAddress: address,
	}
}

func (s *Service) sendConfirmation(ctx context.Context, order *models.Order, rcpt *receipt.Receipt) {
	if s.mailer == nil {
		return
	}
	recipient := strings.TrimSpace(order.ShippingAddress.Email)
	if recipient == "" {
		s.logger.Debug("no email on shipping address, skipping confirmation",
			zap.String("order_number", order.OrderNumber))
		return
	}

	s.mailer.Dispatch(ctx, notify.Message{
		Recipient: recipient,
		Subject:   fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		Body:      rcpt.Text,
		Reference: order.OrderNumber,
	})
}

func (s *Service) publish(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.events.PublishOrderPlaced(pubCtx, order); err != nil {
			s.logger.Warn("order event publish failed",
				zap.String("order_number", order.OrderNumber),
				zap.Error(err))
		}
	}()
}
