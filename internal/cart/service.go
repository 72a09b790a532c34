// Package cart owns the mutable line items of each actor's cart.
package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/observability"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be a positive integer")
	ErrInvalidActor    = errors.New("cart: actor id is required")
)

// Catalog is the slice of the product catalog the cart reads.
type Catalog interface {
	GetPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
	GetStock(ctx context.Context, productID int64) (int, error)
}

type AddRequest struct {
	ProductID   int64  `json:"product_id"`
	Quantity    int    `json:"quantity"`
	GiftWrap    bool   `json:"gift_wrap"`
	GiftMessage string `json:"gift_message"`
}

type UpdateRequest struct {
	Quantity    *int    `json:"quantity"`
	GiftWrap    *bool   `json:"gift_wrap"`
	GiftMessage *string `json:"gift_message"`
}

type AddResult struct {
	Item *models.CartLineItem `json:"item"`
	// LowStock is advisory: stock is only enforced at checkout.
	LowStock bool `json:"low_stock"`
}

type Service struct {
	db      *sql.DB
	catalog Catalog
	cache   Cache
	sfg     singleflight.Group
	logger  *zap.Logger
}

func NewService(db *sql.DB, catalog Catalog, cache Cache, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		db:      db,
		catalog: catalog,
		cache:   cache,
		logger:  observability.OrNop(logger),
	}
}

// loadTimeout bounds a shared cart load once it is detached from the caller.
const loadTimeout = 5 * time.Second

// Get returns the actor's cart; a missing cart is an empty cart. Concurrent
// callers share one load, which runs detached from any single caller so one
// cancelled request does not fail the others.
func (s *Service) Get(ctx context.Context, actor models.ActorID) (*models.Cart, error) {
	if actor == "" {
		return nil, ErrInvalidActor
	}

	ch := s.sfg.DoChan(string(actor), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx, actor)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers get their own copy; the shared result may be handed to several.
		return res.Val.(*models.Cart).Clone(), nil
	}
}

func (s *Service) load(ctx context.Context, actor models.ActorID) (*models.Cart, error) {
	cached, err := s.cache.Get(ctx, actor)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("cart cache get failed", zap.String("actor_id", actor.String()), zap.Error(err))
	}

	// Read the generation before the database so an invalidation that lands
	// in between keeps this load out of the cache.
	gen, genErr := s.cache.Generation(ctx, actor)
	if genErr != nil {
		s.logger.Warn("cart cache generation failed", zap.String("actor_id", actor.String()), zap.Error(genErr))
	}

	cart, err := store.GetCart(ctx, s.db, actor)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		err := s.cache.Set(ctx, actor, cart, gen)
		switch {
		case errors.Is(err, ErrStaleGeneration):
			s.logger.Debug("cart cache set skipped", zap.String("actor_id", actor.String()))
		case err != nil:
			s.logger.Warn("cart cache set failed", zap.String("actor_id", actor.String()), zap.Error(err))
		}
	}
	return cart, nil
}

// Add puts quantity units of a product in the cart at its current price. A
// product already in the cart has its quantity increased instead.
func (s *Service) Add(ctx context.Context, actor models.ActorID, req AddRequest) (*AddResult, error) {
	if actor == "" {
		return nil, ErrInvalidActor
	}
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	price, err := s.catalog.GetPrice(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	item, err := store.AddCartItem(ctx, s.db, actor, store.NewCartItem{
		ProductID:   req.ProductID,
		UnitPrice:   price,
		Quantity:    req.Quantity,
		GiftWrap:    req.GiftWrap,
		GiftMessage: req.GiftMessage,
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate(actor)

	result := &AddResult{Item: item}
	stock, err := s.catalog.GetStock(ctx, req.ProductID)
	if err != nil {
		s.logger.Warn("stock lookup failed", zap.Int64("product_id", req.ProductID), zap.Error(err))
	} else {
		result.LowStock = stock < item.Quantity
	}

	return result, nil
}

// Update changes a line's quantity or gift options. A quantity of zero or
// less removes the line.
func (s *Service) Update(ctx context.Context, actor models.ActorID, lineID int64, req UpdateRequest) (*models.CartLineItem, error) {
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, s.Remove(ctx, actor, lineID)
	}

	item, err := store.UpdateCartItem(ctx, s.db, actor, lineID, store.CartItemUpdate{
		Quantity:    req.Quantity,
		GiftWrap:    req.GiftWrap,
		GiftMessage: req.GiftMessage,
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate(actor)

	return item, nil
}

func (s *Service) Remove(ctx context.Context, actor models.ActorID, lineID int64) error {
	if err := store.RemoveCartItem(ctx, s.db, actor, lineID); err != nil {
		return err
	}
	s.Invalidate(actor)
	return nil
}

func (s *Service) Clear(ctx context.Context, actor models.ActorID) error {
	if err := store.ClearCart(ctx, s.db, actor); err != nil {
		return err
	}
	s.Invalidate(actor)
	return nil
}

// SetTax records a tax amount computed by an external service; nil reverts
// the cart to the flat rate.
func (s *Service) SetTax(ctx context.Context, actor models.ActorID, tax *decimal.Decimal) error {
	if tax != nil && tax.IsNegative() {
		return fmt.Errorf("cart: tax must not be negative")
	}
	if err := store.SetCartTax(ctx, s.db, actor, tax); err != nil {
		return err
	}
	s.Invalidate(actor)
	return nil
}

// Merge folds the guest cart into the user cart. Merging a guest cart that is
// already gone is a no-op.
func (s *Service) Merge(ctx context.Context, guest, user models.ActorID) (int, error) {
	if !guest.IsGuest() || !user.IsUser() {
		return 0, fmt.Errorf("cart: merge needs a guest and a user actor, got %q and %q", guest, user)
	}

	merged, err := store.MergeCarts(ctx, s.db, guest, user)
	if err != nil {
		return 0, err
	}

	s.Invalidate(guest)
	s.Invalidate(user)
	if merged > 0 {
		s.logger.Info("guest cart merged",
			zap.String("guest_id", guest.String()),
			zap.String("actor_id", user.String()),
			zap.Int("lines", merged))
	}
	return merged, nil
}

// Invalidate drops the cached cart. Errors are logged: a stale entry expires
// with its TTL.
func (s *Service) Invalidate(actor models.ActorID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, actor); err != nil {
		s.logger.Warn("cart cache invalidate failed", zap.String("actor_id", actor.String()), zap.Error(err))
	}
}

// IsNotFound reports whether err means the product or line does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, database.ErrProductNotFound) || errors.Is(err, database.ErrCartItemNotFound)
}
