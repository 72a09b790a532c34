package checkout

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/receipt"
	"github.com/safar/storefront/internal/store"
	"go.uber.org/zap"
)

// GetOrder returns the actor's order. Another actor's order reads as not
// found.
func (s *Service) GetOrder(ctx context.Context, actor models.ActorID, orderID int64) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.ActorID != actor {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

// GetReceipt projects the stored order. Promotions or coupons changed since
// the order was placed do not affect it.
func (s *Service) GetReceipt(ctx context.Context, actor models.ActorID, orderID int64) (*receipt.Receipt, error) {
	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return s.receipts.Project(order)
}

func (s *Service) ListOrders(ctx context.Context, actor models.ActorID, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	return store.ListOrdersCursor(ctx, s.db, actor, cursor, limit)
}

// UpdateStatus moves an order along its lifecycle. The financial breakdown
// is never touched.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrIllegalTransition, order.Status, to)
	}

	if err := store.UpdateOrderStatus(ctx, s.db, orderID, to, order.Version); err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(order.Status)),
		zap.String("to", string(to)))

	return store.GetOrder(ctx, s.db, orderID)
}

// ClaimNextPending moves the oldest pending order to processing and returns
// it. Concurrent workers never claim the same order. database.ErrOrderNotFound
// means nothing is waiting.
func (s *Service) ClaimNextPending(ctx context.Context) (*models.Order, error) {
	var claimed *models.Order

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetNextPendingOrder(ctx, tx)
		if err != nil {
			return err
		}

		if err := store.UpdateOrderStatus(ctx, tx, order.ID, models.OrderStatusProcessing, order.Version); err != nil {
			return err
		}

		claimed, err = store.GetOrder(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order claimed for fulfilment", zap.String("order_number", claimed.OrderNumber))
	return claimed, nil
}
