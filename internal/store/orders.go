package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const orderColumns = `id, order_number, actor_id, status, breakdown, shipping_address, created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }, order *models.Order) error {
	var breakdown, address []byte
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.ActorID,
		&order.Status,
		&breakdown,
		&address,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(breakdown, &order.Breakdown); err != nil {
		return fmt.Errorf("decode breakdown: %w", err)
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return fmt.Errorf("decode shipping address: %w", err)
	}
	return nil
}

// InsertOrder writes the order row and its line items inside tx and fills in
// the generated ids and timestamps. The breakdown is stored verbatim as JSON
// next to its numeric columns.
func InsertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	breakdown, err := json.Marshal(order.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}

	b := order.Breakdown
	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (order_number, actor_id, status, subtotal, tax, shipping, promotion_discount,
		                     coupon_discount, coupon_code, total, breakdown, shipping_address,
		                     created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW(), 1)
		 RETURNING id, created_at, updated_at, version`,
		order.OrderNumber, order.ActorID, order.Status,
		b.Subtotal, b.Tax, b.Shipping, b.PromotionDiscount, b.CouponDiscount, b.CouponCode, b.Total,
		breakdown, address).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal, gift_wrap, gift_message, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			 RETURNING id, created_at`,
			order.ID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal, item.GiftWrap, item.GiftMessage).
			Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}

	return nil
}

func GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := getOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func getOrderItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price, subtotal, gift_wrap, gift_message, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.GiftWrap,
			&item.GiftMessage,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListOrdersCursor(ctx context.Context, q database.Querier, actor models.ActorID, cursor string, limit int) (*CursorPage[models.Order], error) {
	limit = ClampPageSize(limit)

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE actor_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, actor, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage[models.Order]{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateOrderStatus changes only the status column, guarded by the version the
// caller read. A concurrent change yields ErrOptimisticLockFailed.
func UpdateOrderStatus(ctx context.Context, q database.Querier, id int64, status models.OrderStatus, version int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		status, id, version)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

// GetNextPendingOrder locks the oldest pending order, skipping rows other
// workers already hold.
func GetNextPendingOrder(ctx context.Context, tx *sql.Tx) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at, id
		FOR UPDATE SKIP LOCKED
		LIMIT 1`

	err := scanOrder(tx.QueryRowContext(ctx, query, models.OrderStatusPending), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get next pending order: %w", err)
	}

	return order, nil
}
