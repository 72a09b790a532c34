package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

// CartItemUpdate carries the optional fields of a line update; nil leaves the
// column unchanged.
type CartItemUpdate struct {
	Quantity    *int
	GiftWrap    *bool
	GiftMessage *string
}

type NewCartItem struct {
	ProductID   int64
	UnitPrice   decimal.Decimal
	Quantity    int
	GiftWrap    bool
	GiftMessage string
}

const cartItemColumns = `id, product_id, unit_price, quantity, gift_wrap, gift_message, created_at, updated_at`

func scanCartItem(row interface{ Scan(...any) error }, item *models.CartLineItem) error {
	return row.Scan(
		&item.ID,
		&item.ProductID,
		&item.UnitPrice,
		&item.Quantity,
		&item.GiftWrap,
		&item.GiftMessage,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
}

// GetCart returns the actor's cart. A missing cart is an empty cart.
func GetCart(ctx context.Context, q database.Querier, actor models.ActorID) (*models.Cart, error) {
	return loadCart(ctx, q, actor, false)
}

// GetCartForUpdate is GetCart with the cart row locked until tx ends, so two
// checkouts of the same cart serialize.
func GetCartForUpdate(ctx context.Context, tx *sql.Tx, actor models.ActorID) (*models.Cart, error) {
	return loadCart(ctx, tx, actor, true)
}

func loadCart(ctx context.Context, q database.Querier, actor models.ActorID, lock bool) (*models.Cart, error) {
	cart := models.EmptyCart(actor)

	query := `SELECT created_at, updated_at, precomputed_tax FROM carts WHERE actor_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var tax decimal.NullDecimal
	err := q.QueryRowContext(ctx, query, actor).Scan(&cart.CreatedAt, &cart.UpdatedAt, &tax)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cart, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if tax.Valid {
		cart.PrecomputedTax = &tax.Decimal
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+cartItemColumns+` FROM cart_items WHERE actor_id = $1 ORDER BY id`,
		actor)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.CartLineItem
		if err := scanCartItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return cart, nil
}

func ensureCart(ctx context.Context, q database.Querier, actor models.ActorID) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO carts (actor_id, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 ON CONFLICT (actor_id) DO UPDATE SET updated_at = NOW()`,
		actor)
	if err != nil {
		return fmt.Errorf("ensure cart: %w", err)
	}
	return nil
}

// AddCartItem inserts a line, or increments the quantity of the existing line
// for the same product. The existing price snapshot is kept.
func AddCartItem(ctx context.Context, db *sql.DB, actor models.ActorID, req NewCartItem) (*models.CartLineItem, error) {
	item := &models.CartLineItem{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := ensureCart(ctx, tx, actor); err != nil {
			return err
		}

		err := scanCartItem(tx.QueryRowContext(ctx,
			`INSERT INTO cart_items (actor_id, product_id, unit_price, quantity, gift_wrap, gift_message, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			 ON CONFLICT (actor_id, product_id) DO UPDATE
			 SET quantity = cart_items.quantity + EXCLUDED.quantity,
			     gift_wrap = cart_items.gift_wrap OR EXCLUDED.gift_wrap,
			     gift_message = COALESCE(NULLIF(EXCLUDED.gift_message, ''), cart_items.gift_message),
			     updated_at = NOW()
			 RETURNING `+cartItemColumns,
			actor, req.ProductID, req.UnitPrice, req.Quantity, req.GiftWrap, req.GiftMessage), item)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("add cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

func UpdateCartItem(ctx context.Context, q database.Querier, actor models.ActorID, lineID int64, update CartItemUpdate) (*models.CartLineItem, error) {
	item := &models.CartLineItem{}

	err := scanCartItem(q.QueryRowContext(ctx,
		`UPDATE cart_items
		 SET quantity = COALESCE($3, quantity),
		     gift_wrap = COALESCE($4, gift_wrap),
		     gift_message = COALESCE($5, gift_message),
		     updated_at = NOW()
		 WHERE id = $1 AND actor_id = $2
		 RETURNING `+cartItemColumns,
		lineID, actor, update.Quantity, update.GiftWrap, update.GiftMessage), item)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	return item, nil
}

func RemoveCartItem(ctx context.Context, q database.Querier, actor models.ActorID, lineID int64) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND actor_id = $2`,
		lineID, actor)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return nil
}

// ClearCart deletes the cart and, by cascade, its lines. Clearing a missing
// cart is a no-op.
func ClearCart(ctx context.Context, q database.Querier, actor models.ActorID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM carts WHERE actor_id = $1`, actor); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// SetCartTax stores a tax amount computed outside this service; nil removes it
// so the flat rate applies again.
func SetCartTax(ctx context.Context, q database.Querier, actor models.ActorID, tax *decimal.Decimal) error {
	if err := ensureCart(ctx, q, actor); err != nil {
		return err
	}
	var value decimal.NullDecimal
	if tax != nil {
		value = decimal.NullDecimal{Decimal: *tax, Valid: true}
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE carts SET precomputed_tax = $2, updated_at = NOW() WHERE actor_id = $1`,
		actor, value); err != nil {
		return fmt.Errorf("set cart tax: %w", err)
	}
	return nil
}

// MergeCarts moves every line of the guest cart into the user cart, summing
// quantities for products present in both, then deletes the guest cart. A
// precomputed tax on the guest cart carries over when the user cart has none. The
// guest cart row is locked first, so a concurrent second merge finds it gone
// and does nothing. It returns the number of guest lines merged.
func MergeCarts(ctx context.Context, db *sql.DB, guest, user models.ActorID) (int, error) {
	var merged int

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		merged = 0

		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT actor_id FROM carts WHERE actor_id = $1 FOR UPDATE`,
			guest).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock guest cart: %w", err)
		}

		if err := ensureCart(ctx, tx, user); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO cart_items (actor_id, product_id, unit_price, quantity, gift_wrap, gift_message, created_at, updated_at)
			 SELECT $2, product_id, unit_price, quantity, gift_wrap, gift_message, created_at, NOW()
			 FROM cart_items
			 WHERE actor_id = $1
			 ORDER BY id
			 ON CONFLICT (actor_id, product_id) DO UPDATE
			 SET quantity = cart_items.quantity + EXCLUDED.quantity,
			     gift_wrap = cart_items.gift_wrap OR EXCLUDED.gift_wrap,
			     gift_message = COALESCE(NULLIF(cart_items.gift_message, ''), EXCLUDED.gift_message),
			     updated_at = NOW()`,
			guest, user)
		if err != nil {
			return fmt.Errorf("merge cart items: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		merged = int(rowsAffected)

		if _, err := tx.ExecContext(ctx,
			`UPDATE carts u SET precomputed_tax = g.precomputed_tax, updated_at = NOW()
			 FROM carts g
			 WHERE u.actor_id = $2 AND g.actor_id = $1
			   AND u.precomputed_tax IS NULL AND g.precomputed_tax IS NOT NULL`,
			guest, user); err != nil {
			return fmt.Errorf("carry guest cart tax: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE actor_id = $1`, guest); err != nil {
			return fmt.Errorf("delete guest cart: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return merged, nil
}
