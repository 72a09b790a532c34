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

const productColumns = `id, sku, name, description, price, stock_quantity, created_at, updated_at, version`

func scanProduct(row interface{ Scan(...any) error }, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.StockQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func CreateProduct(ctx context.Context, q database.Querier, sku, name, description string, price decimal.Decimal, stock int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, price, stock_quantity, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query, sku, name, description, price, stock), product)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("product %s: %w", sku, database.ErrDuplicate)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q database.Querier, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	err := scanProduct(q.QueryRowContext(ctx, query, id), product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// DecrementStock subtracts quantity in a single guarded statement; stock never
// goes below zero. A depleted or missing product yields ErrInsufficientStock.
func DecrementStock(ctx context.Context, q database.Querier, productID int64, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// Catalog exposes the product table through the narrow price/stock contract
// used by the cart and checkout. Bound to a transaction, its stock decrements
// commit or roll back with it.
type Catalog struct {
	q database.Querier
}

func NewCatalog(q database.Querier) *Catalog {
	return &Catalog{q: q}
}

func (c *Catalog) GetPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := c.q.QueryRowContext(ctx, `SELECT price FROM products WHERE id = $1`, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, database.ErrProductNotFound
		}
		return decimal.Zero, fmt.Errorf("get price: %w", err)
	}
	return price, nil
}

func (c *Catalog) GetStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := c.q.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = $1`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrProductNotFound
		}
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

// DecrementStock reports false, without error, when stock is insufficient.
func (c *Catalog) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	err := DecrementStock(ctx, c.q, productID, quantity)
	if errors.Is(err, database.ErrInsufficientStock) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
