package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const addressColumns = `id, actor_id, full_name, email, phone, line1, line2, city, region, postal_code, country, created_at`

func scanAddress(row interface{ Scan(...any) error }, address *models.Address) error {
	return row.Scan(
		&address.ID,
		&address.ActorID,
		&address.FullName,
		&address.Email,
		&address.Phone,
		&address.Line1,
		&address.Line2,
		&address.City,
		&address.Region,
		&address.PostalCode,
		&address.Country,
		&address.CreatedAt,
	)
}

func CreateAddress(ctx context.Context, q database.Querier, address models.Address) (*models.Address, error) {
	created := &models.Address{}

	query := `
		INSERT INTO addresses (actor_id, full_name, email, phone, line1, line2, city, region, postal_code, country, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING ` + addressColumns

	err := scanAddress(q.QueryRowContext(ctx, query,
		address.ActorID,
		address.FullName,
		address.Email,
		address.Phone,
		address.Line1,
		address.Line2,
		address.City,
		address.Region,
		address.PostalCode,
		address.Country,
	), created)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}

	return created, nil
}

func GetAddress(ctx context.Context, q database.Querier, id int64) (*models.Address, error) {
	address := &models.Address{}

	err := scanAddress(q.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id), address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return address, nil
}

func ListAddresses(ctx context.Context, q database.Querier, actor models.ActorID, page, pageSize int) (*OffsetPage[models.Address], error) {
	if page < 1 {
		page = 1
	}
	pageSize = ClampPageSize(pageSize)

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses WHERE actor_id = $1`, actor).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count addresses: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := q.QueryContext(ctx, query, actor, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []models.Address{}
	for rows.Next() {
		var address models.Address
		if err := scanAddress(rows, &address); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, address)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage[models.Address]{
		Items:      addresses,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
