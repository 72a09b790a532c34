package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrMalformedCursor = errors.New("malformed cursor")

// CursorPage is one keyset page. NextCursor is empty on the last page.
type CursorPage[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

type OffsetPage[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// ClampPageSize maps a caller-supplied size into [1, MaxPageSize].
func ClampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// OrderCursor is the (created_at, id) position of the last order on a page.
type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor treats an empty string as "before everything", i.e. the first
// page.
func DecodeCursor(encoded string) (OrderCursor, error) {
	if encoded == "" {
		return OrderCursor{
			CreatedAt: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
			ID:        math.MaxInt64,
		}, nil
	}

	var cursor OrderCursor
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	if err := json.Unmarshal(data, &cursor); err != nil {
		return cursor, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	return cursor, nil
}
