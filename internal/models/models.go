package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ActorID keys every cart, address and order. It lives in exactly one of two
// subspaces, "guest:<token>" or "user:<id>", and never moves between them.
type ActorID string

const (
	guestPrefix = "guest:"
	userPrefix  = "user:"
)

var ErrInvalidActorID = errors.New("invalid actor id")

func GuestActor(token string) ActorID {
	return ActorID(guestPrefix + token)
}

func UserActor(id string) ActorID {
	return ActorID(userPrefix + id)
}

func ParseActorID(raw string) (ActorID, error) {
	switch {
	case strings.HasPrefix(raw, guestPrefix) && len(raw) > len(guestPrefix):
		return ActorID(raw), nil
	case strings.HasPrefix(raw, userPrefix) && len(raw) > len(userPrefix):
		return ActorID(raw), nil
	}
	return "", ErrInvalidActorID
}

func (a ActorID) IsGuest() bool {
	return strings.HasPrefix(string(a), guestPrefix)
}

func (a ActorID) IsUser() bool {
	return strings.HasPrefix(string(a), userPrefix)
}

func (a ActorID) String() string {
	return string(a)
}

type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Address struct {
	ID         int64     `json:"id,omitempty"`
	ActorID    ActorID   `json:"actor_id,omitempty"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	Region     string    `json:"region,omitempty"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	CreatedAt  time.Time `json:"created_at"`
}

// MissingFields lists the required shipping fields left blank.
func (a Address) MissingFields() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}
