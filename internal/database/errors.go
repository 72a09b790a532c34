package database

import (
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

// ClassifyError sorts Postgres failures by whether a fresh attempt could
// succeed. Anything that is not a pq error is permanent.
func ClassifyError(err error) ErrorClass {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ErrorClassPermanent
	}

	switch pqErr.Code {
	case "40001":
		return ErrorClassSerialization
	case "40P01":
		return ErrorClassDeadlock
	case "55P03":
		return ErrorClassTransient
	default:
		return ErrorClassPermanent
	}
}

// IsForeignKeyViolation reports whether err is a 23503 raised by Postgres.
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, "23503")
}

// IsUniqueViolation reports whether err is a 23505 raised by Postgres.
func IsUniqueViolation(err error) bool {
	return hasCode(err, "23505")
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrPromotionNotFound    = errors.New("promotion not found")
	ErrAddressNotFound      = errors.New("address not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
	ErrDuplicate            = errors.New("already exists")
)
