package checkout

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonEmptyCart         Reason = "empty_cart"
	ReasonInvalidAddress    Reason = "invalid_address"
	ReasonInsufficientStock Reason = "insufficient_stock"
)

// Error is a checkout rejected before anything was committed.
type Error struct {
	Reason    Reason
	Detail    string
	ProductID int64
	Err       error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("checkout: %s", e.Reason)
	}
	return fmt.Sprintf("checkout: %s: %s", e.Reason, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err rejects the request itself (empty cart or
// unusable address) rather than a conflict with current stock.
func IsValidation(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Reason == ReasonEmptyCart || ce.Reason == ReasonInvalidAddress
}

var ErrIllegalTransition = errors.New("checkout: illegal order status transition")
