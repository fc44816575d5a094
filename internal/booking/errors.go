package booking

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid input")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrForbidden         = errors.New("forbidden")
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPriceMismatch     = errors.New("price mismatch")
	ErrConflict          = errors.New("conflict")
	ErrExhaustedRetries  = errors.New("exhausted retries")
	ErrBusy              = errors.New("resource busy")
)

// ErrNoAvailability means no calendar entry exists for the requested day.
var ErrNoAvailability = fmt.Errorf("no availability: %w", ErrNotFound)

// ErrDuplicateNumber is returned by storage when a generated number is
// already taken. Callers regenerate and retry.
var ErrDuplicateNumber = errors.New("duplicate number")

// InsufficientStockError reports the stock observed when a reservation was refused.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
