package market

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers branch with errors.Is; the concrete value
// carried through is a *MarketError holding the human-readable detail.
var (
	ErrNotFound          = errors.New("not_found")
	ErrStateInvalid      = errors.New("state_invalid")
	ErrValidation        = errors.New("validation")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrCapacityExceeded  = errors.New("capacity_exceeded")
	ErrDuplicateBooking  = errors.New("duplicate_booking")
	ErrOverlapBooking    = errors.New("overlap_booking")
	ErrQuotaExceeded     = errors.New("quota_exceeded")
	ErrConflict          = errors.New("conflict")
	ErrTimeout           = errors.New("timeout")
	ErrInternal          = errors.New("internal")
)

// MarketError pairs an error kind with detail. The kind doubles as the
// stable code surfaced to callers.
type MarketError struct {
	Kind   error
	Detail string
}

func (e *MarketError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *MarketError) Unwrap() error {
	return e.Kind
}

// Code returns the stable error code for the kind.
func (e *MarketError) Code() string {
	return e.Kind.Error()
}

func fail(kind error, format string, args ...any) error {
	return &MarketError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
