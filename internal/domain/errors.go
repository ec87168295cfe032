package domain

import "errors"

var (
	ErrInvalidSide        = errors.New("invalid order side")
	ErrInvalidKind        = errors.New("invalid order kind")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidPrice       = errors.New("limit price must be positive")
	ErrMissingIdentifier  = errors.New("order and client identifiers are required")
	ErrInstrumentMismatch = errors.New("order instrument does not match engine")
	ErrUnknownInstrument  = errors.New("unknown instrument")
	ErrOrderNotFound      = errors.New("order not found")
)

// IsValidationError reports whether err was caused by a malformed order.
// Such errors are never retryable and the book was not touched.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidSide,
		ErrInvalidKind,
		ErrInvalidQuantity,
		ErrInvalidPrice,
		ErrMissingIdentifier,
		ErrInstrumentMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
