package keyauth

import "errors"

// Authentication failure taxonomy. The API layer maps these to the
// client-visible envelope; anything else is a backend availability
// problem, not an authentication verdict.
var (
	ErrInvalidFormat    = errors.New("credential has invalid format")
	ErrNotFound         = errors.New("key not found")
	ErrExpired          = errors.New("credential expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

// FailureCode returns the machine-readable code for a typed failure, or
// "" when err is not one.
func FailureCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	}
	return ""
}
