package services

import (
	"errors"
	"fmt"
)

var (
	ErrGeocodeUnresolved  = errors.New("address could not be geocoded")
	ErrDeliveryUnresolved = errors.New("delivery fee could not be calculated for this address")
	ErrFeeAlreadyAdjusted = errors.New("delivery fee was already adjusted")
	ErrFeeNotAdjustable   = errors.New("delivery fee cannot be adjusted for this order")
	ErrMotoboyInactive    = errors.New("motoboy is not active")
	ErrInvalidCredentials = errors.New("invalid whatsapp or password")
)

// ValidationError is returned for malformed input that no retry will fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
