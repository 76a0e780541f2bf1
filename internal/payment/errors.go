package payment

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("validation failed")

var (
	ErrEmptyCart          = fmt.Errorf("%w: no items provided", ErrValidation)
	ErrInvalidQuantity    = fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	ErrMissingSize        = fmt.Errorf("%w: size is required", ErrValidation)
	ErrInvalidProvider    = fmt.Errorf("%w: unsupported payment provider", ErrValidation)
	ErrMissingShipping    = fmt.Errorf("%w: shipping field is required", ErrValidation)
	ErrProductUnavailable = fmt.Errorf("%w: product unavailable", ErrValidation)
	ErrInsufficientStock  = fmt.Errorf("%w: insufficient stock", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: unsupported payment status", ErrValidation)
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAlreadyProcessed  = errors.New("transaction already processed")
	ErrDuplicateRequest  = errors.New("request with this idempotency key is in progress")
	ErrInvalidTransition = errors.New("payment status cannot change from its current value")
)
