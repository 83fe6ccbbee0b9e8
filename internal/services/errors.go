package services

import "errors"

// Cart mutation errors. The caller recovers locally by re-rendering the cart
// with a message.
var (
	ErrInvalidProduct   = errors.New("product has no identifier")
	ErrProductNotActive = errors.New("product is not available for sale")
	ErrOutOfStock       = errors.New("product is out of stock")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
)

// Checkout precondition errors.
var (
	ErrEmptyCart   = errors.New("cart is empty")
	ErrMissingUser = errors.New("no authenticated user for checkout")
)

// ErrGatewaySession means the external payment call failed or rejected the
// payload. The underlying order stays in `created` status and will be reused
// by the next checkout attempt, so retrying never duplicates it.
var ErrGatewaySession = errors.New("payment gateway session could not be created")

// ErrOrderNotFound means a payment callback could not be matched to any
// stored order. No order is fabricated.
var ErrOrderNotFound = errors.New("no matching order for payment callback")
