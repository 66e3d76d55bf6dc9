package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInsufficientBalance    = errors.New("insufficient_balance")
	ErrUnknownSymbol          = errors.New("unknown_symbol")
	ErrTokenAlreadyRegistered = errors.New("token_already_registered")
	ErrUnknownOrder           = errors.New("unknown_order")
	ErrNotOrderOwner          = errors.New("not_order_owner")
	ErrExternalLedgerFailure  = errors.New("external_ledger_failure")
	ErrUnderflow              = errors.New("underflow")
	ErrInvariantViolation     = errors.New("invariant_violation")
	ErrWebhookNotFound        = errors.New("webhook_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
