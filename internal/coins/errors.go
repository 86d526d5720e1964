package coins

import "errors"

// Errors surfaced by the ledger and catalog. Handlers map these to HTTP
// status codes; anything not listed here is treated as a server failure.
var (
	ErrInsufficientFunds = errors.New("insufficient coin balance")
	ErrInvalidAmount     = errors.New("amount must be a positive integer")
	ErrPackageNotFound   = errors.New("coin package not found")
	ErrPackageInactive   = errors.New("coin package is not active")
)
