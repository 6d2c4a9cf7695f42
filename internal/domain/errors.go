package domain

import "github.com/pkg/errors"

// Validation failures returned by the ledger and previews. Callers match
// them with errors.Is and decide retry/UI behaviour; none of them is fatal.
var (
	ErrMarketUnavailable    = errors.New("market is closed or paused")
	ErrUnknownTicker        = errors.New("unknown ticker")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInsufficientFunds    = errors.New("insufficient cash")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)
