package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrLockHeld           = errors.New("lock already held")
)

// Market state errors. Each wraps ErrInvalidState.
var (
	ErrMarketInactive  = fmt.Errorf("%w: market not active", ErrInvalidState)
	ErrMarketClosed    = fmt.Errorf("%w: market closed", ErrInvalidState)
	ErrAlreadyResolved = fmt.Errorf("%w: already resolved", ErrInvalidState)
	ErrMarketHasBets   = fmt.Errorf("%w: market has bets", ErrInvalidState)
)
