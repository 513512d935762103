package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrVenueAPI              = errors.New("venue api error")
	ErrRateLimited           = errors.New("rate limited")
	ErrLockHeld              = errors.New("lock already held")
)
