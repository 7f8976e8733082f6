package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrAlreadyResolved   = errors.New("position already resolved")
	ErrInvalidTransition = errors.New("invalid position state transition")
	ErrNoLiquidity       = errors.New("no liquidity")
	ErrSignalUnavailable = errors.New("signal unavailable")
	ErrStakeRejected     = errors.New("stake rejected")
	ErrPositionLimit     = errors.New("position limit reached")
	ErrOrderRejected     = errors.New("order rejected")
)
