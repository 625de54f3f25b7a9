package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyClaimed    = errors.New("challenge already claimed")
	ErrExpired           = errors.New("challenge expired")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrIncompleteData    = errors.New("incomplete price data")
	ErrPriceLocked       = errors.New("price already recorded")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")

	// ErrDependencyUnavailable marks failures of an external dependency
	// (database, cache, price source) that the caller may retry.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
