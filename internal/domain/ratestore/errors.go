package ratestore

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidTable     = errors.New("invalid rate table")
	ErrUnknownDimension = errors.New("unknown rate dimension")
)
