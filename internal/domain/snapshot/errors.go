package snapshot

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidSnapshot = errors.New("invalid config snapshot")
)
