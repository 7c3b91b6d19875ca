package repository

import "errors"

// Sentinel kinds for artifact persistence errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorrupt           = errors.New("corrupt artifact file")
)
