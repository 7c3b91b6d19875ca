package training

import "errors"

// Sentinel error kinds for the offline pipeline.
var (
	ErrMissingColumn  = errors.New("missing required column")
	ErrNoIncidents    = errors.New("no usable incidents")
	ErrInvalidOptions = errors.New("invalid build options")
)
