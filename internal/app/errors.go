package service

import "errors"

// Sentinel error kinds for the prediction service.
var (
	// ErrNotReady is returned by predictions before a successful Start.
	ErrNotReady = errors.New("service not ready")
	// ErrFailed wraps the load error of a service that can never serve.
	ErrFailed = errors.New("service failed to load")
	// ErrIncompleteBundle means a loader returned without every artifact.
	ErrIncompleteBundle = errors.New("incomplete artifact bundle")
	// ErrBatchTooLarge is returned when a batch exceeds the configured cap.
	ErrBatchTooLarge = errors.New("batch too large")
)
