package scoring

import "errors"

// Sentinel errors returned by this package.
var (
	// ErrArtifactMismatch means the artifact does not agree with the
	// snapshot it is served with. It is fatal at load time.
	ErrArtifactMismatch = errors.New("artifact mismatch")
	// ErrModelInference means the classifier failed or produced an
	// unusable probability for a well-formed vector.
	ErrModelInference = errors.New("model inference failed")
	// ErrInvalidEnsemble means a serialized tree ensemble is malformed.
	ErrInvalidEnsemble = errors.New("invalid tree ensemble")
)
