// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and the environment.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"

	"github.com/go-playground/validator/v10"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// RateStorePath points at the historical rate table.
	RateStorePath string `koanf:"rate_store_path" validate:"required"`

	// RateStoreFormat forces json or sqlite; empty picks by file extension.
	RateStoreFormat string `koanf:"rate_store_format" validate:"omitempty,oneof=json sqlite"`

	// ArtifactPath points at the model artifact envelope.
	ArtifactPath string `koanf:"artifact_path" validate:"required"`

	// SnapshotPath points at the YAML config snapshot.
	SnapshotPath string `koanf:"snapshot_path" validate:"required"`

	// SweepWorkers bounds the goroutines evaluating one day sweep.
	SweepWorkers int `koanf:"sweep_workers" validate:"gte=1"`

	// MaxBatchSize caps the events accepted by one batch request.
	MaxBatchSize int `koanf:"max_batch_size" validate:"gte=1,lte=100000"`

	// ConfidenceHighCutoff and ConfidenceMediumCutoff bound the normalized
	// distance from the decision threshold for the high and medium tiers.
	ConfidenceHighCutoff   float64 `koanf:"confidence_high_cutoff" validate:"gt=0,lte=1,gtfield=ConfidenceMediumCutoff"`
	ConfidenceMediumCutoff float64 `koanf:"confidence_medium_cutoff" validate:"gt=0,lt=1"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		RateStorePath:          "artifacts/rates.json",
		ArtifactPath:           "artifacts/model.json",
		SnapshotPath:           "artifacts/snapshot.yaml",
		SweepWorkers:           runtime.NumCPU(),
		MaxBatchSize:           1000,
		ConfidenceHighCutoff:   0.6,
		ConfidenceMediumCutoff: 0.3,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
