// Package snapshot defines the frozen configuration produced alongside a
// trained model: feature order, categorical vocabularies, fallback defaults
// and the versions the serving side must agree with.
package snapshot

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

// CurrentSchemaVersion is the snapshot layout this package reads.
const CurrentSchemaVersion = 1

// DefaultOtherLabel names the bucket for values outside a vocabulary.
const DefaultOtherLabel = "Other"

// Vocabularies are the categorical values recognized at training time.
// Position in a slice is the encoded value of that category.
type Vocabularies struct {
	Line      []string `yaml:"line" json:"line" validate:"unique,dive,required"`
	Direction []string `yaml:"direction" json:"direction" validate:"unique,dive,required"`
	Station   []string `yaml:"station" json:"station" validate:"unique,dive,required"`
}

// FallbackDefaults configure how sparse historical rates are resolved.
type FallbackDefaults struct {
	GlobalRate        float64 `yaml:"global_rate" json:"global_rate" validate:"gte=0,lte=1"`
	MinSupport        int     `yaml:"min_support" json:"min_support" validate:"gte=1"`
	SmoothingStrength float64 `yaml:"smoothing_strength" json:"smoothing_strength" validate:"gte=0"`
}

// Snapshot is the immutable configuration paired with a model artifact.
type Snapshot struct {
	SchemaVersion      int              `yaml:"schema_version" json:"schema_version" validate:"eq=1"`
	ArtifactVersion    string           `yaml:"artifact_version" json:"artifact_version" validate:"required"`
	TransformerVersion string           `yaml:"transformer_version" json:"transformer_version" validate:"required"`
	RateStoreVersion   int              `yaml:"rate_store_version" json:"rate_store_version" validate:"gte=1"`
	FeatureOrder       []string         `yaml:"feature_order" json:"feature_order" validate:"required,min=1,unique,dive,required"`
	Vocabularies       Vocabularies     `yaml:"vocabularies" json:"vocabularies"`
	OtherLabel         string           `yaml:"other_label" json:"other_label" validate:"required"`
	FallbackDefaults   FallbackDefaults `yaml:"fallback_defaults" json:"fallback_defaults"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the snapshot's internal consistency.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	for name, vocab := range map[string][]string{
		"line":      s.Vocabularies.Line,
		"direction": s.Vocabularies.Direction,
		"station":   s.Vocabularies.Station,
	} {
		if slices.Contains(vocab, s.OtherLabel) {
			return fmt.Errorf("%w: %s vocabulary contains the other label %q", ErrInvalidSnapshot, name, s.OtherLabel)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.FeatureOrder = slices.Clone(s.FeatureOrder)
	c.Vocabularies = Vocabularies{
		Line:      slices.Clone(s.Vocabularies.Line),
		Direction: slices.Clone(s.Vocabularies.Direction),
		Station:   slices.Clone(s.Vocabularies.Station),
	}
	return &c
}

// Index returns the encoded position of value in vocab. Values outside the
// vocabulary share the Other bucket at len(vocab); known is false for them.
func Index(vocab []string, value string) (code int, known bool) {
	if i := slices.Index(vocab, value); i >= 0 {
		return i, true
	}
	return len(vocab), false
}
