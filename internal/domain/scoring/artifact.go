// Package scoring wraps the trained classifier: it binds an artifact to the
// feature order it was trained on and guards every inference call.
package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/okian/delaycast/internal/domain/model"
)

// Classifier is the opaque trained model.
type Classifier interface {
	// PredictProbability returns P(delay) for an ordered feature vector.
	PredictProbability(x []float64) (float64, error)
}

// validator is implemented by classifiers that can check themselves
// against a vector width before serving.
type validator interface {
	Validate(nFeatures int) error
}

// Metadata travels with the artifact and describes how it was trained.
type Metadata struct {
	FeatureOrder      []string           `json:"feature_order"`
	DecisionThreshold float64            `json:"decision_threshold"`
	TrainingSummary   map[string]float64 `json:"training_summary,omitempty"`
}

// Artifact is a loaded, not yet verified, model.
type Artifact struct {
	Version    string
	Metadata   Metadata
	Classifier Classifier
}

// Model is an artifact verified against the serving feature order.
type Model struct {
	version   string
	order     []string
	threshold float64
	clf       Classifier
}

// Bind verifies that the artifact was trained on exactly featureOrder and
// carries artifactVersion. Any disagreement is an ErrArtifactMismatch.
func Bind(a Artifact, featureOrder []string, artifactVersion string) (*Model, error) {
	if a.Classifier == nil {
		return nil, fmt.Errorf("%w: artifact has no classifier", ErrArtifactMismatch)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("%w: artifact version %q, snapshot expects %q",
			ErrArtifactMismatch, a.Version, artifactVersion)
	}
	got := a.Metadata.FeatureOrder
	if len(got) != len(featureOrder) {
		return nil, fmt.Errorf("%w: artifact has %d features, snapshot has %d",
			ErrArtifactMismatch, len(got), len(featureOrder))
	}
	for i := range got {
		if got[i] != featureOrder[i] {
			return nil, fmt.Errorf("%w: feature %d is %q in the artifact and %q in the snapshot",
				ErrArtifactMismatch, i, got[i], featureOrder[i])
		}
	}
	t := a.Metadata.DecisionThreshold
	if !(t > 0 && t < 1) {
		return nil, fmt.Errorf("%w: decision threshold %v outside (0,1)", ErrArtifactMismatch, t)
	}
	if v, ok := a.Classifier.(validator); ok {
		if err := v.Validate(len(featureOrder)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArtifactMismatch, err)
		}
	}
	return &Model{
		version:   a.Version,
		order:     slices.Clone(featureOrder),
		threshold: t,
		clf:       a.Classifier,
	}, nil
}

// Version returns the artifact version.
func (m *Model) Version() string { return m.version }

// Threshold returns the decision threshold.
func (m *Model) Threshold() float64 { return m.threshold }

// FeatureOrder returns a copy of the bound feature order.
func (m *Model) FeatureOrder() []string { return slices.Clone(m.order) }

// PredictProbability runs the classifier on x. Classifier errors, panics
// and probabilities outside [0,1] all surface as ErrModelInference.
func (m *Model) PredictProbability(x []float64) (p float64, err error) {
	if len(x) != len(m.order) {
		return 0, fmt.Errorf("%w: vector has %d values, model expects %d",
			ErrModelInference, len(x), len(m.order))
	}
	defer func() {
		if r := recover(); r != nil {
			p, err = 0, fmt.Errorf("%w: classifier panicked: %v", ErrModelInference, r)
		}
	}()
	p, err = m.clf.PredictProbability(x)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrModelInference, err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: probability %v outside [0,1]", ErrModelInference, p)
	}
	return p, nil
}

// Label applies the decision threshold.
func (m *Model) Label(p float64) model.Label {
	if p >= m.threshold {
		return model.LabelDelay
	}
	return model.LabelNoDelay
}
