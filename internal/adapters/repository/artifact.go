package repository

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/okian/delaycast/internal/domain/scoring"
)

type artifactEnvelope struct {
	Format          string           `json:"format"`
	ArtifactVersion string           `json:"artifact_version"`
	Metadata        scoring.Metadata `json:"metadata"`
	Model           json.RawMessage  `json:"model"`
}

// DecodeArtifact reads a model artifact envelope. The classifier payload is
// decoded according to the envelope's format.
func DecodeArtifact(r io.Reader) (scoring.Artifact, error) {
	var env artifactEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return scoring.Artifact{}, fmt.Errorf("%w: decode artifact: %w", ErrCorrupt, err)
	}
	var clf scoring.Classifier
	switch env.Format {
	case scoring.EnsembleFormat:
		var e scoring.TreeEnsemble
		if err := json.Unmarshal(env.Model, &e); err != nil {
			return scoring.Artifact{}, fmt.Errorf("%w: decode %s model: %w", ErrCorrupt, env.Format, err)
		}
		clf = &e
	default:
		return scoring.Artifact{}, fmt.Errorf("%w: model format %q", ErrUnsupportedFormat, env.Format)
	}
	return scoring.Artifact{
		Version:    env.ArtifactVersion,
		Metadata:   env.Metadata,
		Classifier: clf,
	}, nil
}

// EncodeArtifact writes a tree ensemble artifact envelope.
func EncodeArtifact(w io.Writer, a scoring.Artifact) error {
	e, ok := a.Classifier.(*scoring.TreeEnsemble)
	if !ok {
		return fmt.Errorf("%w: classifier %T", ErrUnsupportedFormat, a.Classifier)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifactEnvelope{
		Format:          scoring.EnsembleFormat,
		ArtifactVersion: a.Version,
		Metadata:        a.Metadata,
		Model:           raw,
	}); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}
