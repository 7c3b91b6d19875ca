package repository

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/okian/delaycast/internal/domain/snapshot"
)

// DecodeSnapshot reads and validates a YAML snapshot. Unknown keys are
// rejected so that a typo cannot silently fall back to a zero value.
func DecodeSnapshot(r io.Reader) (*snapshot.Snapshot, error) {
	var s snapshot.Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty snapshot", ErrCorrupt)
		}
		return nil, fmt.Errorf("%w: decode snapshot: %w", ErrCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeSnapshot writes s as YAML.
func EncodeSnapshot(w io.Writer, s *snapshot.Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Close()
}
