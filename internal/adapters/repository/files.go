package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/okian/delaycast/internal/domain/ratestore"
	"github.com/okian/delaycast/internal/domain/scoring"
	"github.com/okian/delaycast/internal/domain/snapshot"
)

// LoadRates reads the rate table at path in the given format ("" picks by
// extension).
func LoadRates(ctx context.Context, path, format string) (ratestore.Data, error) {
	f, err := RatesFormat(path, format)
	if err != nil {
		return ratestore.Data{}, err
	}
	if f == FormatSQLite {
		if _, err := os.Stat(path); err != nil {
			return ratestore.Data{}, fmt.Errorf("rate store: %w", err)
		}
		return LoadRatesSQLite(ctx, path)
	}
	var data ratestore.Data
	err = readFile(path, func(r io.Reader) (err error) {
		data, err = DecodeRatesJSON(r)
		return err
	})
	return data, err
}

// SaveRates writes data to path in the given format ("" picks by
// extension).
func SaveRates(ctx context.Context, path, format string, data ratestore.Data) error {
	f, err := RatesFormat(path, format)
	if err != nil {
		return err
	}
	if f == FormatSQLite {
		return SaveRatesSQLite(ctx, path, data)
	}
	return writeFile(path, func(w io.Writer) error { return EncodeRatesJSON(w, data) })
}

// LoadSnapshot reads and validates the YAML snapshot at path.
func LoadSnapshot(path string) (*snapshot.Snapshot, error) {
	var s *snapshot.Snapshot
	err := readFile(path, func(r io.Reader) (err error) {
		s, err = DecodeSnapshot(r)
		return err
	})
	return s, err
}

// SaveSnapshot writes s as YAML to path.
func SaveSnapshot(path string, s *snapshot.Snapshot) error {
	return writeFile(path, func(w io.Writer) error { return EncodeSnapshot(w, s) })
}

// LoadArtifact reads the model artifact envelope at path.
func LoadArtifact(path string) (scoring.Artifact, error) {
	var a scoring.Artifact
	err := readFile(path, func(r io.Reader) (err error) {
		a, err = DecodeArtifact(r)
		return err
	})
	return a, err
}

// SaveArtifact writes a to path.
func SaveArtifact(path string, a scoring.Artifact) error {
	return writeFile(path, func(w io.Writer) error { return EncodeArtifact(w, a) })
}

func readFile(path string, fn func(io.Reader) error) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	return fn(f)
}
