package service

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/okian/delaycast/internal/adapters/repository"
	"github.com/okian/delaycast/internal/domain/ratestore"
	"github.com/okian/delaycast/internal/domain/scoring"
	"github.com/okian/delaycast/internal/domain/snapshot"
)

// Bundle is the raw output of a Loader, not yet cross-validated.
type Bundle struct {
	Rates    ratestore.Data
	Snapshot *snapshot.Snapshot
	Artifact scoring.Artifact
}

// Loader fetches the three serving artifacts.
type Loader interface {
	Load(ctx context.Context) (Bundle, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Bundle, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (Bundle, error) { return f(ctx) }

// FileLoader reads the artifacts from local files. The three files are
// independent and are read concurrently.
type FileLoader struct {
	RatesPath    string
	RatesFormat  string
	SnapshotPath string
	ArtifactPath string
}

// Load implements Loader.
func (l FileLoader) Load(ctx context.Context) (Bundle, error) {
	var b Bundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := repository.LoadRates(gctx, l.RatesPath, l.RatesFormat)
		if err != nil {
			return fmt.Errorf("load rate store %s: %w", filepath.Base(l.RatesPath), err)
		}
		b.Rates = data
		return nil
	})
	g.Go(func() error {
		s, err := repository.LoadSnapshot(l.SnapshotPath)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		b.Snapshot = s
		return nil
	})
	g.Go(func() error {
		a, err := repository.LoadArtifact(l.ArtifactPath)
		if err != nil {
			return fmt.Errorf("load artifact: %w", err)
		}
		b.Artifact = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}
