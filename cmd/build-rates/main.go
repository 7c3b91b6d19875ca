// Command build-rates turns an incident log into the rate store, snapshot
// and feature matrix consumed by the trainer and the prediction server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/delaycast/internal/adapters/repository"
	"github.com/okian/delaycast/internal/training"
	"github.com/okian/delaycast/pkg/logger"
)

const (
	dirPermission   = 0o755
	defaultDeadline = 10 * time.Minute
)

func main() {
	var (
		input      = flag.String("input", "data/final/final.csv", "Incident log CSV")
		outDir     = flag.String("out", "artifacts", "Output directory")
		version    = flag.String("version", time.Now().UTC().Format("2006.01.02"), "Artifact version recorded in the snapshot")
		topK       = flag.Int("top-stations", training.DefaultTopStations, "Station vocabulary size")
		minSupport = flag.Int("min-support", 30, "Samples a rate needs before it is trusted")
		smoothing  = flag.Float64("smoothing", 20, "Shrinkage strength towards the parent rate")
		withSQLite = flag.Bool("sqlite", true, "Also write the rate store as SQLite")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	log := logger.Named("build-rates")

	ctx, cancel := context.WithTimeout(context.Background(), defaultDeadline)
	defer cancel()

	opts := training.DefaultOptions(*version)
	opts.TopStations = *topK
	opts.MinSupport = *minSupport
	opts.Smoothing = *smoothing

	if err := run(ctx, log, *input, *outDir, opts, *withSQLite); err != nil {
		log.Error(ctx, "build failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log logger.Logger, input, outDir string, opts training.Options, withSQLite bool) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	incidents, stats, err := training.ReadIncidents(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", input, err)
	}
	log.Info(ctx, "incidents read",
		logger.Int("rows", stats.Rows),
		logger.Int("usable", len(incidents)),
		logger.Int("skipped", stats.Skipped),
		logger.Any("skip_reasons", stats.Reasons),
	)

	out, err := training.Build(incidents, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, dirPermission); err != nil {
		return err
	}

	ratesJSON := filepath.Join(outDir, "rates.json")
	if err := repository.SaveRates(ctx, ratesJSON, repository.FormatJSON, out.Rates); err != nil {
		return err
	}
	if withSQLite {
		if err := repository.SaveRates(ctx, filepath.Join(outDir, "rates.db"), repository.FormatSQLite, out.Rates); err != nil {
			return err
		}
	}
	if err := repository.SaveSnapshot(filepath.Join(outDir, "snapshot.yaml"), out.Snapshot); err != nil {
		return err
	}

	matrixPath := filepath.Join(outDir, "matrix.csv")
	mf, err := os.Create(matrixPath)
	if err != nil {
		return err
	}
	n, err := training.WriteMatrix(mf, out.Transformer, incidents)
	if cerr := mf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", matrixPath, err)
	}

	log.Info(ctx, "artifacts written",
		logger.String("dir", outDir),
		logger.String("artifact_version", out.Snapshot.ArtifactVersion),
		logger.Float64("global_mean", out.Rates.GlobalMean),
		logger.Int("matrix_rows", n),
		logger.Strings("stations", out.Snapshot.Vocabularies.Station),
	)
	return nil
}
