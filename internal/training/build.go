package training

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/okian/delaycast/internal/domain/features"
	"github.com/okian/delaycast/internal/domain/ratestore"
	"github.com/okian/delaycast/internal/domain/snapshot"
)

// DefaultTopStations is the station vocabulary size.
const DefaultTopStations = 10

// Options control Build.
type Options struct {
	ArtifactVersion string   `validate:"required"`
	TopStations     int      `validate:"gte=1"`
	MinSupport      int      `validate:"gte=1"`
	Smoothing       float64  `validate:"gte=0"`
	FeatureOrder    []string `validate:"omitempty,unique,dive,required"`
}

// DefaultOptions returns the options used when the CLI is run without flags.
func DefaultOptions(artifactVersion string) Options {
	return Options{
		ArtifactVersion: artifactVersion,
		TopStations:     DefaultTopStations,
		MinSupport:      ratestore.DefaultMinSupport,
		Smoothing:       ratestore.DefaultSmoothing,
	}
}

// Output is everything derived from one incident log.
type Output struct {
	Rates       ratestore.Data
	Snapshot    *snapshot.Snapshot
	Transformer *features.Transformer
	// Skipped counts incidents the rate builder could not key.
	Skipped int
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Build aggregates the rate store, freezes the vocabularies into a snapshot
// and returns the transformer that WriteMatrix and the server share.
func Build(incidents []Incident, opts Options) (Output, error) {
	if err := validate.Struct(opts); err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if len(incidents) == 0 {
		return Output{}, ErrNoIncidents
	}
	data, skipped := BuildRates(incidents)
	snap := NewSnapshot(opts, BuildVocabularies(incidents, opts.TopStations), data)
	if err := snap.Validate(); err != nil {
		return Output{}, err
	}
	table, err := ratestore.NewTable(data,
		ratestore.WithMinSupport(opts.MinSupport),
		ratestore.WithSmoothing(opts.Smoothing),
		ratestore.WithFallbackRate(snap.FallbackDefaults.GlobalRate),
	)
	if err != nil {
		return Output{}, err
	}
	tr, err := features.New(snap, table)
	if err != nil {
		return Output{}, err
	}
	return Output{Rates: data, Snapshot: snap, Transformer: tr, Skipped: skipped}, nil
}

// BuildRates aggregates incidents over features.RateGroupings, the exact
// groupings the transformer queries and falls back through. Keys come from
// features.RecordKey.
func BuildRates(incidents []Incident) (ratestore.Data, int) {
	b := ratestore.NewBuilder(features.RateGroupings()...)
	for _, inc := range incidents {
		b.Add(ratestore.Observation{Key: features.RecordKey(inc.Event), Delayed: inc.Delayed})
	}
	return b.Build(), b.Skipped()
}

// BuildVocabularies keeps the topK most frequent stations, most frequent
// first with ties broken by name, and every distinct line and direction in
// sorted order.
func BuildVocabularies(incidents []Incident, topK int) snapshot.Vocabularies {
	stations := make(map[string]int)
	lines := make(map[string]struct{})
	dirs := make(map[string]struct{})
	for _, inc := range incidents {
		stations[inc.Event.Station]++
		lines[inc.Event.Line] = struct{}{}
		dirs[inc.Event.Direction] = struct{}{}
	}

	ranked := slices.Collect(maps.Keys(stations))
	slices.SortFunc(ranked, func(a, b string) int {
		if c := cmp.Compare(stations[b], stations[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return snapshot.Vocabularies{
		Line:      slices.Sorted(maps.Keys(lines)),
		Direction: slices.Sorted(maps.Keys(dirs)),
		Station:   ranked,
	}
}

// NewSnapshot assembles the snapshot for a freshly built rate store.
func NewSnapshot(opts Options, vocab snapshot.Vocabularies, data ratestore.Data) *snapshot.Snapshot {
	order := opts.FeatureOrder
	if len(order) == 0 {
		order = features.DefaultOrder
	}
	return &snapshot.Snapshot{
		SchemaVersion:      snapshot.CurrentSchemaVersion,
		ArtifactVersion:    opts.ArtifactVersion,
		TransformerVersion: features.Version,
		RateStoreVersion:   data.Version,
		FeatureOrder:       slices.Clone(order),
		Vocabularies:       vocab,
		OtherLabel:         snapshot.DefaultOtherLabel,
		FallbackDefaults: snapshot.FallbackDefaults{
			GlobalRate:        data.GlobalMean,
			MinSupport:        opts.MinSupport,
			SmoothingStrength: opts.Smoothing,
		},
	}
}
