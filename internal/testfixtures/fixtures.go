// Package testfixtures provides a small, mutually consistent snapshot, rate
// table and tree ensemble for tests across packages.
package testfixtures

import (
	"slices"
	"strconv"

	"github.com/okian/delaycast/internal/domain/features"
	"github.com/okian/delaycast/internal/domain/model"
	"github.com/okian/delaycast/internal/domain/ratestore"
	"github.com/okian/delaycast/internal/domain/scoring"
	"github.com/okian/delaycast/internal/domain/snapshot"
)

// ArtifactVersion is shared by Snapshot and Artifact.
const ArtifactVersion = "fixture-2026.01"

// Threshold is the fixture model's decision threshold.
const Threshold = 0.5

// Vocabulary values known to the fixture snapshot.
var (
	Lines      = []string{"BD", "SHP", "SRT", "YU"}
	Directions = []string{"E", "N", "S", "W"}
	Stations   = []string{"BLOOR YONGE STATION", "FINCH STATION", "KENNEDY BD STATION", "UNION STATION"}
)

// Snapshot returns a fresh snapshot using the default feature order.
func Snapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		SchemaVersion:      snapshot.CurrentSchemaVersion,
		ArtifactVersion:    ArtifactVersion,
		TransformerVersion: features.Version,
		RateStoreVersion:   ratestore.CurrentVersion,
		FeatureOrder:       slices.Clone(features.DefaultOrder),
		Vocabularies: snapshot.Vocabularies{
			Line:      slices.Clone(Lines),
			Direction: slices.Clone(Directions),
			Station:   slices.Clone(Stations),
		},
		OtherLabel: snapshot.DefaultOtherLabel,
		FallbackDefaults: snapshot.FallbackDefaults{
			GlobalRate:        0.3,
			MinSupport:        30,
			SmoothingStrength: 20,
		},
	}
}

// RateData returns raw rate table contents. Every hour and day has
// support; stations and codes are deliberately uneven.
func RateData() ratestore.Data {
	hours := make(map[string]ratestore.Entry, 24)
	for h := range 24 {
		rate := 0.2
		if h >= 7 && h <= 9 || h >= 17 && h <= 18 {
			rate = 0.45
		}
		hours[strconv.Itoa(h)] = ratestore.Entry{Rate: rate, SampleCount: 400}
	}
	days := make(map[string]ratestore.Entry, 7)
	for d := range 7 {
		days[strconv.Itoa(d)] = ratestore.Entry{Rate: 0.28 + float64(d)*0.01, SampleCount: 1200}
	}
	return ratestore.Data{
		Version:     ratestore.CurrentVersion,
		GlobalMean:  0.3,
		GlobalCount: 8400,
		Groups: map[ratestore.Grouping]map[string]ratestore.Entry{
			ratestore.GroupingOf(ratestore.DimHour): hours,
			ratestore.GroupingOf(ratestore.DimDay):  days,
			ratestore.GroupingOf(ratestore.DimStation): {
				"BLOOR YONGE STATION": {Rate: 0.62, SampleCount: 900},
				"FINCH STATION":       {Rate: 0.35, SampleCount: 300},
				"KENNEDY BD STATION":  {Rate: 0.4, SampleCount: 12},
				"UNION STATION":       {Rate: 0.5, SampleCount: 700},
			},
			ratestore.GroupingOf(ratestore.DimLine): {
				"BD":  {Rate: 0.33, SampleCount: 3000},
				"YU":  {Rate: 0.31, SampleCount: 4000},
				"SHP": {Rate: 0.2, SampleCount: 600},
			},
			ratestore.GroupingOf(ratestore.DimCode): {
				"MUSC": {Rate: 0.15, SampleCount: 1500},
				"SUDP": {Rate: 0.55, SampleCount: 800},
			},
			ratestore.GroupingOf(ratestore.DimCode, ratestore.DimLine): {
				"BD|MUSC": {Rate: 0.1, SampleCount: 500},
				"YU|SUDP": {Rate: 0.6, SampleCount: 5},
			},
		},
	}
}

// Table returns RateData frozen with the snapshot's fallback defaults.
func Table() *ratestore.Table {
	fd := Snapshot().FallbackDefaults
	t, err := ratestore.NewTable(RateData(),
		ratestore.WithMinSupport(fd.MinSupport),
		ratestore.WithSmoothing(fd.SmoothingStrength),
		ratestore.WithFallbackRate(fd.GlobalRate),
	)
	if err != nil {
		panic(err)
	}
	return t
}

// Ensemble returns a three-tree model over the default feature order:
// rush hour and busy stations push towards a delay, BD pulls slightly up.
func Ensemble() *scoring.TreeEnsemble {
	idx := func(name string) int { return slices.Index(features.DefaultOrder, name) }
	return &scoring.TreeEnsemble{
		BaseScore: -0.2,
		Trees: []scoring.Tree{
			{Nodes: []scoring.Node{
				{Feature: idx(features.FeatIsRushHour), Threshold: 0.5, Left: 1, Right: 2},
				{Leaf: leaf(-0.4)},
				{Leaf: leaf(0.6)},
			}},
			{Nodes: []scoring.Node{
				{Feature: idx(features.FeatStationRate), Threshold: 0.5, Left: 1, Right: 2},
				{Leaf: leaf(-0.3)},
				{Leaf: leaf(0.5)},
			}},
			{Nodes: []scoring.Node{
				{Feature: idx(features.FeatLine), Categories: []float64{0}, MissingLeft: true, Left: 1, Right: 2},
				{Leaf: leaf(0.2)},
				{Leaf: leaf(-0.1)},
			}},
		},
	}
}

// Artifact returns the fixture ensemble packaged for Bind.
func Artifact() scoring.Artifact {
	return scoring.Artifact{
		Version: ArtifactVersion,
		Metadata: scoring.Metadata{
			FeatureOrder:      slices.Clone(features.DefaultOrder),
			DecisionThreshold: Threshold,
			TrainingSummary:   map[string]float64{"auc": 0.71, "rows": 8400},
		},
		Classifier: Ensemble(),
	}
}

// Event is the reference weekday-rush event.
func Event() model.RawEvent {
	return model.RawEvent{
		Date:      "2026-01-15",
		Time:      "08:30",
		Station:   "BLOOR YONGE STATION",
		Line:      "BD",
		Code:      "MUSC",
		Direction: "W",
	}
}

func leaf(v float64) *float64 { return &v }
