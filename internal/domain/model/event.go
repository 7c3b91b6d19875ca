// Package model contains domain models passed between layers.
package model

import "time"

// RawEvent is a scheduled vehicle movement as submitted by callers.
// Fields are free-form strings; the feature transformer validates them.
type RawEvent struct {
	Date      string // calendar date, YYYY-MM-DD
	Time      string // time of day, HH:MM
	Station   string // station name, e.g. "BLOOR YONGE STATION"
	Line      string // line code, e.g. "BD"
	Code      string // incident code, e.g. "MUSC"
	Direction string // bound, e.g. "W"
}

// Label is the binary decision derived from a probability and a threshold.
type Label string

// Decision labels.
const (
	LabelDelay   Label = "delay"
	LabelNoDelay Label = "no_delay"
)

// ConfidenceTier is a coarse bucket of how far a probability sits from the
// decision threshold.
type ConfidenceTier string

// Confidence tiers, lowest first.
const (
	TierLow    ConfidenceTier = "low"
	TierMedium ConfidenceTier = "medium"
	TierHigh   ConfidenceTier = "high"
)

// Demote returns the next lower tier. Low stays low.
func (t ConfidenceTier) Demote() ConfidenceTier {
	switch t {
	case TierHigh:
		return TierMedium
	default:
		return TierLow
	}
}

// PredictionResult is the packaged answer for a single event.
type PredictionResult struct {
	Label       Label
	Probability float64
	Tier        ConfidenceTier

	// Degraded reports that at least one historical rate came from a less
	// specific key than requested.
	Degraded bool
	// UnseenCategories lists the categorical fields that fell into the
	// Other bucket.
	UnseenCategories []string
}

// SweepPoint pairs a grid time with its prediction.
type SweepPoint struct {
	Time   string // HH:MM
	Result PredictionResult
}

// DaySweepResult holds one prediction per grid point, ascending by time.
type DaySweepResult struct {
	Date        string
	Granularity time.Duration
	Points      []SweepPoint
}
