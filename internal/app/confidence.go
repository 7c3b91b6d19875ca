package service

import "github.com/okian/delaycast/internal/domain/model"

// Cutoffs bound the normalized margin for the high and medium tiers.
type Cutoffs struct {
	High   float64
	Medium float64
}

// DefaultCutoffs are used unless overridden with WithConfidenceCutoffs.
var DefaultCutoffs = Cutoffs{High: 0.6, Medium: 0.3}

// Tier buckets p by its distance from the threshold t, normalized by the
// room available on that side: (p-t)/(1-t) above, (t-p)/t below. A result
// that relied on a fallback is demoted one step.
func (c Cutoffs) Tier(p, t float64, fellBack bool) model.ConfidenceTier {
	var margin float64
	if p >= t {
		margin = (p - t) / (1 - t)
	} else {
		margin = (t - p) / t
	}
	tier := model.TierLow
	switch {
	case margin >= c.High:
		tier = model.TierHigh
	case margin >= c.Medium:
		tier = model.TierMedium
	}
	if fellBack {
		tier = tier.Demote()
	}
	return tier
}
