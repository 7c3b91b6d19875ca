package ratestore

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Default resolution policy.
const (
	DefaultMinSupport   = 30
	DefaultSmoothing    = 20.0
	DefaultFallbackRate = 0.5
)

// defaultDropOrder lists dimensions from least to most informative.
var defaultDropOrder = []Dimension{DimHour, DimDay, DimLine, DimStation, DimCode}

// Entry is the empirical delay rate of one key.
type Entry struct {
	Rate        float64 `json:"rate"`
	SampleCount int     `json:"sample_count"`
}

// Data is the persisted content of a rate table, independent of the
// resolution policy applied on top of it.
type Data struct {
	Version     int
	GlobalMean  float64
	GlobalCount int
	Groups      map[Grouping]map[string]Entry
}

// Resolution is the outcome of walking the fallback chain for a key.
type Resolution struct {
	Rate float64
	// Level is the most specific key that contributed to Rate.
	Level Key
	// Degraded is true when the requested key itself did not contribute.
	Degraded bool
}

// Table is an immutable rate table. All methods are safe for concurrent use.
type Table struct {
	version     int
	globalMean  float64
	globalCount int
	groups      map[Grouping]map[string]Entry
	entries     int

	minSupport   int
	smoothing    float64
	dropOrder    []Dimension
	fallbackRate float64
}

// NewTable validates data and freezes it into a Table. The data maps are
// copied, later changes to them are not observed.
func NewTable(data Data, opts ...Option) (*Table, error) {
	t := &Table{
		version:      data.Version,
		globalCount:  data.GlobalCount,
		groups:       make(map[Grouping]map[string]Entry, len(data.Groups)),
		minSupport:   DefaultMinSupport,
		smoothing:    DefaultSmoothing,
		dropOrder:    append([]Dimension(nil), defaultDropOrder...),
		fallbackRate: DefaultFallbackRate,
	}
	for _, opt := range opts {
		opt(t)
	}

	if data.GlobalCount < 0 {
		return nil, fmt.Errorf("%w: negative global count %d", ErrInvalidTable, data.GlobalCount)
	}
	if data.GlobalCount == 0 {
		t.globalMean = t.fallbackRate
	} else {
		if !validRate(data.GlobalMean) {
			return nil, fmt.Errorf("%w: global mean %v outside [0,1]", ErrInvalidTable, data.GlobalMean)
		}
		t.globalMean = data.GlobalMean
	}

	for g, keys := range data.Groups {
		if g == 0 || g >= 1<<dimensionCount {
			return nil, fmt.Errorf("%w: bad grouping %d", ErrInvalidTable, g)
		}
		frozen := make(map[string]Entry, len(keys))
		for enc, e := range keys {
			if strings.Count(enc, valueSeparator)+1 != g.Size() {
				return nil, fmt.Errorf("%w: key %q does not fit grouping %s", ErrInvalidTable, enc, g)
			}
			if !validRate(e.Rate) {
				return nil, fmt.Errorf("%w: %s[%s] rate %v outside [0,1]", ErrInvalidTable, g, enc, e.Rate)
			}
			if e.SampleCount < 0 {
				return nil, fmt.Errorf("%w: %s[%s] negative sample count", ErrInvalidTable, g, enc)
			}
			frozen[enc] = e
		}
		t.groups[g] = frozen
		t.entries += len(frozen)
	}
	return t, nil
}

func validRate(r float64) bool {
	return !math.IsNaN(r) && r >= 0 && r <= 1
}

// Version is the persisted schema version.
func (t *Table) Version() int { return t.version }

// GlobalMean is the ultimate fallback rate.
func (t *Table) GlobalMean() float64 { return t.globalMean }

// Len is the number of keyed entries across all groupings.
func (t *Table) Len() int { return t.entries }

// MinSupport is the sample count a key needs to contribute.
func (t *Table) MinSupport() int { return t.minSupport }

// Groupings lists the groupings present, ordered by size then mask.
func (t *Table) Groupings() []Grouping {
	out := make([]Grouping, 0, len(t.groups))
	for g := range t.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if si, sj := out[i].Size(), out[j].Size(); si != sj {
			return si < sj
		}
		return out[i] < out[j]
	})
	return out
}

// Entry returns the raw stored entry for k.
func (t *Table) Entry(k Key) (Entry, bool) {
	keys, ok := t.groups[k.Grouping()]
	if !ok {
		return Entry{}, false
	}
	e, ok := keys[k.Encode()]
	return e, ok
}

// Lookup resolves k through the fallback chain and returns the rate.
func (t *Table) Lookup(k Key) float64 {
	return t.Resolve(k).Rate
}

// Chain returns k followed by every key obtained by dropping the least
// informative remaining dimension, ending at the global key.
func (t *Table) Chain(k Key) []Key {
	chain := make([]Key, 0, dimensionCount+1)
	chain = append(chain, k)
	for cur := k; !cur.IsGlobal(); {
		cur = cur.Without(t.nextDrop(cur))
		chain = append(chain, cur)
	}
	return chain
}

func (t *Table) nextDrop(k Key) Dimension {
	for _, d := range t.dropOrder {
		if k.Has(d) {
			return d
		}
	}
	// unreachable for non-global keys: dropOrder covers every dimension
	return k.Grouping().Dimensions()[0]
}

// Resolve walks the chain from the global mean towards k. Every level with
// enough support shrinks towards the rate resolved for its parent, so a
// sparse key stays close to its parent and an absent one falls through.
func (t *Table) Resolve(k Key) Resolution {
	chain := t.Chain(k)
	rate := t.globalMean
	level := NewKey()
	for i := len(chain) - 2; i >= 0; i-- {
		e, ok := t.Entry(chain[i])
		if !ok || e.SampleCount < t.minSupport {
			continue
		}
		rate = shrink(e, rate, t.smoothing)
		level = chain[i]
	}
	return Resolution{
		Rate:     clamp01(rate),
		Level:    level,
		Degraded: level != k,
	}
}

func shrink(e Entry, prior, strength float64) float64 {
	n := float64(e.SampleCount)
	if n+strength == 0 {
		return prior
	}
	return (n*e.Rate + strength*prior) / (n + strength)
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
