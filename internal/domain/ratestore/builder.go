package ratestore

import "strings"

// CurrentVersion is the schema version written by Builder.
const CurrentVersion = 1

// Observation is one historical record: its full key and whether it was
// delayed.
type Observation struct {
	Key     Key
	Delayed bool
}

type counter struct {
	total   int
	delayed int
}

// Builder aggregates observations into rate table data. It is used by the
// offline pipeline and is not safe for concurrent use.
type Builder struct {
	groupings []Grouping
	counts    map[Grouping]map[string]*counter
	global    counter
	skipped   int
}

// NewBuilder creates a builder for the given groupings. The global mean is
// always aggregated.
func NewBuilder(groupings ...Grouping) *Builder {
	b := &Builder{counts: make(map[Grouping]map[string]*counter, len(groupings))}
	for _, g := range groupings {
		if g == 0 || g >= 1<<dimensionCount {
			continue
		}
		if _, dup := b.counts[g]; dup {
			continue
		}
		b.groupings = append(b.groupings, g)
		b.counts[g] = make(map[string]*counter)
	}
	return b
}

// Add records an observation under every grouping its key covers.
// Observations whose values contain the key separator are skipped.
func (b *Builder) Add(obs Observation) {
	for _, d := range obs.Key.Grouping().Dimensions() {
		if v, _ := obs.Key.Value(d); strings.Contains(v, valueSeparator) {
			b.skipped++
			return
		}
	}
	b.global.add(obs.Delayed)
	for _, g := range b.groupings {
		k, ok := obs.Key.Project(g)
		if !ok {
			continue
		}
		enc := k.Encode()
		c, ok := b.counts[g][enc]
		if !ok {
			c = &counter{}
			b.counts[g][enc] = c
		}
		c.add(obs.Delayed)
	}
}

func (c *counter) add(delayed bool) {
	c.total++
	if delayed {
		c.delayed++
	}
}

func (c *counter) rate() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.delayed) / float64(c.total)
}

// Skipped is the number of observations rejected by Add.
func (b *Builder) Skipped() int { return b.skipped }

// Build returns the aggregated data.
func (b *Builder) Build() Data {
	d := Data{
		Version:     CurrentVersion,
		GlobalMean:  b.global.rate(),
		GlobalCount: b.global.total,
		Groups:      make(map[Grouping]map[string]Entry, len(b.counts)),
	}
	for g, keys := range b.counts {
		out := make(map[string]Entry, len(keys))
		for enc, c := range keys {
			out[enc] = Entry{Rate: c.rate(), SampleCount: c.total}
		}
		d.Groups[g] = out
	}
	return d
}
