// Package ratestore holds the precomputed historical delay rates and the
// fallback chain used to resolve them.
package ratestore

import (
	"fmt"
	"strings"
)

// Dimension is one grouping axis of the historical rate table.
type Dimension string

// Supported dimensions, in canonical order.
const (
	DimHour    Dimension = "hour"
	DimDay     Dimension = "day"
	DimStation Dimension = "station"
	DimLine    Dimension = "line"
	DimCode    Dimension = "code"
)

const (
	dimensionCount    = 5
	groupingSeparator = "+"
	valueSeparator    = "|"
	globalName        = "global"
)

var canonical = [dimensionCount]Dimension{DimHour, DimDay, DimStation, DimLine, DimCode}

// Dimensions returns all dimensions in canonical order.
func Dimensions() []Dimension {
	out := make([]Dimension, dimensionCount)
	copy(out, canonical[:])
	return out
}

func (d Dimension) index() int {
	for i, c := range canonical {
		if c == d {
			return i
		}
	}
	return -1
}

// ParseDimension maps a name to a Dimension.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	if d.index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
	}
	return d, nil
}

// Grouping is a set of dimensions, i.e. the shape of a key.
type Grouping uint8

// GroupingOf builds a grouping from dimensions. Unknown dimensions are ignored.
func GroupingOf(dims ...Dimension) Grouping {
	var g Grouping
	for _, d := range dims {
		if i := d.index(); i >= 0 {
			g |= 1 << i
		}
	}
	return g
}

// ParseGrouping parses names like "code+line". The empty string and
// "global" denote the empty grouping.
func ParseGrouping(s string) (Grouping, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == globalName {
		return 0, nil
	}
	var g Grouping
	for _, part := range strings.Split(s, groupingSeparator) {
		d, err := ParseDimension(part)
		if err != nil {
			return 0, err
		}
		g |= 1 << d.index()
	}
	return g, nil
}

// Has reports whether the grouping includes d.
func (g Grouping) Has(d Dimension) bool {
	i := d.index()
	return i >= 0 && g&(1<<i) != 0
}

// Dimensions lists the grouping's dimensions in canonical order.
func (g Grouping) Dimensions() []Dimension {
	var out []Dimension
	for i, d := range canonical {
		if g&(1<<i) != 0 {
			out = append(out, d)
		}
	}
	return out
}

// Size is the number of dimensions in the grouping.
func (g Grouping) Size() int {
	n := 0
	for i := range canonical {
		if g&(1<<i) != 0 {
			n++
		}
	}
	return n
}

func (g Grouping) String() string {
	if g == 0 {
		return globalName
	}
	dims := g.Dimensions()
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = string(d)
	}
	return strings.Join(names, groupingSeparator)
}

// Key is an immutable composite of dimension values. The zero Key is the
// global key. Keys are comparable and safe to use as map keys.
type Key struct {
	values [dimensionCount]string
	mask   Grouping
}

// NewKey returns the global key.
func NewKey() Key { return Key{} }

// With returns a copy of k with d set to value. Unknown dimensions leave
// the key unchanged.
func (k Key) With(d Dimension, value string) Key {
	i := d.index()
	if i < 0 {
		return k
	}
	k.values[i] = value
	k.mask |= 1 << i
	return k
}

// Without returns a copy of k with d removed.
func (k Key) Without(d Dimension) Key {
	i := d.index()
	if i < 0 {
		return k
	}
	k.values[i] = ""
	k.mask &^= 1 << i
	return k
}

// Project keeps only the dimensions in g. ok is false when k lacks one of them.
func (k Key) Project(g Grouping) (Key, bool) {
	if k.mask&g != g {
		return Key{}, false
	}
	var out Key
	for i := range canonical {
		if g&(1<<i) != 0 {
			out.values[i] = k.values[i]
		}
	}
	out.mask = g
	return out, true
}

// Has reports whether d is set.
func (k Key) Has(d Dimension) bool { return k.mask.Has(d) }

// Value returns the value for d.
func (k Key) Value(d Dimension) (string, bool) {
	if !k.Has(d) {
		return "", false
	}
	return k.values[d.index()], true
}

// Grouping returns the key's shape.
func (k Key) Grouping() Grouping { return k.mask }

// IsGlobal reports whether the key has no dimensions.
func (k Key) IsGlobal() bool { return k.mask == 0 }

// Encode joins the values in canonical order; this is the persisted form of
// a key within its grouping.
func (k Key) Encode() string {
	parts := make([]string, 0, dimensionCount)
	for i := range canonical {
		if k.mask&(1<<i) != 0 {
			parts = append(parts, k.values[i])
		}
	}
	return strings.Join(parts, valueSeparator)
}

func (k Key) String() string {
	if k.IsGlobal() {
		return globalName
	}
	parts := make([]string, 0, dimensionCount)
	for i, d := range canonical {
		if k.mask&(1<<i) != 0 {
			parts = append(parts, string(d)+"="+k.values[i])
		}
	}
	return strings.Join(parts, ",")
}
