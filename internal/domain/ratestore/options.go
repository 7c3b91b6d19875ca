package ratestore

// Option applies a resolution policy setting to a Table.
type Option func(*Table)

// WithMinSupport sets the sample count a key needs before it is trusted.
// Values below 1 are ignored.
func WithMinSupport(n int) Option {
	return func(t *Table) {
		if n >= 1 {
			t.minSupport = n
		}
	}
}

// WithSmoothing sets the shrinkage strength towards the parent level.
// Zero disables smoothing; negative values are ignored.
func WithSmoothing(k float64) Option {
	return func(t *Table) {
		if k >= 0 {
			t.smoothing = k
		}
	}
}

// WithDropOrder sets which dimensions are dropped first while degrading.
// Dimensions left out keep their default relative order after the given ones.
func WithDropOrder(dims ...Dimension) Option {
	return func(t *Table) {
		var order []Dimension
		var seen Grouping
		for _, d := range dims {
			if d.index() < 0 || seen.Has(d) {
				continue
			}
			order = append(order, d)
			seen |= GroupingOf(d)
		}
		for _, d := range defaultDropOrder {
			if !seen.Has(d) {
				order = append(order, d)
			}
		}
		t.dropOrder = order
	}
}

// WithFallbackRate sets the global rate used when the table holds no
// observations at all.
func WithFallbackRate(r float64) Option {
	return func(t *Table) {
		if r >= 0 && r <= 1 {
			t.fallbackRate = r
		}
	}
}
