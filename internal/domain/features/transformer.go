// Package features turns raw transit events into the fixed-order numeric
// vectors consumed by the delay classifier. The same Transformer is used
// by the offline training pipeline and by the online service so that both
// sides compute features identically.
package features

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/okian/delaycast/internal/domain/model"
	"github.com/okian/delaycast/internal/domain/ratestore"
	"github.com/okian/delaycast/internal/domain/snapshot"
)

// Diagnostics records absorbed fallbacks. Neither is an error.
type Diagnostics struct {
	// UnseenCategories lists categorical fields routed to the Other bucket.
	UnseenCategories []string
	// DegradedRates lists rate features resolved below their exact key.
	DegradedRates []string
}

// Clean reports whether no fallback was needed.
func (d Diagnostics) Clean() bool {
	return len(d.UnseenCategories) == 0 && len(d.DegradedRates) == 0
}

// Vector is an ordered feature vector. Names follows the snapshot's
// feature order exactly.
type Vector struct {
	Names       []string
	Values      []float64
	Diagnostics Diagnostics
}

// Len returns the number of features.
func (v Vector) Len() int { return len(v.Values) }

// Get returns a feature value by name.
func (v Vector) Get(name string) (float64, bool) {
	i := slices.Index(v.Names, name)
	if i < 0 {
		return 0, false
	}
	return v.Values[i], true
}

// Transformer is a pure function of (event, rate table, snapshot). It holds
// no mutable state and is safe for concurrent use.
type Transformer struct {
	snap  *snapshot.Snapshot
	rates *ratestore.Table
	order []featureID
	names []string
}

// New binds a transformer to a snapshot and rate table, refusing feature
// orders it cannot produce, mismatched versions and rate tables missing a
// grouping the ordered features query.
func New(snap *snapshot.Snapshot, rates *ratestore.Table) (*Transformer, error) {
	if snap == nil || rates == nil {
		return nil, fmt.Errorf("%w: snapshot and rate table are required", ErrVersionMismatch)
	}
	if snap.TransformerVersion != Version {
		return nil, fmt.Errorf("%w: snapshot was produced by transformer %q, this is %q",
			ErrVersionMismatch, snap.TransformerVersion, Version)
	}
	if rates.Version() != snap.RateStoreVersion {
		return nil, fmt.Errorf("%w: snapshot expects rate store v%d, loaded v%d",
			ErrVersionMismatch, snap.RateStoreVersion, rates.Version())
	}
	order := make([]featureID, len(snap.FeatureOrder))
	for i, name := range snap.FeatureOrder {
		id, ok := lookupFeature(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q at position %d", ErrUnknownFeature, name, i)
		}
		order[i] = id
	}
	present := rates.Groupings()
	for _, g := range groupingsFor(order) {
		if !slices.Contains(present, g) {
			return nil, fmt.Errorf("%w: %s", ErrRateStoreMismatch, g)
		}
	}
	s := snap.Clone()
	return &Transformer{
		snap:  s,
		rates: rates,
		order: order,
		names: s.FeatureOrder,
	}, nil
}

// Names returns the feature order this transformer produces.
func (t *Transformer) Names() []string { return slices.Clone(t.names) }

// Transform validates ev and computes its feature vector.
func (t *Transformer) Transform(ev model.RawEvent) (Vector, error) {
	parsed, err := Parse(ev)
	if err != nil {
		return Vector{}, err
	}
	return t.TransformEvent(parsed), nil
}

// TransformEvent computes the feature vector of an already parsed event.
func (t *Transformer) TransformEvent(ev Event) Vector {
	c := t.newCalc(ev)
	values := make([]float64, len(t.order))
	for i, id := range t.order {
		values[i] = c.value(id)
	}
	return Vector{
		Names:       slices.Clone(t.names),
		Values:      values,
		Diagnostics: c.diag,
	}
}

// RecordKey returns the full rate-store key of an event over every
// dimension. The offline builder aggregates these keys.
func RecordKey(ev Event) ratestore.Key {
	return ratestore.NewKey().
		With(ratestore.DimHour, strconv.Itoa(ev.Hour)).
		With(ratestore.DimDay, strconv.Itoa(dayOfWeek(ev.Date))).
		With(ratestore.DimStation, ev.Station).
		With(ratestore.DimLine, ev.Line).
		With(ratestore.DimCode, ev.Code)
}

// calc evaluates features for one event.
type calc struct {
	t    *Transformer
	ev   Event
	full ratestore.Key
	dow  int
	hour int
	diag Diagnostics
}

func (t *Transformer) newCalc(ev Event) *calc {
	return &calc{
		t:    t,
		ev:   ev,
		full: RecordKey(ev),
		dow:  dayOfWeek(ev.Date),
		hour: ev.Hour,
	}
}

func (c *calc) value(id featureID) float64 {
	switch id {
	case idDayOfWeek:
		return float64(c.dow)
	case idMonth:
		return float64(c.ev.Date.Month())
	case idYear:
		return float64(c.ev.Date.Year())
	case idHour:
		return float64(c.hour)
	case idIsWeekend:
		return boolf(isWeekend(c.dow))
	case idIsRushHour:
		return boolf(isRushHour(c.hour))
	case idRushHourWeekday:
		return boolf(isRushHour(c.hour) && !isWeekend(c.dow))
	case idWeekendMorning:
		return boolf(isWeekend(c.dow) && c.hour < noonHour)
	case idSeason:
		return float64(season(c.ev.Date.Month()))
	case idHourSin:
		s, _ := Cyclical(float64(c.hour), hoursPerDay)
		return s
	case idHourCos:
		_, co := Cyclical(float64(c.hour), hoursPerDay)
		return co
	case idDayOfWeekSin:
		s, _ := Cyclical(float64(c.dow), daysPerWeek)
		return s
	case idDayOfWeekCos:
		_, co := Cyclical(float64(c.dow), daysPerWeek)
		return co
	case idHourDelayRate, idDayDelayRate, idStationRate, idLineRate, idCodeRate:
		return c.rate(id)
	case idTimeNight:
		return boolf(timeBinOf(c.hour) == BinNight)
	case idTimeMorning:
		return boolf(timeBinOf(c.hour) == BinMorning)
	case idTimeMidday:
		return boolf(timeBinOf(c.hour) == BinMidday)
	case idTimeEvening:
		return boolf(timeBinOf(c.hour) == BinEvening)
	case idTimeLate:
		return boolf(timeBinOf(c.hour) == BinLate)
	case idLine:
		return c.category(FieldLine, c.t.snap.Vocabularies.Line, c.ev.Line)
	case idBound:
		return c.category(FieldDirection, c.t.snap.Vocabularies.Direction, c.ev.Direction)
	case idStationCategory:
		return c.category(FieldStation, c.t.snap.Vocabularies.Station, c.ev.Station)
	default:
		// New rejects names outside the catalog.
		panic(fmt.Sprintf("features: unhandled feature id %d", id))
	}
}

func (c *calc) rate(id featureID) float64 {
	key, _ := c.full.Project(rateGroupings[id])
	res := c.t.rates.Resolve(key)
	if res.Degraded {
		c.diag.DegradedRates = append(c.diag.DegradedRates, catalog[id])
	}
	return res.Rate
}

func (c *calc) category(field string, vocab []string, value string) float64 {
	code, known := snapshot.Index(vocab, value)
	if !known {
		c.diag.UnseenCategories = append(c.diag.UnseenCategories, field)
	}
	return float64(code)
}
