package features

import (
	"slices"

	"github.com/okian/delaycast/internal/domain/ratestore"
)

// Version identifies this transformer's feature definitions. A snapshot
// produced by a different version is refused at load time.
const Version = "features/v1"

// Feature names produced by the transformer.
const (
	FeatDayOfWeek       = "DayOfWeek"
	FeatMonth           = "Month"
	FeatYear            = "Year"
	FeatHour            = "Hour"
	FeatIsWeekend       = "IsWeekend"
	FeatIsRushHour      = "IsRushHour"
	FeatRushHourWeekday = "RushHour_Weekday"
	FeatWeekendMorning  = "Weekend_Morning"
	FeatSeason          = "Season"
	FeatHourSin         = "Hour_sin"
	FeatHourCos         = "Hour_cos"
	FeatDayOfWeekSin    = "DayOfWeek_sin"
	FeatDayOfWeekCos    = "DayOfWeek_cos"
	FeatHourDelayRate   = "Hour_DelayRate"
	FeatDayDelayRate    = "Day_DelayRate"
	FeatStationRate     = "Station_DelayRate"
	FeatLineRate        = "Line_DelayRate"
	FeatCodeRate        = "Code_DelayRate"
	FeatTimeNight       = "Time_Night"
	FeatTimeMorning     = "Time_Morning"
	FeatTimeMidday      = "Time_Midday"
	FeatTimeEvening     = "Time_Evening"
	FeatTimeLate        = "Time_Late"
	FeatLine            = "Line"
	FeatBound           = "Bound"
	FeatStationCategory = "Station_Category"
)

// Categorical field names reported in Diagnostics.
const (
	FieldLine      = "line"
	FieldDirection = "direction"
	FieldStation   = "station"
)

type featureID int

const (
	idDayOfWeek featureID = iota
	idMonth
	idYear
	idHour
	idIsWeekend
	idIsRushHour
	idRushHourWeekday
	idWeekendMorning
	idSeason
	idHourSin
	idHourCos
	idDayOfWeekSin
	idDayOfWeekCos
	idHourDelayRate
	idDayDelayRate
	idStationRate
	idLineRate
	idCodeRate
	idTimeNight
	idTimeMorning
	idTimeMidday
	idTimeEvening
	idTimeLate
	idLine
	idBound
	idStationCategory
	catalogSize
)

var catalog = [catalogSize]string{
	idDayOfWeek:       FeatDayOfWeek,
	idMonth:           FeatMonth,
	idYear:            FeatYear,
	idHour:            FeatHour,
	idIsWeekend:       FeatIsWeekend,
	idIsRushHour:      FeatIsRushHour,
	idRushHourWeekday: FeatRushHourWeekday,
	idWeekendMorning:  FeatWeekendMorning,
	idSeason:          FeatSeason,
	idHourSin:         FeatHourSin,
	idHourCos:         FeatHourCos,
	idDayOfWeekSin:    FeatDayOfWeekSin,
	idDayOfWeekCos:    FeatDayOfWeekCos,
	idHourDelayRate:   FeatHourDelayRate,
	idDayDelayRate:    FeatDayDelayRate,
	idStationRate:     FeatStationRate,
	idLineRate:        FeatLineRate,
	idCodeRate:        FeatCodeRate,
	idTimeNight:       FeatTimeNight,
	idTimeMorning:     FeatTimeMorning,
	idTimeMidday:      FeatTimeMidday,
	idTimeEvening:     FeatTimeEvening,
	idTimeLate:        FeatTimeLate,
	idLine:            FeatLine,
	idBound:           FeatBound,
	idStationCategory: FeatStationCategory,
}

// rateGroupings maps each historical rate feature to the key shape it
// queries. Sparse compound keys degrade along the rate store's chain.
var rateGroupings = map[featureID]ratestore.Grouping{
	idHourDelayRate: ratestore.GroupingOf(ratestore.DimHour),
	idDayDelayRate:  ratestore.GroupingOf(ratestore.DimDay),
	idStationRate:   ratestore.GroupingOf(ratestore.DimStation),
	idLineRate:      ratestore.GroupingOf(ratestore.DimLine),
	idCodeRate:      ratestore.GroupingOf(ratestore.DimCode, ratestore.DimLine),
}

// DefaultOrder is the canonical 25-feature layout of the reference model.
var DefaultOrder = []string{
	FeatDayOfWeek, FeatMonth, FeatHour, FeatIsWeekend, FeatIsRushHour,
	FeatRushHourWeekday, FeatWeekendMorning, FeatSeason,
	FeatHourSin, FeatHourCos, FeatDayOfWeekSin, FeatDayOfWeekCos,
	FeatHourDelayRate, FeatDayDelayRate, FeatStationRate, FeatLineRate, FeatCodeRate,
	FeatTimeNight, FeatTimeMorning, FeatTimeMidday, FeatTimeEvening, FeatTimeLate,
	FeatLine, FeatBound, FeatStationCategory,
}

// RateGroupings returns every grouping the rate features query together
// with the sub-groupings their fallback chains pass through, ordered by
// size then mask. The offline builder aggregates exactly these.
func RateGroupings() []ratestore.Grouping {
	ids := make([]featureID, 0, len(rateGroupings))
	for id := range rateGroupings {
		ids = append(ids, id)
	}
	return groupingsFor(ids)
}

// groupingsFor collects the groupings queried by ids and all of their
// non-empty subsets. Subsets cover the chain parents under any drop order.
func groupingsFor(ids []featureID) []ratestore.Grouping {
	seen := make(map[ratestore.Grouping]bool)
	for _, id := range ids {
		g, ok := rateGroupings[id]
		if !ok {
			continue
		}
		for sub := g; sub > 0; sub = (sub - 1) & g {
			seen[sub] = true
		}
	}
	out := make([]ratestore.Grouping, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b ratestore.Grouping) int {
		if d := a.Size() - b.Size(); d != 0 {
			return d
		}
		return int(a) - int(b)
	})
	return out
}

func lookupFeature(name string) (featureID, bool) {
	for i, n := range catalog {
		if n == name {
			return featureID(i), true
		}
	}
	return 0, false
}
