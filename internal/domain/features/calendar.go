package features

import (
	"math"
	"time"
)

// Fixed hour tables shared by training and serving.
var rushHours = map[int]bool{7: true, 8: true, 9: true, 17: true, 18: true}

// TimeBin is a coarse part of the day.
type TimeBin int

// Time bins, by upper hour bound (inclusive).
const (
	BinNight   TimeBin = iota // 0-6
	BinMorning                // 7-10
	BinMidday                 // 11-16
	BinEvening                // 17-19
	BinLate                   // 20-23
)

const (
	hoursPerDay = 24
	daysPerWeek = 7
	noonHour    = 12
)

func timeBinOf(hour int) TimeBin {
	switch {
	case hour <= 6:
		return BinNight
	case hour <= 10:
		return BinMorning
	case hour <= 16:
		return BinMidday
	case hour <= 19:
		return BinEvening
	default:
		return BinLate
	}
}

// dayOfWeek numbers days Monday=0 through Sunday=6.
func dayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % daysPerWeek
}

func isWeekend(dow int) bool { return dow >= 5 }

func isRushHour(hour int) bool { return rushHours[hour] }

// season maps a month to 0 winter, 1 spring, 2 summer, 3 autumn.
func season(m time.Month) int {
	switch m {
	case time.December, time.January, time.February:
		return 0
	case time.March, time.April, time.May:
		return 1
	case time.June, time.July, time.August:
		return 2
	default:
		return 3
	}
}

// Cyclical maps v onto the unit circle with the given period. v is reduced
// modulo period first so that v and v+period encode identically.
func Cyclical(v, period float64) (sin, cos float64) {
	r := math.Mod(v, period)
	if r < 0 {
		r += period
	}
	angle := 2 * math.Pi * r / period
	return math.Sin(angle), math.Cos(angle)
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
