package testevents

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/delaycast/pkg/logger"
)

// invalidEvery makes every n-th generated event malformed so rejections are
// exercised alongside successful predictions.
const invalidEvery = 50

var firstDay = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// generateEvents creates config.NumEvents events. The sequence depends only
// on config.Seed.
func generateEvents(ctx context.Context, config *Config, stats *Stats) []Event {
	logger.Get().Info(ctx, "generating events", logger.Int("numEvents", config.NumEvents))

	rng := rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15))
	events := make([]Event, config.NumEvents)
	for i := range events {
		events[i] = generateSingleEvent(rng, i)
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events successfully", logger.Int("count", len(events)))
	return events
}

// generateSingleEvent draws one event over a year of dates and the whole day.
func generateSingleEvent(rng *rand.Rand, index int) Event {
	day := firstDay.AddDate(0, 0, rng.IntN(365))
	ev := Event{
		Date:    day.Format(time.DateOnly),
		Time:    fmt.Sprintf("%02d:%02d", rng.IntN(24), rng.IntN(60)),
		Station: pick(rng, stations),
		Line:    pick(rng, lines),
		Code:    pick(rng, codes),
		Bound:   pick(rng, directions),
	}
	if index > 0 && index%invalidEvery == 0 {
		ev.Time = "25:99"
	}
	return ev
}

func pick(rng *rand.Rand, from []string) string {
	return from[rng.IntN(len(from))]
}

// valid reports whether ev was generated well formed.
func valid(ev Event) bool {
	return ev.Time != "25:99"
}
