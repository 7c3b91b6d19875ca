// Package training turns historical incident logs into the artifacts the
// serving side loads: the rate store, the snapshot and the feature matrix
// handed to the external trainer. It derives every feature through the same
// transformer used at serve time.
package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okian/delaycast/internal/domain/features"
	"github.com/okian/delaycast/internal/domain/model"
)

// Incident columns.
const (
	ColDate     = "Date"
	ColTime     = "Time"
	ColStation  = "Station"
	ColCode     = "Code"
	ColMinDelay = "Min Delay"
	ColBound    = "Bound"
	ColLine     = "Line"
)

var requiredColumns = []string{ColDate, ColTime, ColStation, ColCode, ColMinDelay, ColBound, ColLine}

// Incident is one parsed log row.
type Incident struct {
	Event   features.Event
	Delayed bool
}

// ReadStats summarizes a ReadIncidents call.
type ReadStats struct {
	Rows    int
	Skipped int
	// Reasons counts skipped rows by the offending field.
	Reasons map[string]int
}

// ReadIncidents parses an incident log. Header names are matched case
// insensitively and extra columns are ignored. Rows that fail validation
// are counted in the stats and skipped.
func ReadIncidents(r io.Reader) ([]Incident, ReadStats, error) {
	stats := ReadStats{Reasons: make(map[string]int)}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("%w: empty input", ErrMissingColumn)
		}
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(requiredColumns))
	for _, col := range requiredColumns {
		idx[col] = -1
		for i, h := range head {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), col) {
				idx[col] = i
				break
			}
		}
		if idx[col] < 0 {
			return nil, stats, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}

	var out []Incident
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				stats.Rows++
				stats.skip("csv")
				continue
			}
			return nil, stats, fmt.Errorf("read row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++
		field := func(col string) string {
			if i := idx[col]; i < len(row) {
				return row[i]
			}
			return ""
		}

		delay, err := strconv.ParseFloat(strings.TrimSpace(field(ColMinDelay)), 64)
		if err != nil || delay < 0 {
			stats.skip("min_delay")
			continue
		}
		ev, err := features.Parse(model.RawEvent{
			Date:      dateOnly(field(ColDate)),
			Time:      field(ColTime),
			Station:   field(ColStation),
			Line:      field(ColLine),
			Code:      field(ColCode),
			Direction: field(ColBound),
		})
		if err != nil {
			var ve *features.ValidationError
			if errors.As(err, &ve) {
				stats.skip(ve.Field)
			} else {
				stats.skip("event")
			}
			continue
		}
		out = append(out, Incident{Event: ev, Delayed: delay > 0})
	}
	return out, stats, nil
}

func (s *ReadStats) skip(reason string) {
	s.Skipped++
	s.Reasons[reason]++
}

// dateOnly drops a time-of-day suffix some spreadsheet exports append.
func dateOnly(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(features.DateLayout) && (s[len(features.DateLayout)] == ' ' || s[len(features.DateLayout)] == 'T') {
		return s[:len(features.DateLayout)]
	}
	return s
}
