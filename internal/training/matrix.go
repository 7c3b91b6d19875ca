package training

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/okian/delaycast/internal/domain/features"
)

// LabelColumn is the target column appended to every matrix row.
const LabelColumn = "HasDelay"

// WriteMatrix writes one CSV row per incident: the transformer's features
// in order followed by the 0/1 label. It returns the number of rows.
func WriteMatrix(w io.Writer, tr *features.Transformer, incidents []Incident) (int, error) {
	cw := csv.NewWriter(w)
	names := tr.Names()
	if err := cw.Write(append(names, LabelColumn)); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(names)+1)
	for i, inc := range incidents {
		vec := tr.TransformEvent(inc.Event)
		for j, v := range vec.Values {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		row[len(names)] = "0"
		if inc.Delayed {
			row[len(names)] = "1"
		}
		if err := cw.Write(row); err != nil {
			return i, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return len(incidents), cw.Error()
}
