// Package repository reads and writes the serving artifacts: the
// historical rate table, the config snapshot and the model artifact.
package repository

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/okian/delaycast/internal/domain/ratestore"
)

// Rate table formats.
const (
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

type ratesDoc struct {
	Version     int                                   `json:"version"`
	GlobalMean  float64                               `json:"global_mean"`
	GlobalCount int                                   `json:"global_count"`
	Groups      map[string]map[string]ratestore.Entry `json:"groups"`
}

// RatesFormat picks the format for path: explicit wins, otherwise the file
// extension decides (.db, .sqlite and .sqlite3 are SQLite, anything else
// JSON).
func RatesFormat(path, explicit string) (string, error) {
	switch strings.ToLower(explicit) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatSQLite:
		return FormatSQLite, nil
	case "":
	default:
		return "", fmt.Errorf("%w: rate store format %q", ErrUnsupportedFormat, explicit)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	default:
		return FormatJSON, nil
	}
}

// DecodeRatesJSON reads rate table data from its JSON document.
func DecodeRatesJSON(r io.Reader) (ratestore.Data, error) {
	var doc ratesDoc
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return ratestore.Data{}, fmt.Errorf("%w: decode rates: %w", ErrCorrupt, err)
	}
	data := ratestore.Data{
		Version:     doc.Version,
		GlobalMean:  doc.GlobalMean,
		GlobalCount: doc.GlobalCount,
		Groups:      make(map[ratestore.Grouping]map[string]ratestore.Entry, len(doc.Groups)),
	}
	for name, entries := range doc.Groups {
		g, err := ratestore.ParseGrouping(name)
		if err != nil {
			return ratestore.Data{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		data.Groups[g] = entries
	}
	return data, nil
}

// EncodeRatesJSON writes rate table data as an indented JSON document.
func EncodeRatesJSON(w io.Writer, data ratestore.Data) error {
	doc := ratesDoc{
		Version:     data.Version,
		GlobalMean:  data.GlobalMean,
		GlobalCount: data.GlobalCount,
		Groups:      make(map[string]map[string]ratestore.Entry, len(data.Groups)),
	}
	for g, entries := range data.Groups {
		doc.Groups[g.String()] = entries
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	return nil
}
