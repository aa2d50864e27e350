package storage

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/san-kum/mdsuite/internal/project"
)

type ExportData struct {
	Metadata
	Entries []ExportEntry `json:"entries"`
}

// ExportEntry carries non-finite values as null.
type ExportEntry struct {
	Subjects []string              `json:"subjects"`
	Scalars  map[string]*float64   `json:"scalars,omitempty"`
	Series   map[string][]*float64 `json:"series,omitempty"`
}

func exportData(c *project.Computation) ExportData {
	data := ExportData{Metadata: metadata(c), Entries: make([]ExportEntry, len(c.Entries))}
	for i, e := range c.Entries {
		out := ExportEntry{Subjects: e.Subjects}
		if len(e.Scalars) > 0 {
			out.Scalars = make(map[string]*float64, len(e.Scalars))
			for k, v := range e.Scalars {
				out.Scalars[k] = finite(v)
			}
		}
		if len(e.Series) > 0 {
			out.Series = make(map[string][]*float64, len(e.Series))
			for k, col := range e.Series {
				vals := make([]*float64, len(col))
				for j, v := range col {
					vals[j] = finite(v)
				}
				out.Series[k] = vals
			}
		}
		data.Entries[i] = out
	}
	return data
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func ExportJSON(w io.Writer, c *project.Computation) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exportData(c))
}

func ExportJSONFile(path string, c *project.Computation) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := ExportJSON(file, c); err != nil {
		return err
	}
	return file.Close()
}
