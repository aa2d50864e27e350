package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/mdsuite/internal/project"
)

var ErrNoSeries = errors.New("storage: no series for subject")

// Store writes computation results as plain files for use outside the
// project: one directory per computation holding metadata.json and one CSV
// of series per subject.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type Metadata struct {
	ID         string                        `json:"id"`
	Experiment string                        `json:"experiment"`
	Calculator string                        `json:"calculator"`
	Version    int                           `json:"version"`
	Timestamp  time.Time                     `json:"timestamp"`
	Parameters map[string]any                `json:"parameters"`
	Scalars    map[string]map[string]float64 `json:"scalars"`
	Files      []string                      `json:"files"`
}

func metadata(c *project.Computation) Metadata {
	meta := Metadata{
		ID:         c.ID,
		Experiment: c.Experiment,
		Calculator: c.Name,
		Version:    c.Version,
		Timestamp:  c.CreatedAt,
		Parameters: c.Parameters,
		Scalars:    make(map[string]map[string]float64, len(c.Entries)),
	}
	for _, e := range c.Entries {
		if len(e.Scalars) > 0 {
			scalars := make(map[string]float64, len(e.Scalars))
			for k, v := range e.Scalars {
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					scalars[k] = v
				}
			}
			meta.Scalars[e.Key()] = scalars
		}
		if len(e.Series) > 0 {
			meta.Files = append(meta.Files, e.Key()+".csv")
		}
	}
	return meta
}

// Save writes the computation and returns its directory.
func (s *Store) Save(c *project.Computation) (string, error) {
	dir := filepath.Join(s.baseDir, c.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(metadata(c)); err != nil {
		return "", err
	}

	for _, e := range c.Entries {
		if len(e.Series) == 0 {
			continue
		}
		if err := writeSeries(filepath.Join(dir, e.Key()+".csv"), e); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func writeSeries(path string, e project.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteSeriesCSV(f, e); err != nil {
		return err
	}
	return f.Close()
}

// WriteSeriesCSV writes the entry's series as columns. Shorter series leave
// their trailing cells empty.
func WriteSeriesCSV(out io.Writer, e project.Entry) error {
	w := csv.NewWriter(out)
	names := e.SeriesNames()
	if err := w.Write(names); err != nil {
		return err
	}

	rows := 0
	for _, name := range names {
		rows = max(rows, len(e.Series[name]))
	}
	for i := 0; i < rows; i++ {
		row := make([]string, len(names))
		for j, name := range names {
			if col := e.Series[name]; i < len(col) {
				row[j] = strconv.FormatFloat(col[i], 'g', -1, 64)
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Metadata{}, nil
		}
		return nil, err
	}

	results := make([]Metadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		results = append(results, *meta)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
	return results, nil
}

func (s *Store) Load(id string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadSeries reads the series written for the subject key, e.g. "Na_Cl".
func (s *Store) LoadSeries(id, subject string) (map[string][]float64, error) {
	f, err := os.Open(filepath.Join(s.baseDir, id, subject+".csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNoSeries, id, subject)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return map[string][]float64{}, nil
	}

	header := records[0]
	series := make(map[string][]float64, len(header))
	for _, record := range records[1:] {
		for j, cell := range record {
			if j >= len(header) || cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s column %s: %w", subject, header[j], err)
			}
			series[header[j]] = append(series[header[j]], v)
		}
	}
	return series, nil
}
