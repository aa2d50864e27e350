package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/mdsuite/internal/project"
)

func sampleComputation() *project.Computation {
	return &project.Computation{
		ID:         "3f1c2a9e-0000-4000-8000-000000000001",
		Experiment: "NaCl",
		Name:       "einstein_diffusion_coefficients",
		Parameters: map[string]any{"data_range": 4},
		Version:    2,
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Entries: []project.Entry{
			{
				Subjects: []string{"Na"},
				Scalars:  map[string]float64{"diffusion_coefficient": 0.5, "uncertainty": math.NaN()},
				Series: map[string][]float64{
					"time":      {0, 1, 2, 3},
					"msd":       {0, 2.5, 10, 22.5},
					"gradients": {7.5, 12.5},
				},
			},
			{
				Subjects: []string{"molecule", "Cl1Na1"},
				Scalars:  map[string]float64{"count": 2},
			},
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	c := sampleComputation()
	if _, err := st.Save(c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	meta, err := st.Load(c.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Calculator != c.Name {
		t.Errorf("expected calculator %s, got %s", c.Name, meta.Calculator)
	}
	if meta.Version != 2 {
		t.Errorf("expected version 2, got %d", meta.Version)
	}
	if meta.Scalars["Na"]["diffusion_coefficient"] != 0.5 {
		t.Errorf("expected 0.5, got %v", meta.Scalars["Na"])
	}
	if _, ok := meta.Scalars["Na"]["uncertainty"]; ok {
		t.Error("NaN scalar should be dropped from metadata")
	}
	if meta.Scalars["molecule_Cl1Na1"]["count"] != 2 {
		t.Errorf("expected molecule count 2, got %v", meta.Scalars["molecule_Cl1Na1"])
	}
	if len(meta.Files) != 1 || meta.Files[0] != "Na.csv" {
		t.Errorf("expected only Na.csv, got %v", meta.Files)
	}

	series, err := st.LoadSeries(c.ID, "Na")
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}
	if len(series["msd"]) != 4 || series["msd"][3] != 22.5 {
		t.Errorf("unexpected msd %v", series["msd"])
	}
	if len(series["gradients"]) != 2 {
		t.Errorf("short column should keep its length, got %v", series["gradients"])
	}

	if _, err := st.LoadSeries(c.ID, "molecule_Cl1Na1"); !errors.Is(err, ErrNoSeries) {
		t.Errorf("expected ErrNoSeries, got %v", err)
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty list, got %d", len(runs))
	}

	first := sampleComputation()
	second := sampleComputation()
	second.ID = "3f1c2a9e-0000-4000-8000-000000000002"
	second.CreatedAt = first.CreatedAt.Add(time.Hour)
	for _, c := range []*project.Computation{second, first} {
		if _, err := st.Save(c); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 results, got %d", len(runs))
	}
	if runs[0].ID != first.ID {
		t.Errorf("expected oldest first, got %s", runs[0].ID)
	}
}

func TestWriteSeriesCSV(t *testing.T) {
	var buf bytes.Buffer
	e := project.Entry{Series: map[string][]float64{"r": {0.5, 1.5}, "g": {0, 1.25}}}
	if err := WriteSeriesCSV(&buf, e); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	want := "g,r\n0,0.5\n1.25,1.5\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, sampleComputation()); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"uncertainty": null`) {
		t.Error("NaN should be exported as null")
	}

	var data struct {
		Calculator string `json:"calculator"`
		Entries    []struct {
			Subjects []string `json:"subjects"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("exported JSON invalid: %v", err)
	}
	if data.Calculator != "einstein_diffusion_coefficients" {
		t.Errorf("unexpected calculator %s", data.Calculator)
	}
	if len(data.Entries) != 2 || data.Entries[1].Subjects[1] != "Cl1Na1" {
		t.Errorf("unexpected entries %+v", data.Entries)
	}
}
