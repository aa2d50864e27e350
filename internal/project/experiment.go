package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/memory"
	"github.com/san-kum/mdsuite/internal/units"
	"go.uber.org/zap"
)

type Species struct {
	Name    string
	Indices []int
	// Mass in g/mol, Charge in units of e.
	Mass   float64
	Charge float64
}

func (s *Species) Count() int {
	return len(s.Indices)
}

type Experiment struct {
	ID                     int64
	Name                   string
	Active                 bool
	Temperature            float64
	TimeStep               float64
	Units                  units.System
	NumberOfConfigurations int
	NumberOfAtoms          int
	SampleRate             int
	Box                    [3]float64
	Version                int
	CreatedAt              time.Time
	Species                map[string]*Species
	Properties             []string

	project    *Project
	elementMap map[string]string

	mu sync.Mutex
	db *database.Database
}

func (e *Experiment) Dir() string {
	return filepath.Join(e.project.Dir, e.Name)
}

func (e *Experiment) DatabaseDir() string {
	return filepath.Join(e.Dir(), "databases")
}

func (e *Experiment) DatabasePath() string {
	return filepath.Join(e.DatabaseDir(), "database.bolt")
}

func (e *Experiment) FiguresDir() string {
	return filepath.Join(e.Dir(), "figures")
}

func (e *Experiment) LogDir() string {
	return filepath.Join(e.Dir(), "logfiles")
}

func (e *Experiment) Logger() *zap.Logger {
	return e.project.log.With(zap.String("experiment", e.Name))
}

// Database opens the simulation database on first use.
// BatchSize is memory.BatchSize capped by the project's MaxBatch.
func (e *Experiment) BatchSize(bytesPerConfig, nConfigs int) int {
	n := memory.BatchSize(bytesPerConfig, nConfigs)
	if limit := e.project.opts.MaxBatch; limit > 0 && n > limit {
		n = limit
	}
	return n
}

func (e *Experiment) Database() (*database.Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db != nil {
		return e.db, nil
	}
	db, err := database.Open(e.DatabasePath(), database.Options{
		CacheSize: e.project.opts.CacheSize,
		Logger:    e.Logger(),
	})
	if err != nil {
		return nil, err
	}
	e.db = db
	return db, nil
}

func (e *Experiment) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// SpeciesNames returns species sorted by name.
func (e *Experiment) SpeciesNames() []string {
	names := make([]string, 0, len(e.Species))
	for name := range e.Species {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Experiment) HasProperty(name string) bool {
	for _, p := range e.Properties {
		if p == name {
			return true
		}
	}
	return false
}

// Volume is the box volume in simulation units.
func (e *Experiment) Volume() float64 {
	return e.Box[0] * e.Box[1] * e.Box[2]
}

func (e *Experiment) Dimension() int {
	for _, l := range e.Box {
		if l == 0 {
			return 2
		}
	}
	return 3
}

// TimeAxis converts correlation lags (in stored configurations) into
// simulation time.
func (e *Experiment) TimeAxis(tau []int) []float64 {
	out := make([]float64, len(tau))
	for i, t := range tau {
		out[i] = float64(t) * e.TimeStep * float64(e.SampleRate)
	}
	return out
}

// Load reads configurations [start, stop) of property for a species or a
// system-wide group.
func (e *Experiment) Load(property, group string, start, stop int) (*database.Tensor, error) {
	db, err := e.Database()
	if err != nil {
		return nil, err
	}
	return db.Load(database.Join(group, property), start, stop, nil)
}

// AddProperty records a property written to the database, e.g. by a
// transformation, and bumps the experiment version.
func (e *Experiment) AddProperty(ctx context.Context, name string) error {
	if !e.HasProperty(name) {
		if _, err := e.project.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO properties (experiment_id, name) VALUES (?, ?)`, e.ID, name); err != nil {
			return err
		}
		e.Properties = append(e.Properties, name)
		sort.Strings(e.Properties)
	}
	return e.touch(ctx)
}

func (e *Experiment) species(name string) (*Species, error) {
	s, ok := e.Species[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownSpecies, name, e.Name)
	}
	return s, nil
}

func (e *Experiment) SetCharge(ctx context.Context, species string, charge float64) error {
	s, err := e.species(species)
	if err != nil {
		return err
	}
	if _, err := e.project.db.ExecContext(ctx,
		`UPDATE species SET charge = ? WHERE experiment_id = ? AND name = ?`, charge, e.ID, species); err != nil {
		return err
	}
	s.Charge = charge
	e.Logger().Info("charge set", zap.String("species", species), zap.Float64("charge", charge))
	return e.touch(ctx)
}

func (e *Experiment) SetMass(ctx context.Context, species string, mass float64) error {
	s, err := e.species(species)
	if err != nil {
		return err
	}
	if _, err := e.project.db.ExecContext(ctx,
		`UPDATE species SET mass = ? WHERE experiment_id = ? AND name = ?`, mass, e.ID, species); err != nil {
		return err
	}
	s.Mass = mass
	return e.touch(ctx)
}

// SetTemperature updates the simulation temperature used by conductivity
// calculators.
func (e *Experiment) SetTemperature(ctx context.Context, temperature float64) error {
	if _, err := e.project.db.ExecContext(ctx,
		`UPDATE experiments SET temperature = ? WHERE id = ?`, temperature, e.ID); err != nil {
		return err
	}
	e.Temperature = temperature
	return e.touch(ctx)
}

// MapElements renames species, e.g. LAMMPS type "1" to "Na". The mapping is
// remembered and applied to files added later.
func (e *Experiment) MapElements(ctx context.Context, mapping map[string]string) error {
	db, err := e.Database()
	if err != nil {
		return err
	}
	for from, to := range mapping {
		s, err := e.species(from)
		if err != nil {
			return err
		}
		if _, exists := e.Species[to]; exists {
			return fmt.Errorf("%w: %s already exists in %s", ErrSpeciesMismatch, to, e.Name)
		}
		if err := db.RenameGroup(from, to); err != nil {
			return err
		}
		if _, err := e.project.db.ExecContext(ctx,
			`UPDATE species SET name = ? WHERE experiment_id = ? AND name = ?`, to, e.ID, from); err != nil {
			return err
		}
		delete(e.Species, from)
		s.Name = to
		e.Species[to] = s

		if e.elementMap == nil {
			e.elementMap = make(map[string]string)
		}
		for k, v := range e.elementMap {
			if v == from {
				e.elementMap[k] = to
			}
		}
		if _, ok := e.elementMap[from]; !ok {
			e.elementMap[from] = to
		}
	}

	data, err := json.Marshal(e.elementMap)
	if err != nil {
		return err
	}
	if _, err := e.project.db.ExecContext(ctx,
		`UPDATE experiments SET element_map = ? WHERE id = ?`, string(data), e.ID); err != nil {
		return err
	}
	return e.touch(ctx)
}

// touch bumps the version, invalidating cached computations.
func (e *Experiment) touch(ctx context.Context) error {
	if _, err := e.project.db.ExecContext(ctx,
		`UPDATE experiments SET version = version + 1 WHERE id = ?`, e.ID); err != nil {
		return err
	}
	e.Version++
	return nil
}

func (e *Experiment) save(ctx context.Context, tx *sql.Tx) error {
	box, err := json.Marshal(e.Box)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE experiments SET number_of_configurations = ?, number_of_atoms = ?, sample_rate = ?, box = ?
		WHERE id = ?`, e.NumberOfConfigurations, e.NumberOfAtoms, e.SampleRate, string(box), e.ID)
	return err
}

type Summary struct {
	Name           string
	Active         bool
	Temperature    float64
	TimeStep       float64
	Units          string
	Configurations int
	Atoms          int
	SampleRate     int
	Box            [3]float64
	Version        int
	Species        map[string]int
	Charges        map[string]float64
	DatabasePath   string
	DatabaseSize   int64
	HumanSize      string
	Groups         []string
}

func (e *Experiment) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{
		Name:           e.Name,
		Active:         e.Active,
		Temperature:    e.Temperature,
		TimeStep:       e.TimeStep,
		Units:          e.Units.Name,
		Configurations: e.NumberOfConfigurations,
		Atoms:          e.NumberOfAtoms,
		SampleRate:     e.SampleRate,
		Box:            e.Box,
		Version:        e.Version,
		Species:        make(map[string]int, len(e.Species)),
		Charges:        make(map[string]float64, len(e.Species)),
		DatabasePath:   e.DatabasePath(),
	}
	for name, sp := range e.Species {
		s.Species[name] = sp.Count()
		s.Charges[name] = sp.Charge
	}

	db, err := e.Database()
	if err != nil {
		return nil, err
	}
	if s.DatabaseSize, err = db.Size(); err != nil {
		return nil, err
	}
	s.HumanSize = humanize.Bytes(uint64(s.DatabaseSize))

	infos, err := db.Datasets()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		s.Groups = append(s.Groups, info.Path)
	}
	return s, nil
}
