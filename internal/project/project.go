package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/san-kum/mdsuite/internal/units"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const DefaultName = "MDSuite_Project"

type Options struct {
	Logger *zap.Logger
	// CacheSize is passed on to every experiment database.
	CacheSize int
	// MaxBatch, when positive, caps the configurations read or written per
	// batch below what the memory budget allows.
	MaxBatch int
}

// Project is a directory of experiments indexed by a SQLite database.
type Project struct {
	Name string
	Dir  string

	db   *sql.DB
	log  *zap.Logger
	opts Options

	mu          sync.Mutex
	experiments map[string]*Experiment
}

// Open creates or opens the project <storagePath>/<name>.
func Open(ctx context.Context, storagePath, name string, opts Options) (*Project, error) {
	if name == "" {
		name = DefaultName
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	dir := filepath.Join(storagePath, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "project.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open project database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			opts.Logger.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	opts.Logger.Debug("project opened", zap.String("name", name), zap.String("dir", dir))
	return &Project{
		Name:        name,
		Dir:         dir,
		db:          db,
		log:         opts.Logger,
		opts:        opts,
		experiments: make(map[string]*Experiment),
	}, nil
}

// Close releases the project database and every open experiment database.
func (p *Project) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for _, e := range p.experiments {
		if err := e.close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	p.experiments = make(map[string]*Experiment)
	if err := p.db.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

type ExperimentOptions struct {
	Name        string
	TimeStep    float64
	Temperature float64
	// Units names a unit system; CustomUnits takes precedence when set.
	Units       string
	CustomUnits *units.System
}

func (o ExperimentOptions) resolveUnits() (units.System, error) {
	if o.CustomUnits != nil {
		u := *o.CustomUnits
		if u.Name == "" {
			u.Name = "custom"
		}
		if !u.Valid() {
			return units.System{}, fmt.Errorf("%w: custom units need positive length, time, energy, mass and temperature", units.ErrUnknownUnits)
		}
		return u, nil
	}
	name := o.Units
	if name == "" {
		name = "real"
	}
	return units.Lookup(name)
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}

// AddExperiment registers a new experiment. Adding an existing name returns
// the stored experiment unchanged.
func (p *Project) AddExperiment(ctx context.Context, opts ExperimentOptions) (*Experiment, error) {
	if !validName(opts.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, opts.Name)
	}
	if e, err := p.Experiment(ctx, opts.Name); err == nil {
		p.log.Info("experiment already exists, loading it", zap.String("experiment", opts.Name))
		return e, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	u, err := opts.resolveUnits()
	if err != nil {
		return nil, err
	}
	if opts.TimeStep <= 0 {
		opts.TimeStep = 1
	}
	unitsJSON, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO experiments (name, temperature, time_step, units, created_at) VALUES (?, ?, ?, ?, ?)`,
		opts.Name, opts.Temperature, opts.TimeStep, string(unitsJSON), time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment %s: %w", opts.Name, err)
	}

	e, err := p.Experiment(ctx, opts.Name)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{e.DatabaseDir(), e.FiguresDir(), e.LogDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	p.log.Info("experiment added", zap.String("experiment", opts.Name), zap.String("units", u.Name))
	return e, nil
}

// Experiment returns the named experiment. Repeated calls return the same
// instance so that its simulation database is opened only once.
func (p *Project) Experiment(ctx context.Context, name string) (*Experiment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.experiments[name]; ok {
		return e, nil
	}
	e, err := p.loadExperiment(ctx, name)
	if err != nil {
		return nil, err
	}
	p.experiments[name] = e
	return e, nil
}

func (p *Project) loadExperiment(ctx context.Context, name string) (*Experiment, error) {
	e := &Experiment{project: p, Name: name, Species: make(map[string]*Species)}

	var (
		active             int
		unitsJSON, boxJSON string
		elementMap         string
		created            int64
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, active, temperature, time_step, units, number_of_configurations,
		       number_of_atoms, sample_rate, box, element_map, version, created_at
		FROM experiments WHERE name = ?`, name).Scan(
		&e.ID, &active, &e.Temperature, &e.TimeStep, &unitsJSON, &e.NumberOfConfigurations,
		&e.NumberOfAtoms, &e.SampleRate, &boxJSON, &elementMap, &e.Version, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	e.Active = active != 0
	e.CreatedAt = time.Unix(created, 0)
	if err := json.Unmarshal([]byte(unitsJSON), &e.Units); err != nil {
		return nil, fmt.Errorf("experiment %s units: %w", name, err)
	}
	if err := json.Unmarshal([]byte(boxJSON), &e.Box); err != nil {
		return nil, fmt.Errorf("experiment %s box: %w", name, err)
	}
	if err := json.Unmarshal([]byte(elementMap), &e.elementMap); err != nil {
		return nil, fmt.Errorf("experiment %s element map: %w", name, err)
	}

	rows, err := p.db.QueryContext(ctx, `SELECT name, indices, mass, charge FROM species WHERE experiment_id = ?`, e.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		s := &Species{}
		var indices string
		if err := rows.Scan(&s.Name, &indices, &s.Mass, &s.Charge); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(indices), &s.Indices); err != nil {
			return nil, err
		}
		e.Species[s.Name] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	props, err := p.db.QueryContext(ctx, `SELECT name FROM properties WHERE experiment_id = ? ORDER BY name`, e.ID)
	if err != nil {
		return nil, err
	}
	defer props.Close()
	for props.Next() {
		var prop string
		if err := props.Scan(&prop); err != nil {
			return nil, err
		}
		e.Properties = append(e.Properties, prop)
	}
	return e, props.Err()
}

// Experiments returns every experiment sorted by name.
func (p *Project) Experiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name FROM experiments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Experiment, 0, len(names))
	for _, name := range names {
		e, err := p.Experiment(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *Project) ActiveExperiments(ctx context.Context) ([]*Experiment, error) {
	all, err := p.Experiments(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, e := range all {
		if e.Active {
			active = append(active, e)
		}
	}
	return active, nil
}

func (p *Project) Activate(ctx context.Context, names ...string) error {
	return p.setActive(ctx, true, names)
}

func (p *Project) Disable(ctx context.Context, names ...string) error {
	return p.setActive(ctx, false, names)
}

func (p *Project) setActive(ctx context.Context, active bool, names []string) error {
	for _, name := range names {
		e, err := p.Experiment(ctx, name)
		if err != nil {
			return err
		}
		flag := 0
		if active {
			flag = 1
		}
		if _, err := p.db.ExecContext(ctx, `UPDATE experiments SET active = ? WHERE id = ?`, flag, e.ID); err != nil {
			return err
		}
		e.Active = active
	}
	return nil
}

// RemoveExperiment deletes an experiment, its cached computations and its
// directory.
func (p *Project) RemoveExperiment(ctx context.Context, name string) error {
	e, err := p.Experiment(ctx, name)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM computation_attributes WHERE computation_id IN (SELECT id FROM computations WHERE experiment_id = ?)`,
		`DELETE FROM computation_results WHERE computation_id IN (SELECT id FROM computations WHERE experiment_id = ?)`,
		`DELETE FROM computations WHERE experiment_id = ?`,
		`DELETE FROM read_files WHERE experiment_id = ?`,
		`DELETE FROM properties WHERE experiment_id = ?`,
		`DELETE FROM species WHERE experiment_id = ?`,
		`DELETE FROM experiments WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, e.ID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.experiments, name)
	p.mu.Unlock()

	if err := e.close(); err != nil {
		return err
	}
	p.log.Info("experiment removed", zap.String("experiment", name))
	return os.RemoveAll(e.Dir())
}

// Names returns experiment names sorted alphabetically.
func Names(exps []*Experiment) []string {
	names := make([]string, len(exps))
	for i, e := range exps {
		names[i] = e.Name
	}
	sort.Strings(names)
	return names
}
