package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/elements"
	"github.com/san-kum/mdsuite/internal/traj"
	"go.uber.org/zap"
)

type DataSource struct {
	Path   string
	Format string
	Rename map[string][]string
	Sort   bool
	// Force re-reads a file that was already added.
	Force bool
}

// Progress reports ingested configurations out of the file total.
type Progress func(done, total int)

// AddData ingests a trajectory file into the experiment database in
// memory-bounded batches. The first file defines the atoms, box, sample
// rate and species; later files are appended and must match.
func (e *Experiment) AddData(ctx context.Context, src DataSource, progress Progress) (err error) {
	abs, err := filepath.Abs(src.Path)
	if err != nil {
		return err
	}
	if !src.Force {
		read, err := e.fileRead(ctx, abs)
		if err != nil {
			return err
		}
		if read {
			return fmt.Errorf("%w: %s", ErrAlreadyRead, abs)
		}
	}

	r, err := traj.Open(src.Path, src.Format, traj.Options{Rename: src.Rename, Sort: src.Sort})
	if err != nil {
		return err
	}
	defer r.Close()
	meta := r.Metadata()

	species := make(map[string][]int, len(meta.Species))
	for label, rows := range meta.Species {
		name := label
		if mapped, ok := e.elementMap[label]; ok {
			name = mapped
		}
		species[name] = rows
	}

	first := e.NumberOfAtoms == 0
	if !first {
		if err := e.checkCompatible(meta, species); err != nil {
			return err
		}
	}

	db, err := e.Database()
	if err != nil {
		return err
	}

	props := meta.PropertyNames()
	names := make([]string, 0, len(species))
	for name := range species {
		names = append(names, name)
	}
	sort.Strings(names)

	// lengths before this file; -1 marks a dataset this call created
	marks := make(map[string]int)
	defer func() {
		if err != nil {
			e.rollbackIngest(db, marks)
		}
	}()
	for _, name := range names {
		for _, prop := range props {
			path := database.Join(name, prop)
			if info, infoErr := db.Info(path); infoErr == nil {
				marks[path] = info.Configurations
			} else {
				marks[path] = -1
			}
			if err := db.AddDataset(path, len(species[name]), len(meta.Properties[prop])); err != nil {
				return err
			}
		}
	}

	batch := e.BatchSize(meta.NumAtoms*len(meta.Columns)*8, meta.NumConfigurations)
	log := e.Logger()
	log.Info("adding data",
		zap.String("file", abs),
		zap.Int("configurations", meta.NumConfigurations),
		zap.Int("atoms", meta.NumAtoms),
		zap.Int("batch", batch))

	buffers := make(map[string][][]float64)
	pending, done := 0, 0
	flush := func() error {
		for path, frames := range buffers {
			if _, err := db.Append(path, frames); err != nil {
				return err
			}
			buffers[path] = frames[:0]
		}
		done += pending
		pending = 0
		if progress != nil {
			progress(done, meta.NumConfigurations)
		}
		return nil
	}

	for {
		f, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		for _, name := range names {
			rows := species[name]
			for _, prop := range props {
				cols := meta.Properties[prop]
				path := database.Join(name, prop)
				buffers[path] = append(buffers[path], f.Gather(rows, cols, make([]float64, 0, len(rows)*len(cols))))
			}
		}
		pending++
		if pending == batch {
			if err := flush(); err != nil {
				return err
			}
			buffers = make(map[string][][]float64)
		}
	}
	if pending > 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	if done == 0 {
		return fmt.Errorf("%s: %w", abs, traj.ErrEmpty)
	}

	if err := e.commitIngest(ctx, abs, done, meta, first, species, props); err != nil {
		return err
	}
	log.Info("data added", zap.String("file", abs), zap.Int("configurations", e.NumberOfConfigurations))
	return nil
}

// rollbackIngest removes what a failed AddData wrote, so the datasets stay
// in step with NumberOfConfigurations.
func (e *Experiment) rollbackIngest(db *database.Database, marks map[string]int) {
	log := e.Logger()
	for path, n := range marks {
		var err error
		if n < 0 {
			err = db.Delete(path)
			if errors.Is(err, database.ErrNotFound) {
				err = nil
			}
		} else {
			err = db.Truncate(path, n)
		}
		if err != nil {
			log.Error("rollback failed", zap.String("dataset", path), zap.Error(err))
		}
	}
}

func (e *Experiment) checkCompatible(meta *traj.Metadata, species map[string][]int) error {
	if meta.NumAtoms != e.NumberOfAtoms {
		return fmt.Errorf("%w: file has %d atoms, %s has %d", ErrAtomCountMismatch, meta.NumAtoms, e.Name, e.NumberOfAtoms)
	}
	if len(species) != len(e.Species) {
		return fmt.Errorf("%w: file has %d species, %s has %d", ErrSpeciesMismatch, len(species), e.Name, len(e.Species))
	}
	for name, rows := range species {
		s, ok := e.Species[name]
		if !ok || s.Count() != len(rows) {
			return fmt.Errorf("%w: %s", ErrSpeciesMismatch, name)
		}
	}
	return nil
}

func (e *Experiment) fileRead(ctx context.Context, path string) (bool, error) {
	var n int
	err := e.project.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM read_files WHERE experiment_id = ? AND path = ?`, e.ID, path).Scan(&n)
	return n > 0, err
}

// ReadFiles lists the files ingested so far.
func (e *Experiment) ReadFiles(ctx context.Context) ([]string, error) {
	rows, err := e.project.db.QueryContext(ctx,
		`SELECT path FROM read_files WHERE experiment_id = ? ORDER BY added_at, path`, e.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, rows.Err()
}

func (e *Experiment) commitIngest(ctx context.Context, path string, configs int, meta *traj.Metadata, first bool, species map[string][]int, props []string) (err error) {
	prev := *e.snapshot()
	defer func() {
		if err != nil {
			e.restore(prev)
		}
	}()
	if first {
		e.NumberOfAtoms = meta.NumAtoms
		e.Box = meta.Box
		e.SampleRate = meta.SampleRate
		if e.SampleRate <= 0 {
			e.SampleRate = 1
		}
	}
	e.NumberOfConfigurations += configs

	tx, err := e.project.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.save(ctx, tx); err != nil {
		return err
	}
	if first {
		for name, rows := range species {
			indices, err := json.Marshal(rows)
			if err != nil {
				return err
			}
			mass, _ := elements.Mass(name)
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO species (experiment_id, name, indices, mass, charge) VALUES (?, ?, ?, ?, 0)`,
				e.ID, name, string(indices), mass); err != nil {
				return err
			}
		}
	}
	for _, prop := range props {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO properties (experiment_id, name) VALUES (?, ?)`, e.ID, prop); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO read_files (experiment_id, path, configurations, added_at) VALUES (?, ?, ?, ?)`,
		e.ID, path, configs, time.Now().UnixNano()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE experiments SET version = version + 1 WHERE id = ?`, e.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if first {
		for name, rows := range species {
			mass, _ := elements.Mass(name)
			e.Species[name] = &Species{Name: name, Indices: rows, Mass: mass}
		}
	}
	for _, prop := range props {
		if !e.HasProperty(prop) {
			e.Properties = append(e.Properties, prop)
		}
	}
	sort.Strings(e.Properties)
	e.Version++
	return nil
}

type layout struct {
	atoms, configs, rate int
	box                  [3]float64
}

func (e *Experiment) snapshot() *layout {
	return &layout{atoms: e.NumberOfAtoms, configs: e.NumberOfConfigurations, rate: e.SampleRate, box: e.Box}
}

func (e *Experiment) restore(l layout) {
	e.NumberOfAtoms = l.atoms
	e.NumberOfConfigurations = l.configs
	e.SampleRate = l.rate
	e.Box = l.box
}
