package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is the result of a computation for one subject: a species, a
// species pair or the whole system.
type Entry struct {
	Subjects []string             `json:"subjects"`
	Scalars  map[string]float64   `json:"scalars,omitempty"`
	Series   map[string][]float64 `json:"series,omitempty"`
}

// Key joins the subjects, e.g. "Na_Cl".
func (e Entry) Key() string {
	if len(e.Subjects) == 0 {
		return "System"
	}
	return strings.Join(e.Subjects, "_")
}

// SeriesNames returns the series keys sorted.
func (e Entry) SeriesNames() []string {
	names := make([]string, 0, len(e.Series))
	for k := range e.Series {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (e Entry) ScalarNames() []string {
	names := make([]string, 0, len(e.Scalars))
	for k := range e.Scalars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type Computation struct {
	ID         string         `json:"id"`
	Experiment string         `json:"experiment"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	Entries    []Entry        `json:"entries,omitempty"`
}

// Entry finds the entry for the given subjects.
func (c *Computation) Entry(subjects ...string) (Entry, bool) {
	key := Entry{Subjects: subjects}.Key()
	for _, e := range c.Entries {
		if e.Key() == key {
			return e, true
		}
	}
	return Entry{}, false
}

// canonical encodes parameters with sorted keys so equal parameter sets
// compare equal as strings.
func canonical(params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	// round trip so ints and floats with the same value encode alike
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	data, err = json.Marshal(generic)
	return string(data), err
}

// FindComputation returns a computation with the same name and parameters
// made on the current experiment version.
func (e *Experiment) FindComputation(ctx context.Context, name string, params map[string]any) (*Computation, error) {
	key, err := canonical(params)
	if err != nil {
		return nil, err
	}
	var id string
	err = e.project.db.QueryRowContext(ctx, `
		SELECT id FROM computations
		WHERE experiment_id = ? AND name = ? AND version = ? AND parameters = ?
		ORDER BY created_at DESC LIMIT 1`, e.ID, name, e.Version, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s on %s", ErrNoComputation, name, e.Name)
	}
	if err != nil {
		return nil, err
	}
	return e.project.Computation(ctx, id)
}

// SaveComputation stores c for this experiment, assigning its id, version
// and creation time.
func (e *Experiment) SaveComputation(ctx context.Context, c *Computation) error {
	key, err := canonical(c.Parameters)
	if err != nil {
		return err
	}
	c.ID = uuid.NewString()
	c.Experiment = e.Name
	c.Version = e.Version
	c.CreatedAt = time.Now()

	tx, err := e.project.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO computations (id, experiment_id, name, parameters, version, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, e.ID, c.Name, key, c.Version, c.CreatedAt.UnixNano()); err != nil {
		return err
	}
	for k, v := range c.Parameters {
		value, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO computation_attributes (computation_id, name, value) VALUES (?, ?, ?)`,
			c.ID, k, string(value)); err != nil {
			return err
		}
	}
	for _, entry := range c.Entries {
		subjects, err := json.Marshal(entry.Subjects)
		if err != nil {
			return err
		}
		scalars, err := json.Marshal(encodeScalars(entry.Scalars))
		if err != nil {
			return err
		}
		series, err := json.Marshal(encodeSeries(entry.Series))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO computation_results (computation_id, subjects, scalars, series) VALUES (?, ?, ?, ?)`,
			c.ID, string(subjects), string(scalars), string(series)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Logger().Debug("computation stored", zap.String("id", c.ID), zap.String("name", c.Name), zap.Int("version", c.Version))
	return nil
}

// Computations lists the experiment's computations, newest first, without
// their entries.
func (e *Experiment) Computations(ctx context.Context) ([]*Computation, error) {
	rows, err := e.project.db.QueryContext(ctx, `
		SELECT id, name, parameters, version, created_at FROM computations
		WHERE experiment_id = ? ORDER BY created_at DESC`, e.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Computation
	for rows.Next() {
		c := &Computation{Experiment: e.Name}
		var params string
		var created int64
		if err := rows.Scan(&c.ID, &c.Name, &params, &c.Version, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &c.Parameters); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (e *Experiment) DeleteComputation(ctx context.Context, id string) error {
	return e.project.DeleteComputation(ctx, id)
}

// Computation loads a computation with all its entries. Unique id
// prefixes are accepted.
func (p *Project) Computation(ctx context.Context, id string) (*Computation, error) {
	c := &Computation{}
	var params string
	var created int64
	err := p.db.QueryRowContext(ctx, `
		SELECT c.id, e.name, c.name, c.parameters, c.version, c.created_at
		FROM computations c JOIN experiments e ON e.id = c.experiment_id
		WHERE c.id = ? OR c.id LIKE ? ORDER BY c.id = ? DESC LIMIT 1`, id, id+"%", id).Scan(
		&c.ID, &c.Experiment, &c.Name, &params, &c.Version, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoComputation, id)
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(0, created)
	if err := json.Unmarshal([]byte(params), &c.Parameters); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT subjects, scalars, series FROM computation_results WHERE computation_id = ? ORDER BY id`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var subjects, scalars, series string
		if err := rows.Scan(&subjects, &scalars, &series); err != nil {
			return nil, err
		}
		var entry Entry
		if err := json.Unmarshal([]byte(subjects), &entry.Subjects); err != nil {
			return nil, err
		}
		var rawScalars map[string]*float64
		if err := json.Unmarshal([]byte(scalars), &rawScalars); err != nil {
			return nil, err
		}
		var rawSeries map[string][]*float64
		if err := json.Unmarshal([]byte(series), &rawSeries); err != nil {
			return nil, err
		}
		entry.Scalars = decodeScalars(rawScalars)
		entry.Series = decodeSeries(rawSeries)
		c.Entries = append(c.Entries, entry)
	}
	return c, rows.Err()
}

func (p *Project) DeleteComputation(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM computation_attributes WHERE computation_id = ?`,
		`DELETE FROM computation_results WHERE computation_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM computations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNoComputation, id)
	}
	return tx.Commit()
}

// JSON has no NaN or Inf; non-finite values are stored as null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func encodeScalars(in map[string]float64) map[string]*float64 {
	out := make(map[string]*float64, len(in))
	for k, v := range in {
		out[k] = finite(v)
	}
	return out
}

func encodeSeries(in map[string][]float64) map[string][]*float64 {
	out := make(map[string][]*float64, len(in))
	for k, vs := range in {
		enc := make([]*float64, len(vs))
		for i, v := range vs {
			enc[i] = finite(v)
		}
		out[k] = enc
	}
	return out
}

func decodeScalars(in map[string]*float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if v == nil {
			out[k] = math.NaN()
			continue
		}
		out[k] = *v
	}
	return out
}

func decodeSeries(in map[string][]*float64) map[string][]float64 {
	out := make(map[string][]float64, len(in))
	for k, vs := range in {
		dec := make([]float64, len(vs))
		for i, v := range vs {
			if v == nil {
				dec[i] = math.NaN()
				continue
			}
			dec[i] = *v
		}
		out[k] = dec
	}
	return out
}
