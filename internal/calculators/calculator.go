package calculators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/san-kum/mdsuite/internal/analysis"
	"github.com/san-kum/mdsuite/internal/project"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

type Calculator interface {
	Name() string
	// Parameters returns the resolved parameters, used as the cache key.
	Parameters() map[string]any
	// Dependencies lists the properties that must exist before Run.
	Dependencies() []string
	Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error)
}

// Common holds the parameters shared by the correlation calculators.
type Common struct {
	Species         []string  `yaml:"species,omitempty"`
	DataRange       int       `yaml:"data_range"`
	CorrelationTime int       `yaml:"correlation_time"`
	TauValues       TauValues `yaml:"tau_values,omitempty"`
	AtomSelection   []int     `yaml:"atom_selection,omitempty"`
}

func defaultCommon() Common {
	return Common{DataRange: 100, CorrelationTime: 1}
}

func (c Common) validate() error {
	if c.DataRange < 2 {
		return fmt.Errorf("%w: data_range must be at least 2, got %d", ErrParams, c.DataRange)
	}
	if c.CorrelationTime < 1 {
		return fmt.Errorf("%w: correlation_time must be at least 1, got %d", ErrParams, c.CorrelationTime)
	}
	return nil
}

// species returns the requested species, or every species of exp, and
// checks the atom selection against each of them.
func (c Common) species(exp *project.Experiment) ([]string, error) {
	names, err := selectSpecies(exp, c.Species)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		n := exp.Species[name].Count()
		for _, a := range c.AtomSelection {
			if a < 0 || a >= n {
				return nil, fmt.Errorf("%w: atom_selection index %d out of range for %s with %d atoms", ErrParams, a, name, n)
			}
		}
	}
	return names, nil
}

func selectSpecies(exp *project.Experiment, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return exp.SpeciesNames(), nil
	}
	out := make([]string, 0, len(requested))
	for _, name := range requested {
		if _, ok := exp.Species[name]; !ok {
			return nil, fmt.Errorf("%w: %s in %s", project.ErrUnknownSpecies, name, exp.Name)
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// atoms returns the atom selection, already checked by species; nil
// selects every atom.
func (c Common) atoms(s *project.Species) []int {
	if len(c.AtomSelection) == 0 {
		return nil
	}
	return c.AtomSelection
}

func (c Common) count(s *project.Species) int {
	if sel := c.atoms(s); sel != nil {
		return len(sel)
	}
	return s.Count()
}

// lags returns the correlation lags in configurations.
func (c Common) lags() []int {
	return c.TauValues.Resolve(c.DataRange)
}

// timeAxis converts lags into seconds.
func timeAxis(exp *project.Experiment, lags []int) []float64 {
	t := exp.TimeAxis(lags)
	floats.Scale(exp.Units.Time, t)
	return t
}

// TauValues selects the correlation lags inside a window. A count spreads
// that many lags evenly over the window, a list names them; the zero value
// selects every lag.
type TauValues struct {
	Count  int
	Values []int
}

func (t *TauValues) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Decode(&t.Count)
	case yaml.SequenceNode:
		return n.Decode(&t.Values)
	}
	return fmt.Errorf("%w: tau_values must be a count or a list", ErrParams)
}

func (t TauValues) MarshalYAML() (any, error) {
	if len(t.Values) > 0 {
		return t.Values, nil
	}
	return t.Count, nil
}

func (t TauValues) IsZero() bool {
	return t.Count == 0 && len(t.Values) == 0
}

func (t TauValues) Resolve(dataRange int) []int {
	switch {
	case len(t.Values) > 0:
		var out []int
		for _, v := range t.Values {
			if v >= 0 && v < dataRange {
				out = append(out, v)
			}
		}
		sort.Ints(out)
		return out
	case t.Count > 0 && t.Count < dataRange:
		return analysis.LinspaceInt(0, dataRange-1, t.Count)
	}
	out := make([]int, dataRange)
	for i := range out {
		out[i] = i
	}
	return out
}

// decode unmarshals params over the defaults already set in dst. Unknown
// parameter names are rejected.
func decode(params map[string]any, dst any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParams, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrParams, err)
	}
	return nil
}

// encode flattens a parameter struct into a map.
func encode(v any) map[string]any {
	out := make(map[string]any)
	data, err := yaml.Marshal(v)
	if err != nil {
		return out
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return make(map[string]any)
	}
	return out
}
