package calculators

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/graph"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
)

const MolecularGraphName = "molecular_graph"

// MolecularGraph bonds atoms closer than a cutoff in one configuration and
// reports the resulting molecules.
type MolecularGraph struct {
	Species       []string `yaml:"species,omitempty"`
	Cutoff        float64  `yaml:"cutoff"`
	Configuration int      `yaml:"configuration"`
}

func NewMolecularGraph(params map[string]any) (Calculator, error) {
	c := &MolecularGraph{}
	if err := decode(params, c); err != nil {
		return nil, err
	}
	if c.Cutoff <= 0 {
		return nil, fmt.Errorf("%w: molecular_graph needs a positive cutoff", ErrParams)
	}
	if c.Configuration < 0 {
		return nil, fmt.Errorf("%w: negative configuration", ErrParams)
	}
	return c, nil
}

func (c *MolecularGraph) Name() string               { return MolecularGraphName }
func (c *MolecularGraph) Parameters() map[string]any { return encode(c) }
func (c *MolecularGraph) Dependencies() []string     { return []string{traj.Positions} }

func (c *MolecularGraph) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	species, err := selectSpecies(exp, c.Species)
	if err != nil {
		return nil, err
	}
	if c.Configuration >= exp.NumberOfConfigurations {
		return nil, fmt.Errorf("%w: configuration %d of %d", ErrDataRange, c.Configuration, exp.NumberOfConfigurations)
	}
	db, err := exp.Database()
	if err != nil {
		return nil, err
	}

	var (
		positions []float64
		labels    []string
	)
	for _, name := range species {
		t, err := db.LoadConfigurations(database.Join(name, traj.Positions), []int{c.Configuration}, nil)
		if err != nil {
			return nil, err
		}
		positions = append(positions, t.Frame(0, nil)...)
		for i := 0; i < t.Atoms; i++ {
			labels = append(labels, name)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	molecules := graph.Components(graph.Adjacency(positions, exp.Box, c.Cutoff))
	hist := graph.SizeHistogram(molecules)
	sizes := make([]float64, len(hist))
	for i := range sizes {
		sizes[i] = float64(i)
	}

	largest := 0
	formulas := make(map[string]int)
	for _, m := range molecules {
		largest = max(largest, len(m))
		formulas[formula(m, labels)]++
	}

	entries := []project.Entry{{
		Subjects: species,
		Scalars: map[string]float64{
			"number_of_molecules": float64(len(molecules)),
			"largest_molecule":    float64(largest),
		},
		Series: map[string][]float64{
			"size":  sizes,
			"count": hist,
		},
	}}
	names := make([]string, 0, len(formulas))
	for f := range formulas {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		entries = append(entries, project.Entry{
			Subjects: []string{"molecule", f},
			Scalars:  map[string]float64{"count": float64(formulas[f])},
		})
	}
	return entries, nil
}

// formula writes a molecule as species counts in alphabetical order,
// e.g. "Cl1Na2".
func formula(atoms []int, labels []string) string {
	counts := make(map[string]int)
	for _, a := range atoms {
		counts[labels[a]]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteString(strconv.Itoa(counts[name]))
	}
	return sb.String()
}
