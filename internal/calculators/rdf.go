package calculators

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/mdsuite/internal/analysis"
	"github.com/san-kum/mdsuite/internal/compute"
	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/graph"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
)

const RDFName = "radial_distribution_function"

// RDF computes radial distribution functions of species pairs from a
// sample of evenly spaced configurations.
type RDF struct {
	Species []string `yaml:"species,omitempty"`
	// NumberOfBins defaults to one bin per 0.01 length units.
	NumberOfBins int `yaml:"number_of_bins"`
	// Cutoff defaults to half the smallest box side.
	Cutoff float64 `yaml:"cutoff"`
	Start  int     `yaml:"start"`
	// Stop is exclusive; zero means the last configuration.
	Stop                   int `yaml:"stop"`
	NumberOfConfigurations int `yaml:"number_of_configurations"`
}

func defaultRDF() RDF {
	return RDF{NumberOfConfigurations: 500}
}

func NewRDF(params map[string]any) (Calculator, error) {
	c := defaultRDF()
	if err := decode(params, &c); err != nil {
		return nil, err
	}
	return &c, c.validate()
}

func (c *RDF) validate() error {
	if c.NumberOfBins < 0 || c.Cutoff < 0 || c.Start < 0 || c.Stop < 0 {
		return fmt.Errorf("%w: negative rdf parameter", ErrParams)
	}
	if c.NumberOfConfigurations < 1 {
		return fmt.Errorf("%w: number_of_configurations must be positive", ErrParams)
	}
	return nil
}

func (c *RDF) Name() string               { return RDFName }
func (c *RDF) Parameters() map[string]any { return encode(c) }
func (c *RDF) Dependencies() []string     { return []string{traj.Positions} }

// rdfSetup holds the parameters resolved against an experiment.
type rdfSetup struct {
	cutoff  float64
	bins    int
	configs []int
}

func (c *RDF) resolve(exp *project.Experiment) (rdfSetup, error) {
	cutoff := c.Cutoff
	if cutoff == 0 {
		cutoff = math.Min(exp.Box[0], math.Min(exp.Box[1], exp.Box[2])) / 2
	}
	if cutoff <= 0 {
		return rdfSetup{}, fmt.Errorf("%w: cutoff must be positive", ErrParams)
	}
	bins := c.NumberOfBins
	if bins == 0 {
		bins = int(math.Round(cutoff / 0.01))
	}
	if bins < 1 {
		bins = 1
	}
	stop := c.Stop
	if stop == 0 || stop > exp.NumberOfConfigurations {
		stop = exp.NumberOfConfigurations
	}
	if c.Start >= stop {
		return rdfSetup{}, fmt.Errorf("%w: start %d, stop %d", ErrDataRange, c.Start, stop)
	}
	n := min(c.NumberOfConfigurations, stop-c.Start)
	return rdfSetup{cutoff: cutoff, bins: bins, configs: analysis.LinspaceInt(c.Start, stop-1, n)}, nil
}

func (c *RDF) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	species, err := selectSpecies(exp, c.Species)
	if err != nil {
		return nil, err
	}
	setup, err := c.resolve(exp)
	if err != nil {
		return nil, err
	}
	db, err := exp.Database()
	if err != nil {
		return nil, err
	}
	width := setup.cutoff / float64(setup.bins)
	r := analysis.BinCentres(setup.bins, 0, setup.cutoff)
	volume := exp.Volume()

	return eachSubject(ctx, pairs(species), func(ctx context.Context, pair [2]string) (project.Entry, error) {
		fail := func(err error) error {
			return &CalculatorError{Calculator: c.Name(), Experiment: exp.Name, Subject: pair[0] + "_" + pair[1], Wrapped: err}
		}
		same := pair[0] == pair[1]
		na, nb := exp.Species[pair[0]].Count(), exp.Species[pair[1]].Count()
		if same && na < 2 {
			return project.Entry{}, fail(fmt.Errorf("%w: %s has %d atoms", ErrTooFewAtoms, pair[0], na))
		}

		counts := make([]float64, setup.bins)
		batch := exp.BatchSize((na+nb)*3*8, len(setup.configs))
		for start := 0; start < len(setup.configs); start += batch {
			if err := ctx.Err(); err != nil {
				return project.Entry{}, err
			}
			configs := setup.configs[start:min(start+batch, len(setup.configs))]
			ta, err := db.LoadConfigurations(database.Join(pair[0], traj.Positions), configs, nil)
			if err != nil {
				return project.Entry{}, fail(err)
			}
			tb := ta
			if !same {
				if tb, err = db.LoadConfigurations(database.Join(pair[1], traj.Positions), configs, nil); err != nil {
					return project.Entry{}, fail(err)
				}
			}
			part := compute.Reduce(len(configs), 1, setup.bins, func(lo, hi int, acc []float64) {
				for ci := lo; ci < hi; ci++ {
					histogramPairs(ta, tb, same, ci, exp.Box, setup.cutoff, width, acc)
				}
			})
			for i, v := range part {
				counts[i] += v
			}
		}

		// unordered pairs of one species are counted once
		scale, rho := 1.0, float64(nb)/volume
		if same {
			scale, rho = 2, float64(nb-1)/volume
		}
		g := make([]float64, setup.bins)
		for i := range g {
			shell := shellVolume(r[i], width, exp.Box[0])
			if shell > 0 {
				g[i] = counts[i] * scale / (float64(len(setup.configs)) * rho * float64(na) * shell)
			}
		}

		integrand := make([]float64, len(g))
		for i := range g {
			integrand[i] = g[i] * r[i] * r[i]
		}
		coordination := analysis.CumulativeTrapezoid(integrand, r)
		for i := range coordination {
			coordination[i] *= 4 * math.Pi * rho
		}

		peak := 0
		for i := range g {
			if g[i] > g[peak] {
				peak = i
			}
		}
		return project.Entry{
			Subjects: []string{pair[0], pair[1]},
			Scalars: map[string]float64{
				"first_maximum":  r[peak],
				"maximum_value":  g[peak],
				"number_density": rho,
			},
			Series: map[string][]float64{
				"r":            r,
				"g":            g,
				"coordination": coordination,
			},
		}, nil
	})
}

// histogramPairs bins the minimum-image distances between the atoms of ta
// and tb in configuration ci. For the same species each pair is counted
// once.
func histogramPairs(ta, tb *database.Tensor, same bool, ci int, box [3]float64, cutoff, width float64, acc []float64) {
	var pa, pb [3]float64
	for i := 0; i < ta.Atoms; i++ {
		for d := 0; d < 3; d++ {
			pa[d] = ta.At(i, ci, d)
		}
		j0 := 0
		if same {
			j0 = i + 1
		}
		for j := j0; j < tb.Atoms; j++ {
			for d := 0; d < 3; d++ {
				pb[d] = tb.At(j, ci, d)
			}
			dist := graph.Distance(pa[:], pb[:], box)
			if dist >= cutoff {
				continue
			}
			b := int(dist / width)
			if b >= len(acc) {
				b = len(acc) - 1
			}
			acc[b]++
		}
	}
}

// shellVolume is the volume of a spherical shell of radius r and width dr
// inside a cubic box of side l, corrected for the parts of the sphere that
// leave the box beyond l/2.
func shellVolume(r, dr, l float64) float64 {
	return l * l * shellFactor(r/l) * dr
}

// shellFactor is the area, in units of l², of a sphere of radius x·l
// centred in a cube of side l that lies inside the cube. Past √2/2 two
// face caps overlap along every edge and the overlap is added back.
func shellFactor(x float64) float64 {
	switch {
	case x <= 0.5:
		return 4 * math.Pi * x * x
	case x <= math.Sqrt2/2:
		return 2 * math.Pi * x * (3 - 4*x)
	case x <= math.Sqrt(3)/2:
		q := math.Sqrt(x*x - 0.5)
		edge := 4 * x * (x*math.Atan(q/x) - 0.5*math.Asin(q/math.Sqrt(x*x-0.25)))
		return 2*math.Pi*x*(3-4*x) + 12*edge
	}
	return 0
}
