package calculators

import (
	"context"
	"fmt"

	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
	"gonum.org/v1/gonum/floats"
)

const DistinctDiffusionName = "einstein_distinct_diffusion_coefficients"

// DistinctDiffusion computes distinct diffusion coefficients of species
// pairs from the cross displacement Σ_{i≠j} Δr_i·Δr_j.
type DistinctDiffusion struct {
	Common   `yaml:",inline"`
	FitRange int `yaml:"fit_range"`
}

func NewDistinctDiffusion(params map[string]any) (Calculator, error) {
	c := &DistinctDiffusion{Common: defaultCommon()}
	if err := decode(params, c); err != nil {
		return nil, err
	}
	if c.FitRange <= 0 {
		c.FitRange = c.DataRange - 1
	}
	return c, c.validate()
}

func (c *DistinctDiffusion) Name() string               { return DistinctDiffusionName }
func (c *DistinctDiffusion) Parameters() map[string]any { return encode(c) }
func (c *DistinctDiffusion) Dependencies() []string     { return []string{traj.UnwrappedPositions} }

func (c *DistinctDiffusion) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	species, err := c.species(exp)
	if err != nil {
		return nil, err
	}
	lags := c.lags()
	time := timeAxis(exp, lags)

	return eachSubject(ctx, pairs(species), func(ctx context.Context, pair [2]string) (project.Entry, error) {
		fail := func(err error) error {
			return &CalculatorError{Calculator: c.Name(), Experiment: exp.Name, Subject: pair[0] + "_" + pair[1], Wrapped: err}
		}
		a, b := exp.Species[pair[0]], exp.Species[pair[1]]
		same := pair[0] == pair[1]
		na, nb := c.count(a), c.count(b)
		scale := float64(na * nb)
		if same {
			scale = float64(na * (na - 1))
		}
		if scale == 0 {
			return project.Entry{}, fail(fmt.Errorf("%w: %s has %d atoms", ErrTooFewAtoms, pair[0], na))
		}

		sources := []source{{path: database.Join(pair[0], traj.UnwrappedPositions), atoms: c.atoms(a)}}
		if !same {
			sources = append(sources, source{path: database.Join(pair[1], traj.UnwrappedPositions), atoms: c.atoms(b)})
		}
		msd := make([]float64, len(lags))
		n, err := forEachWindow(ctx, exp, c.Common, sources, func(ts []*database.Tensor, origin int) {
			if same {
				addCrossDisplacement(ts[0], ts[0], true, origin, lags, msd)
				return
			}
			addCrossDisplacement(ts[0], ts[1], false, origin, lags, msd)
		})
		if err != nil {
			return project.Entry{}, fail(err)
		}
		floats.Scale(exp.Units.Length*exp.Units.Length/(float64(n)*scale), msd)

		entry, err := einsteinEntry(time, msd, c.FitRange)
		if err != nil {
			return project.Entry{}, fail(err)
		}
		entry.Subjects = []string{pair[0], pair[1]}
		entry.Scalars["diffusion_coefficient"] = entry.Scalars["gradient"] / 6
		entry.Scalars["uncertainty"] = entry.Scalars["gradient_error"] / 6
		return entry, nil
	})
}

// addCrossDisplacement adds ΣΔr_a·ΣΔr_b per lag, minus the self terms
// ΣΔr_i² when both tensors hold the same atoms.
func addCrossDisplacement(ta, tb *database.Tensor, same bool, origin int, lags []int, acc []float64) {
	for j, lag := range lags {
		var total float64
		for d := 0; d < ta.Dim; d++ {
			var sa, sb, self float64
			for i := 0; i < ta.Atoms; i++ {
				dx := ta.At(i, origin+lag, d) - ta.At(i, origin, d)
				sa += dx
				self += dx * dx
			}
			if same {
				total += sa*sa - self
				continue
			}
			for i := 0; i < tb.Atoms; i++ {
				sb += tb.At(i, origin+lag, d) - tb.At(i, origin, d)
			}
			total += sa * sb
		}
		acc[j] += total
	}
}
