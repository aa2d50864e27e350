package calculators

import (
	"context"
	"math"

	"github.com/san-kum/mdsuite/internal/analysis"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
)

const KirkwoodBuffName = "kirkwood_buff_integrals"

// KirkwoodBuff integrates G(r) = 4π ∫ (g(r)-1) r² dr over the radial
// distribution function computed with the same parameters.
type KirkwoodBuff struct {
	RDF `yaml:",inline"`

	runner *Runner
}

func NewKirkwoodBuff(params map[string]any) (Calculator, error) {
	c := &KirkwoodBuff{RDF: defaultRDF()}
	if err := decode(params, c); err != nil {
		return nil, err
	}
	return c, c.RDF.validate()
}

func (c *KirkwoodBuff) Name() string               { return KirkwoodBuffName }
func (c *KirkwoodBuff) Parameters() map[string]any { return encode(c) }
func (c *KirkwoodBuff) Dependencies() []string     { return []string{traj.Positions} }

func (c *KirkwoodBuff) bind(r *Runner) { c.runner = r }

func (c *KirkwoodBuff) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	if c.runner == nil {
		c.runner = NewRunner(exp.Logger())
	}
	rdf := c.RDF
	comp, err := c.runner.Run(ctx, exp, &rdf, RunOptions{})
	if err != nil {
		return nil, err
	}

	entries := make([]project.Entry, 0, len(comp.Entries))
	for _, e := range comp.Entries {
		r, g := e.Series["r"], e.Series["g"]
		integrand := make([]float64, len(r))
		for i := range r {
			integrand[i] = (g[i] - 1) * r[i] * r[i]
		}
		kb := analysis.CumulativeTrapezoid(integrand, r)
		for i := range kb {
			kb[i] *= 4 * math.Pi
		}
		final := math.NaN()
		if len(kb) > 0 {
			final = kb[len(kb)-1]
		}
		entries = append(entries, project.Entry{
			Subjects: e.Subjects,
			Scalars:  map[string]float64{"kirkwood_buff_integral": final},
			Series: map[string][]float64{
				"r":           r,
				"kb_integral": kb,
			},
		})
	}
	return entries, nil
}
