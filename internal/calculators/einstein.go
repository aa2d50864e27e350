package calculators

import (
	"context"

	"github.com/san-kum/mdsuite/internal/analysis"
	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
	"gonum.org/v1/gonum/floats"
)

const EinsteinDiffusionName = "einstein_diffusion_coefficients"

// EinsteinDiffusion computes self-diffusion coefficients from the mean
// square displacement, D = slope/6.
type EinsteinDiffusion struct {
	Common `yaml:",inline"`
	// FitRange is the number of MSD points fitted, data_range-1 by default.
	FitRange int `yaml:"fit_range"`
}

func NewEinsteinDiffusion(params map[string]any) (Calculator, error) {
	c := &EinsteinDiffusion{Common: defaultCommon()}
	if err := decode(params, c); err != nil {
		return nil, err
	}
	if c.FitRange <= 0 {
		c.FitRange = c.DataRange - 1
	}
	return c, c.validate()
}

func (c *EinsteinDiffusion) Name() string               { return EinsteinDiffusionName }
func (c *EinsteinDiffusion) Parameters() map[string]any { return encode(c) }
func (c *EinsteinDiffusion) Dependencies() []string     { return []string{traj.UnwrappedPositions} }

func (c *EinsteinDiffusion) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	species, err := c.species(exp)
	if err != nil {
		return nil, err
	}
	lags := c.lags()
	time := timeAxis(exp, lags)
	length2 := exp.Units.Length * exp.Units.Length

	return eachSubject(ctx, species, func(ctx context.Context, name string) (project.Entry, error) {
		src := source{path: database.Join(name, traj.UnwrappedPositions), atoms: c.atoms(exp.Species[name])}
		msd := make([]float64, len(lags))
		n, err := forEachWindow(ctx, exp, c.Common, []source{src}, func(ts []*database.Tensor, origin int) {
			addMSD(ts[0], origin, lags, msd)
		})
		if err != nil {
			return project.Entry{}, c.fail(exp, name, err)
		}
		floats.Scale(length2/float64(n), msd)

		entry, err := einsteinEntry(time, msd, c.FitRange)
		if err != nil {
			return project.Entry{}, c.fail(exp, name, err)
		}
		entry.Subjects = []string{name}
		entry.Scalars["diffusion_coefficient"] = entry.Scalars["gradient"] / 6
		entry.Scalars["uncertainty"] = entry.Scalars["gradient_error"] / 6
		return entry, nil
	})
}

func (c *EinsteinDiffusion) fail(exp *project.Experiment, subject string, err error) error {
	return &CalculatorError{Calculator: c.Name(), Experiment: exp.Name, Subject: subject, Wrapped: err}
}

// einsteinEntry fits an MSD curve and fills the series shared by the
// Einstein calculators. Gradients are divided by 6 as for diffusion.
func einsteinEntry(time, msd []float64, fitRange int) (project.Entry, error) {
	fit, gradients, errs, err := analysis.FitEinsteinCurve(time, msd, fitRange)
	if err != nil {
		return project.Entry{}, err
	}
	floats.Scale(1.0/6, gradients)
	floats.Scale(1.0/6, errs)
	return project.Entry{
		Scalars: map[string]float64{
			"gradient":       fit.Slope,
			"gradient_error": fit.SlopeErr,
			"intercept":      fit.Intercept,
		},
		Series: map[string][]float64{
			"time":            time,
			"msd":             msd,
			"gradients":       gradients,
			"gradient_errors": errs,
		},
	}, nil
}
