package calculators

import (
	"context"

	"github.com/san-kum/mdsuite/internal/analysis"
	"github.com/san-kum/mdsuite/internal/compute"
	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/traj"
	"gonum.org/v1/gonum/floats"
)

const GreenKuboDiffusionName = "green_kubo_diffusion_coefficients"

// GreenKuboDiffusion integrates the velocity autocorrelation function.
type GreenKuboDiffusion struct {
	Common `yaml:",inline"`
	// IntegrationRange limits the integral to the first lags, data_range by
	// default.
	IntegrationRange int `yaml:"integration_range"`
}

func NewGreenKuboDiffusion(params map[string]any) (Calculator, error) {
	c := &GreenKuboDiffusion{Common: defaultCommon()}
	if err := decode(params, c); err != nil {
		return nil, err
	}
	if c.IntegrationRange <= 0 || c.IntegrationRange > c.DataRange {
		c.IntegrationRange = c.DataRange
	}
	return c, c.validate()
}

func (c *GreenKuboDiffusion) Name() string               { return GreenKuboDiffusionName }
func (c *GreenKuboDiffusion) Parameters() map[string]any { return encode(c) }
func (c *GreenKuboDiffusion) Dependencies() []string     { return []string{traj.Velocities} }

func (c *GreenKuboDiffusion) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	species, err := c.species(exp)
	if err != nil {
		return nil, err
	}
	lags := allLags(c.DataRange)
	simTime := exp.TimeAxis(lags)

	return eachSubject(ctx, species, func(ctx context.Context, name string) (project.Entry, error) {
		s := exp.Species[name]
		src := source{path: database.Join(name, traj.Velocities), atoms: c.atoms(s)}
		prefactor := exp.Units.Length * exp.Units.Length /
			(3 * exp.Units.Time * float64(c.DataRange-1) * float64(c.count(s)))

		acf, sigma, err := correlateWindows(ctx, exp, c.Common, src, simTime[:c.IntegrationRange])
		if err != nil {
			return project.Entry{}, &CalculatorError{Calculator: c.Name(), Experiment: exp.Name, Subject: name, Wrapped: err}
		}
		floats.Scale(prefactor, sigma)
		d, unc := analysis.MeanStdErr(sigma)

		return project.Entry{
			Subjects: []string{name},
			Scalars: map[string]float64{
				"diffusion_coefficient": d,
				"uncertainty":           unc,
			},
			Series: map[string][]float64{
				"time":     timeAxis(exp, lags),
				"vacf":     normalise(acf),
				"spectrum": analysis.PowerSpectrum(acf),
			},
		}, nil
	})
}

// correlateWindows sums the autocorrelation of every atom and dimension of
// src per window. It returns the window average and, per window, the
// integral of the summed correlation over time.
func correlateWindows(ctx context.Context, exp *project.Experiment, c Common, src source, time []float64) ([]float64, []float64, error) {
	acf := make([]float64, c.DataRange)
	window := make([]float64, c.DataRange)
	var integrals []float64
	pool := compute.NewBufferPool(c.DataRange)

	n, err := forEachWindow(ctx, exp, c, []source{src}, func(ts []*database.Tensor, origin int) {
		t := ts[0]
		for i := range window {
			window[i] = 0
		}
		buf := pool.Get()
		for a := 0; a < t.Atoms; a++ {
			for d := 0; d < t.Dim; d++ {
				floats.Add(window, analysis.Autocorrelate(component(t, a, d, origin, buf)))
			}
		}
		pool.Put(buf)
		floats.Add(acf, window)
		integrals = append(integrals, analysis.Trapezoid(window[:len(time)], time))
	})
	if err != nil {
		return nil, nil, err
	}
	floats.Scale(1/float64(n), acf)
	return acf, integrals, nil
}

func allLags(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// normalise scales x so that its largest value is one.
func normalise(x []float64) []float64 {
	out := append([]float64(nil), x...)
	if m := floats.Max(out); m != 0 {
		floats.Scale(1/m, out)
	}
	return out
}
