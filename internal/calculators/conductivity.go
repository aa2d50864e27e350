package calculators

import (
	"context"
	"fmt"

	"github.com/san-kum/mdsuite/internal/analysis"
	"github.com/san-kum/mdsuite/internal/database"
	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/transform"
	"github.com/san-kum/mdsuite/internal/units"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const (
	NernstEinsteinName        = "nernst_einstein_ionic_conductivity"
	EinsteinHelfandName       = "einstein_helfand_ionic_conductivity"
	GreenKuboConductivityName = "green_kubo_ionic_conductivity"
)

// chargePrefactor returns e²/(kB·T·V) in SI units.
func chargePrefactor(exp *project.Experiment) (float64, error) {
	temperature := exp.Temperature * exp.Units.Temperature
	if temperature <= 0 {
		return 0, fmt.Errorf("%w: %s has %g K", ErrTemperature, exp.Name, temperature)
	}
	volume := exp.Volume() * exp.Units.Length * exp.Units.Length * exp.Units.Length
	if volume <= 0 {
		return 0, fmt.Errorf("%w: %s has no box volume", ErrParams, exp.Name)
	}
	return units.ElementaryCharge * units.ElementaryCharge / (units.Boltzmann * temperature * volume), nil
}

// conductivityScalars reports σ in S/m and S/cm.
func conductivityScalars(sigma, uncertainty float64) map[string]float64 {
	return map[string]float64{
		"ionic_conductivity":      sigma,
		"ionic_conductivity_s_cm": sigma / 100,
		"uncertainty":             uncertainty,
	}
}

// NernstEinstein estimates the ionic conductivity from self-diffusion
// coefficients, σ = e²/(kB·T·V) Σ_s N_s q_s² D_s.
type NernstEinstein struct {
	Common `yaml:",inline"`
	// Method picks the diffusion coefficients: "einstein" or "green_kubo".
	Method string `yaml:"method"`

	runner *Runner
}

func NewNernstEinstein(params map[string]any) (Calculator, error) {
	c := &NernstEinstein{Common: defaultCommon(), Method: "einstein"}
	if err := decode(params, c); err != nil {
		return nil, err
	}
	if c.Method != "einstein" && c.Method != "green_kubo" {
		return nil, fmt.Errorf("%w: method %q", ErrParams, c.Method)
	}
	return c, c.validate()
}

func (c *NernstEinstein) Name() string               { return NernstEinsteinName }
func (c *NernstEinstein) Parameters() map[string]any { return encode(c) }
func (c *NernstEinstein) Dependencies() []string     { return c.diffusion().Dependencies() }

func (c *NernstEinstein) bind(r *Runner) { c.runner = r }

func (c *NernstEinstein) diffusion() Calculator {
	if c.Method == "green_kubo" {
		return &GreenKuboDiffusion{Common: c.Common, IntegrationRange: c.DataRange}
	}
	return &EinsteinDiffusion{Common: c.Common, FitRange: c.DataRange - 1}
}

func (c *NernstEinstein) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	if c.runner == nil {
		c.runner = NewRunner(exp.Logger())
	}
	prefactor, err := chargePrefactor(exp)
	if err != nil {
		return nil, err
	}
	comp, err := c.runner.Run(ctx, exp, c.diffusion(), RunOptions{})
	if err != nil {
		return nil, err
	}

	var sigma, uncertainty float64
	scalars := make(map[string]float64)
	for _, e := range comp.Entries {
		s := exp.Species[e.Subjects[0]]
		if s.Charge == 0 {
			exp.Logger().Warn("species has no charge", zap.String("species", s.Name))
		}
		weight := float64(c.count(s)) * s.Charge * s.Charge
		sigma += weight * e.Scalars["diffusion_coefficient"]
		uncertainty += weight * e.Scalars["uncertainty"]
		scalars[s.Name+"_diffusion_coefficient"] = e.Scalars["diffusion_coefficient"]
	}
	out := conductivityScalars(prefactor*sigma, prefactor*uncertainty)
	for k, v := range scalars {
		out[k] = v
	}
	return []project.Entry{{Scalars: out}}, nil
}

// EinsteinHelfand computes the ionic conductivity from the mean square
// displacement of the translational dipole moment.
type EinsteinHelfand struct {
	Common   `yaml:",inline"`
	FitRange int `yaml:"fit_range"`
}

func NewEinsteinHelfand(params map[string]any) (Calculator, error) {
	c := &EinsteinHelfand{Common: defaultCommon()}
	if err := decode(params, c); err != nil {
		return nil, err
	}
	if c.FitRange <= 0 {
		c.FitRange = c.DataRange - 1
	}
	return c, c.validate()
}

func (c *EinsteinHelfand) Name() string               { return EinsteinHelfandName }
func (c *EinsteinHelfand) Parameters() map[string]any { return encode(c) }
func (c *EinsteinHelfand) Dependencies() []string {
	return []string{transform.TranslationalDipoleMoment}
}

func (c *EinsteinHelfand) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	prefactor, err := chargePrefactor(exp)
	if err != nil {
		return nil, err
	}
	lags := c.lags()
	src := source{path: database.Join(transform.TranslationalDipoleMoment, transform.TranslationalDipoleMoment)}
	msd := make([]float64, len(lags))
	n, err := forEachWindow(ctx, exp, c.Common, []source{src}, func(ts []*database.Tensor, origin int) {
		addMSD(ts[0], origin, lags, msd)
	})
	if err != nil {
		return nil, err
	}
	floats.Scale(exp.Units.Length*exp.Units.Length/float64(n), msd)

	entry, err := einsteinEntry(timeAxis(exp, lags), msd, c.FitRange)
	if err != nil {
		return nil, err
	}
	prefactor /= 6
	for k, v := range conductivityScalars(prefactor*entry.Scalars["gradient"], prefactor*entry.Scalars["gradient_error"]) {
		entry.Scalars[k] = v
	}
	return []project.Entry{entry}, nil
}

// GreenKuboConductivity integrates the ionic current autocorrelation
// function.
type GreenKuboConductivity struct {
	Common           `yaml:",inline"`
	IntegrationRange int `yaml:"integration_range"`
}

func NewGreenKuboConductivity(params map[string]any) (Calculator, error) {
	c := &GreenKuboConductivity{Common: defaultCommon()}
	if err := decode(params, c); err != nil {
		return nil, err
	}
	if c.IntegrationRange <= 0 || c.IntegrationRange > c.DataRange {
		c.IntegrationRange = c.DataRange
	}
	return c, c.validate()
}

func (c *GreenKuboConductivity) Name() string               { return GreenKuboConductivityName }
func (c *GreenKuboConductivity) Parameters() map[string]any { return encode(c) }
func (c *GreenKuboConductivity) Dependencies() []string     { return []string{transform.IonicCurrent} }

func (c *GreenKuboConductivity) Run(ctx context.Context, exp *project.Experiment) ([]project.Entry, error) {
	prefactor, err := chargePrefactor(exp)
	if err != nil {
		return nil, err
	}
	prefactor *= exp.Units.Length * exp.Units.Length / (3 * exp.Units.Time * float64(c.DataRange-1))

	lags := allLags(c.DataRange)
	src := source{path: database.Join(transform.IonicCurrent, transform.IonicCurrent)}
	acf, sigma, err := correlateWindows(ctx, exp, c.Common, src, exp.TimeAxis(lags)[:c.IntegrationRange])
	if err != nil {
		return nil, err
	}
	floats.Scale(prefactor, sigma)
	mean, unc := analysis.MeanStdErr(sigma)

	return []project.Entry{{
		Scalars: conductivityScalars(mean, unc),
		Series: map[string][]float64{
			"time": timeAxis(exp, lags),
			"jacf": normalise(acf),
		},
	}}, nil
}
