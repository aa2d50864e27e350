package calculators

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/mdsuite/internal/project"
	"github.com/san-kum/mdsuite/internal/testutil"
	"github.com/san-kum/mdsuite/internal/units"
)

var bigBox = [3]float64{100, 100, 100}

func openProject(t *testing.T) *project.Project {
	t.Helper()
	p, err := project.Open(context.Background(), t.TempDir(), "", project.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func addExperiment(t *testing.T, p *project.Project, name string, d testutil.Dump) *project.Experiment {
	t.Helper()
	ctx := context.Background()
	exp, err := p.AddExperiment(ctx, project.ExperimentOptions{Name: name, TimeStep: 1, Temperature: 300, Units: "si"})
	require.NoError(t, err)
	require.NoError(t, exp.AddData(ctx, project.DataSource{Path: testutil.WriteLAMMPS(t, name+".lammpstraj", d)}, nil))
	return exp
}

// ballistic has two Na atoms with |v|² of 1 and 4 and one Cl atom with
// |v|² of 0.25, all moving at constant velocity.
func ballistic(configs int) testutil.Dump {
	return testutil.Linear(
		[]string{"Na", "Na", "Cl"},
		bigBox,
		[][3]float64{{10, 10, 10}, {20, 20, 20}, {30, 30, 30}},
		[][3]float64{{1, 0, 0}, {0, 2, 0}, {0, 0, 0.5}},
		configs, 1)
}

func run(t *testing.T, exp *project.Experiment, name string, params map[string]any) *project.Computation {
	t.Helper()
	calc, err := NewRegistry().Get(name, params)
	require.NoError(t, err)
	c, err := NewRunner(nil).Run(context.Background(), exp, calc, RunOptions{})
	require.NoError(t, err)
	return c
}

func TestEinsteinDiffusion(t *testing.T) {
	exp := addExperiment(t, openProject(t), "ballistic", ballistic(10))
	c := run(t, exp, EinsteinDiffusionName, map[string]any{"data_range": 4})

	na, ok := c.Entry("Na")
	require.True(t, ok)
	want := []float64{0, 2.5, 10, 22.5}
	for i, v := range want {
		assert.InDelta(t, v, na.Series["msd"][i], 1e-9)
	}
	assert.Equal(t, []float64{0, 1, 2, 3}, na.Series["time"])
	// least squares over the first three points of 2.5τ²
	assert.InDelta(t, 5.0/6, na.Scalars["diffusion_coefficient"], 1e-9)

	cl, ok := c.Entry("Cl")
	require.True(t, ok)
	assert.InDelta(t, 0.5/6, cl.Scalars["diffusion_coefficient"], 1e-9)
}

func TestEinsteinDiffusion_TauValues(t *testing.T) {
	exp := addExperiment(t, openProject(t), "ballistic", ballistic(10))
	c := run(t, exp, EinsteinDiffusionName, map[string]any{"data_range": 4, "tau_values": []int{0, 3}, "species": []string{"Cl"}})

	require.Len(t, c.Entries, 1)
	cl := c.Entries[0]
	assert.Equal(t, []string{"Cl"}, cl.Subjects)
	assert.Equal(t, []float64{0, 3}, cl.Series["time"])
	assert.InDelta(t, 2.25, cl.Series["msd"][1], 1e-9)
}

func TestEinsteinDiffusion_AtomSelection(t *testing.T) {
	exp := addExperiment(t, openProject(t), "ballistic", ballistic(10))
	c := run(t, exp, EinsteinDiffusionName, map[string]any{"data_range": 4, "species": []string{"Na"}, "atom_selection": []int{1}})

	na, ok := c.Entry("Na")
	require.True(t, ok)
	assert.InDelta(t, 4.0, na.Series["msd"][1], 1e-9)
	assert.InDelta(t, 4.0/3, na.Scalars["diffusion_coefficient"], 1e-9)

	for _, params := range []map[string]any{
		{"data_range": 4, "species": []string{"Na"}, "atom_selection": []int{5}},
		{"data_range": 4, "species": []string{"Na"}, "atom_selection": []int{-1}},
		// Cl has a single atom
		{"data_range": 4, "atom_selection": []int{1}},
	} {
		calc, err := NewRegistry().Get(EinsteinDiffusionName, params)
		require.NoError(t, err)
		_, err = NewRunner(nil).Run(context.Background(), exp, calc, RunOptions{})
		assert.ErrorIs(t, err, ErrParams, "%v", params["atom_selection"])
	}
}

func TestGreenKuboDiffusion(t *testing.T) {
	d := testutil.Linear([]string{"Ar"}, bigBox, [][3]float64{{1, 1, 1}}, [][3]float64{{1, 0, 0}}, 6, 1)
	exp := addExperiment(t, openProject(t), "argon", d)
	c := run(t, exp, GreenKuboDiffusionName, map[string]any{"data_range": 3})

	ar, ok := c.Entry("Ar")
	require.True(t, ok)
	// acf [3 2 1] integrates to 4, prefactor 1/(3·2·1)
	assert.InDelta(t, 2.0/3, ar.Scalars["diffusion_coefficient"], 1e-9)
	assert.InDelta(t, 0, ar.Scalars["uncertainty"], 1e-9)
	vacf := ar.Series["vacf"]
	require.Len(t, vacf, 3)
	assert.InDelta(t, 1, vacf[0], 1e-9)
	assert.InDelta(t, 2.0/3, vacf[1], 1e-9)
	assert.InDelta(t, 1.0/3, vacf[2], 1e-9)
	assert.Len(t, ar.Series["spectrum"], 2)
}

func TestDistinctDiffusion(t *testing.T) {
	d := testutil.Linear(
		[]string{"Na", "Na", "Cl", "Cl"},
		bigBox,
		[][3]float64{{10, 10, 10}, {20, 20, 20}, {30, 30, 30}, {40, 40, 40}},
		[][3]float64{{1, 0, 0}, {1, 0, 0}, {1, 1, 0}, {1, 1, 0}},
		8, 1)
	exp := addExperiment(t, openProject(t), "pairs", d)
	c := run(t, exp, DistinctDiffusionName, map[string]any{"data_range": 4})

	require.Len(t, c.Entries, 3)
	for _, tc := range []struct {
		a, b string
		coef float64
	}{
		{"Na", "Na", 1},
		{"Cl", "Na", 1},
		{"Cl", "Cl", 2},
	} {
		e, ok := c.Entry(tc.a, tc.b)
		require.True(t, ok, "%s_%s", tc.a, tc.b)
		for tau := 0; tau < 4; tau++ {
			assert.InDelta(t, tc.coef*float64(tau*tau), e.Series["msd"][tau], 1e-9, "%s_%s tau %d", tc.a, tc.b, tau)
		}
	}
}

func TestDistinctDiffusion_SingleAtom(t *testing.T) {
	exp := addExperiment(t, openProject(t), "ballistic", ballistic(10))
	calc, err := NewDistinctDiffusion(map[string]any{"data_range": 4})
	require.NoError(t, err)

	_, err = NewRunner(nil).Run(context.Background(), exp, calc, RunOptions{})
	assert.ErrorIs(t, err, ErrTooFewAtoms)
	var ce *CalculatorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Cl_Cl", ce.Subject)

	list, err := exp.Computations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

// cubicLattice places 64 argon atoms on a simple cubic lattice of spacing
// 2.5 in a box of 10.
func cubicLattice() testutil.Dump {
	d := testutil.Dump{Box: [3]float64{10, 10, 10}, Columns: []string{"x", "y", "z"}}
	var frame [][]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				frame = append(frame, []float64{2.5 * float64(i), 2.5 * float64(j), 2.5 * float64(k)})
				d.Elements = append(d.Elements, "Ar")
			}
		}
	}
	d.Values = [][][]float64{frame}
	return d
}

func TestRDF(t *testing.T) {
	exp := addExperiment(t, openProject(t), "lattice", cubicLattice())
	c := run(t, exp, RDFName, nil)

	e, ok := c.Entry("Ar", "Ar")
	require.True(t, ok)
	require.Len(t, e.Series["r"], 500)
	// six nearest neighbours at 2.5, twelve more at 2.5·√2
	assert.InDelta(t, 6, e.Series["coordination"][300], 1e-9)
	assert.InDelta(t, 18, e.Series["coordination"][400], 1e-9)
	assert.Greater(t, e.Scalars["maximum_value"], 0.0)
	assert.InDelta(t, 0, e.Series["g"][100], 1e-12)
}

func TestShellFactor(t *testing.T) {
	assert.InDelta(t, math.Pi, shellFactor(0.5), 1e-12)
	assert.InDelta(t, shellFactor(0.5), 2*math.Pi*0.5*(3-4*0.5), 1e-12)
	assert.Equal(t, 0.0, shellFactor(0.9))

	// continuous where the edge overlaps start and vanishing at the corner
	edge := math.Sqrt2 / 2
	assert.InDelta(t, shellFactor(edge-1e-9), shellFactor(edge+1e-9), 1e-6)
	assert.InDelta(t, 0.0, shellFactor(math.Sqrt(3)/2), 1e-6)

	for _, x := range []float64{0.3, 0.6, 0.72, 0.8, 0.85} {
		got := shellFactor(x)
		assert.Greater(t, got, 0.0, "x=%v", x)
		assert.InDelta(t, sphereAreaInCube(x), got, 5e-3, "x=%v", x)
	}
}

// sphereAreaInCube integrates, over a polar/azimuth grid, the part of a
// sphere of radius x centred in the unit cube that stays inside it.
func sphereAreaInCube(x float64) float64 {
	const n = 1200
	dt, dp := math.Pi/n, 2*math.Pi/n
	area := 0.0
	for i := 0; i < n; i++ {
		theta := (float64(i) + 0.5) * dt
		st, ct := math.Sin(theta), math.Cos(theta)
		if math.Abs(x*ct) > 0.5 {
			continue
		}
		for j := 0; j < n; j++ {
			phi := (float64(j) + 0.5) * dp
			if math.Abs(x*st*math.Cos(phi)) <= 0.5 && math.Abs(x*st*math.Sin(phi)) <= 0.5 {
				area += x * x * st * dt * dp
			}
		}
	}
	return area
}

func TestKirkwoodBuff(t *testing.T) {
	ctx := context.Background()
	exp := addExperiment(t, openProject(t), "lattice", cubicLattice())
	c := run(t, exp, KirkwoodBuffName, map[string]any{"number_of_bins": 500})

	e, ok := c.Entry("Ar", "Ar")
	require.True(t, ok)
	r, kb := e.Series["r"], e.Series["kb_integral"]
	require.Len(t, kb, len(r))
	// g = 0 below the first shell, so G = -4π/3 (r³ - r0³)
	want := -4 * math.Pi / 3 * (math.Pow(r[100], 3) - math.Pow(r[0], 3))
	assert.InDelta(t, want, kb[100], 1e-3)

	list, err := exp.Computations(ctx)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, comp := range list {
		names[comp.Name] = true
	}
	assert.True(t, names[RDFName])
	assert.True(t, names[KirkwoodBuffName])
}

func chargedBallistic(t *testing.T) *project.Experiment {
	t.Helper()
	ctx := context.Background()
	exp := addExperiment(t, openProject(t), "ballistic", ballistic(10))
	require.NoError(t, exp.SetCharge(ctx, "Na", 1))
	require.NoError(t, exp.SetCharge(ctx, "Cl", -1))
	return exp
}

func prefactor() float64 {
	return units.ElementaryCharge * units.ElementaryCharge / (units.Boltzmann * 300 * 1e6)
}

func TestNernstEinstein(t *testing.T) {
	exp := chargedBallistic(t)
	c := run(t, exp, NernstEinsteinName, map[string]any{"data_range": 4})

	require.Len(t, c.Entries, 1)
	e := c.Entries[0]
	want := prefactor() * (2*5.0/6 + 0.5/6)
	assert.InEpsilon(t, want, e.Scalars["ionic_conductivity"], 1e-9)
	assert.InEpsilon(t, want/100, e.Scalars["ionic_conductivity_s_cm"], 1e-9)
	assert.InDelta(t, 5.0/6, e.Scalars["Na_diffusion_coefficient"], 1e-9)
}

func TestEinsteinHelfand(t *testing.T) {
	exp := chargedBallistic(t)
	c := run(t, exp, EinsteinHelfandName, map[string]any{"data_range": 4})

	require.Len(t, c.Entries, 1)
	e := c.Entries[0]
	// M(t) moves with Σq·v = (1, 2, -0.5), so msd = 5.25τ² and the fit
	// over three points has slope 10.5
	assert.InDelta(t, 5.25*9, e.Series["msd"][3], 1e-9)
	assert.InEpsilon(t, prefactor()*10.5/6, e.Scalars["ionic_conductivity"], 1e-9)
}

func TestGreenKuboConductivity(t *testing.T) {
	exp := chargedBallistic(t)
	c := run(t, exp, GreenKuboConductivityName, map[string]any{"data_range": 3})

	require.Len(t, c.Entries, 1)
	e := c.Entries[0]
	// acf 5.25·[3 2 1] integrates to 21, prefactor 1/(3·2)
	assert.InEpsilon(t, prefactor()*3.5, e.Scalars["ionic_conductivity"], 1e-9)
	assert.InDelta(t, 1, e.Series["jacf"][0], 1e-12)
}

func TestConductivity_NeedsTemperature(t *testing.T) {
	ctx := context.Background()
	exp := chargedBallistic(t)
	require.NoError(t, exp.SetTemperature(ctx, 0))

	calc, err := NewGreenKuboConductivity(map[string]any{"data_range": 3})
	require.NoError(t, err)
	_, err = NewRunner(nil).Run(ctx, exp, calc, RunOptions{})
	assert.ErrorIs(t, err, ErrTemperature)
}

func TestMolecularGraph(t *testing.T) {
	d := testutil.Dump{
		Box:      [3]float64{10, 10, 10},
		Columns:  []string{"x", "y", "z"},
		Elements: []string{"Na", "Cl", "Na"},
		Values:   [][][]float64{{{1, 1, 1}, {2, 1, 1}, {6, 6, 6}}},
	}
	exp := addExperiment(t, openProject(t), "salt", d)
	c := run(t, exp, MolecularGraphName, map[string]any{"cutoff": 1.5})

	main, ok := c.Entry("Cl", "Na")
	require.True(t, ok)
	assert.Equal(t, 2.0, main.Scalars["number_of_molecules"])
	assert.Equal(t, 2.0, main.Scalars["largest_molecule"])
	assert.Equal(t, []float64{0, 1, 1}, main.Series["count"])

	pair, ok := c.Entry("molecule", "Cl1Na1")
	require.True(t, ok)
	assert.Equal(t, 1.0, pair.Scalars["count"])
	_, ok = c.Entry("molecule", "Na1")
	assert.True(t, ok)

	_, err := NewMolecularGraph(nil)
	assert.ErrorIs(t, err, ErrParams)
}

func TestRunner_Cache(t *testing.T) {
	ctx := context.Background()
	exp := addExperiment(t, openProject(t), "ballistic", ballistic(10))
	runner := NewRunner(nil)
	build := func() Calculator {
		calc, err := NewEinsteinDiffusion(map[string]any{"data_range": 4})
		require.NoError(t, err)
		return calc
	}

	first, err := runner.Run(ctx, exp, build(), RunOptions{})
	require.NoError(t, err)
	second, err := runner.Run(ctx, exp, build(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	forced, err := runner.Run(ctx, exp, build(), RunOptions{Force: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, forced.ID)

	require.NoError(t, exp.SetMass(ctx, "Na", 23))
	after, err := runner.Run(ctx, exp, build(), RunOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, forced.ID, after.ID)
	assert.Greater(t, after.Version, first.Version)
}

func TestRunner_DataRange(t *testing.T) {
	exp := addExperiment(t, openProject(t), "short", ballistic(3))
	calc, err := NewEinsteinDiffusion(map[string]any{"data_range": 10})
	require.NoError(t, err)

	_, err = NewRunner(nil).Run(context.Background(), exp, calc, RunOptions{})
	assert.ErrorIs(t, err, ErrDataRange)
}

func TestRunAll(t *testing.T) {
	ctx := context.Background()
	p := openProject(t)
	long := addExperiment(t, p, "long", ballistic(10))
	short := addExperiment(t, p, "short", ballistic(3))

	build, err := NewRegistry().Factory(EinsteinDiffusionName, map[string]any{"data_range": 4})
	require.NoError(t, err)
	result, err := NewRunner(nil).RunAll(ctx, []*project.Experiment{long, short}, build, RunOptions{})
	assert.ErrorIs(t, err, ErrDataRange)
	assert.Contains(t, result, "long")
	assert.NotContains(t, result, "short")
}

func TestParameters(t *testing.T) {
	calc, err := NewEinsteinDiffusion(map[string]any{"tau_values": 5})
	require.NoError(t, err)
	params := calc.Parameters()
	assert.Equal(t, 100, params["data_range"])
	assert.Equal(t, 99, params["fit_range"])
	assert.Equal(t, 5, params["tau_values"])
	assert.NotContains(t, params, "species")
	assert.Equal(t, []int{0, 24, 49, 74, 99}, calc.(*EinsteinDiffusion).lags())

	_, err = NewEinsteinDiffusion(map[string]any{"bogus": 1})
	assert.ErrorIs(t, err, ErrParams)
	_, err = NewEinsteinDiffusion(map[string]any{"data_range": 1})
	assert.ErrorIs(t, err, ErrParams)
	_, err = NewRegistry().Get("viscosity", nil)
	assert.ErrorIs(t, err, ErrUnknown)
	_, err = NewNernstEinstein(map[string]any{"method": "magic"})
	assert.ErrorIs(t, err, ErrParams)
}

func TestTauValues(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, TauValues{}.Resolve(3))
	assert.Equal(t, []int{1, 4}, TauValues{Values: []int{4, 1, 12}}.Resolve(10))
	assert.Equal(t, []int{0, 9}, TauValues{Count: 2}.Resolve(10))
}

func TestRunner_ExperimentLog(t *testing.T) {
	exp := addExperiment(t, openProject(t), "logged", ballistic(10))
	core, logs := observer.New(zapcore.InfoLevel)

	runner := NewRunner(nil)
	runner.ExperimentLog = func(e *project.Experiment) *zap.Logger {
		return zap.New(core).With(zap.String("dir", e.LogDir()))
	}
	calc, err := NewEinsteinDiffusion(map[string]any{"data_range": 4})
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), exp, calc, RunOptions{})
	require.NoError(t, err)

	finished := logs.FilterMessage("computation finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "logged", finished[0].ContextMap()["experiment"])
	assert.Equal(t, exp.LogDir(), finished[0].ContextMap()["dir"])
}
