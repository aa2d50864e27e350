package project

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExperiment(t *testing.T) *Experiment {
	t.Helper()
	ctx := context.Background()
	p, err := Open(ctx, t.TempDir(), "", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	e, err := p.AddExperiment(ctx, ExperimentOptions{Name: "argon", Units: "real"})
	require.NoError(t, err)
	return e
}

func TestCanonicalParameters(t *testing.T) {
	a, err := canonical(map[string]any{"data_range": 100, "species": []string{"Na"}})
	require.NoError(t, err)
	b, err := canonical(map[string]any{"species": []any{"Na"}, "data_range": 100.0})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	empty, err := canonical(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)
}

func TestComputationCache(t *testing.T) {
	ctx := context.Background()
	e := newExperiment(t)
	params := map[string]any{"data_range": 10, "correlation_time": 1}

	_, err := e.FindComputation(ctx, "einstein_diffusion_coefficients", params)
	assert.ErrorIs(t, err, ErrNoComputation)

	c := &Computation{
		Name:       "einstein_diffusion_coefficients",
		Parameters: params,
		Entries: []Entry{{
			Subjects: []string{"Ar"},
			Scalars:  map[string]float64{"diffusion_coefficient": 1.5e-9, "uncertainty": math.NaN()},
			Series:   map[string][]float64{"time": {0, 1, 2}, "msd": {0, 1, math.Inf(1)}},
		}},
	}
	require.NoError(t, e.SaveComputation(ctx, c))
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "argon", c.Experiment)

	found, err := e.FindComputation(ctx, "einstein_diffusion_coefficients", map[string]any{"correlation_time": 1.0, "data_range": 10})
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)

	entry, ok := found.Entry("Ar")
	require.True(t, ok)
	assert.Equal(t, 1.5e-9, entry.Scalars["diffusion_coefficient"])
	assert.True(t, math.IsNaN(entry.Scalars["uncertainty"]))
	assert.Equal(t, []float64{0, 1, 2}, entry.Series["time"])
	assert.True(t, math.IsNaN(entry.Series["msd"][2]))

	_, err = e.FindComputation(ctx, "einstein_diffusion_coefficients", map[string]any{"data_range": 20, "correlation_time": 1})
	assert.ErrorIs(t, err, ErrNoComputation)

	byPrefix, err := e.project.Computation(ctx, c.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, c.ID, byPrefix.ID)
}

func TestComputationInvalidatedByVersion(t *testing.T) {
	ctx := context.Background()
	e := newExperiment(t)
	c := &Computation{Name: "radial_distribution_function", Parameters: map[string]any{"number_of_bins": 50}}
	require.NoError(t, e.SaveComputation(ctx, c))

	require.NoError(t, e.SetTemperature(ctx, 300))
	_, err := e.FindComputation(ctx, c.Name, c.Parameters)
	assert.ErrorIs(t, err, ErrNoComputation)

	list, err := e.Computations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].Version)

	require.NoError(t, e.DeleteComputation(ctx, c.ID))
	assert.ErrorIs(t, e.DeleteComputation(ctx, c.ID), ErrNoComputation)
}

func TestEntryKey(t *testing.T) {
	assert.Equal(t, "Na_Cl", Entry{Subjects: []string{"Na", "Cl"}}.Key())
	assert.Equal(t, "System", Entry{}.Key())
}
